package auctionhouse

import (
	"fmt"
)

// Error is a settlement failure. Two errors are the same kind when their
// codes match, whatever the detail.
type Error struct {
	Code   uint32
	Name   string
	Msg    string
	Detail string
	cause  error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Name, e.Msg)
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) Unwrap() error {
	return e.cause
}

// With returns a copy of e carrying a formatted detail.
func (e *Error) With(format string, args ...interface{}) *Error {
	c := *e
	c.Detail = fmt.Sprintf(format, args...)
	return &c
}

// Wrap returns a copy of e caused by err.
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.cause = err
	return &c
}

func newError(code uint32, name, msg string) *Error {
	return &Error{Code: code, Name: name, Msg: msg}
}

var (
	ErrAuthorizationMismatch        = newError(6000, "AuthorizationMismatch", "account does not match its expected address or identity")
	ErrTradeStateInvalidOrConsumed  = newError(6001, "TradeStateInvalidOrConsumed", "trade state is missing, empty or already consumed")
	ErrBothPartiesNeedToAgreeToSale = newError(6002, "BothPartiesNeedToAgreeToSale", "both parties need to agree to this sale")
	ErrCannotMatchFreeSales         = newError(6003, "CannotMatchFreeSalesWithoutAuctionHouseOrSellerSignoff", "cannot match free sales unless the auction house or seller signs off")
	ErrMetadataDoesntExist          = newError(6004, "MetadataDoesntExist", "metadata account does not exist")
	ErrSellerATACannotHaveDelegate  = newError(6005, "SellerATACannotHaveDelegate", "seller payment account cannot have a delegate set")
	ErrBuyerATACannotHaveDelegate   = newError(6006, "BuyerATACannotHaveDelegate", "buyer receipt account cannot have a delegate set")
	ErrNumericalOverflow            = newError(6007, "NumericalOverflow", "numerical overflow")
	ErrAuctioneerNotConfigured      = newError(6008, "AuctioneerNotConfigured", "auctioneer is not configured for this auction house")
	ErrInsufficientAuctioneerScope  = newError(6009, "InsufficientAuctioneerScope", "auctioneer lacks the required scope")
	ErrMustUseAuctioneerHandler     = newError(6010, "MustUseAuctioneerHandler", "auction house has an auctioneer, use the auctioneer handler")
	ErrNoAuctioneerProgramSet       = newError(6011, "NoAuctioneerProgramSet", "auction house has no auctioneer set")
	ErrNotEnoughAccountKeys         = newError(6012, "NotEnoughAccountKeys", "not enough account keys supplied")
	ErrNoPayerPresent               = newError(6013, "NoPayerPresent", "no payer present on this transaction")
	ErrRequiresSignOff              = newError(6014, "CannotTakeThisActionWithoutAuctionHouseSignOff", "cannot take this action without auction house sign off")
	ErrInvalidAccountData           = newError(6015, "InvalidAccountData", "account data could not be decoded")
)

var allErrors = []*Error{
	ErrAuthorizationMismatch,
	ErrTradeStateInvalidOrConsumed,
	ErrBothPartiesNeedToAgreeToSale,
	ErrCannotMatchFreeSales,
	ErrMetadataDoesntExist,
	ErrSellerATACannotHaveDelegate,
	ErrBuyerATACannotHaveDelegate,
	ErrNumericalOverflow,
	ErrAuctioneerNotConfigured,
	ErrInsufficientAuctioneerScope,
	ErrMustUseAuctioneerHandler,
	ErrNoAuctioneerProgramSet,
	ErrNotEnoughAccountKeys,
	ErrNoPayerPresent,
	ErrRequiresSignOff,
	ErrInvalidAccountData,
}

// ErrorByCode returns the error kind with the given code.
func ErrorByCode(code uint32) (*Error, bool) {
	for _, e := range allErrors {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}
