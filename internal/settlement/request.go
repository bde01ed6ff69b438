package settlement

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/fardream/go-bcs/bcs"
	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"golang.org/x/crypto/blake2b"

	"github.com/leafsii/auction-house/internal/auctionhouse"
	"github.com/leafsii/auction-house/internal/ledger"
)

var (
	ErrInvalidRequest   = errors.New("invalid settlement request")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNotFound         = errors.New("settlement not found")
)

// Request names one sale to settle. A zero Auctioneer selects the direct
// path; otherwise the sale runs through that auctioneer of AuctionHouse.
type Request struct {
	// AuctionHouse is the marketplace of the bid. Its fees and escrow apply.
	AuctionHouse ledger.Pubkey
	// ListingAuctionHouse is where the listing was posted. Zero means
	// AuctionHouse. Only the auctioneer path may name a different one.
	ListingAuctionHouse ledger.Pubkey
	Auctioneer          ledger.Pubkey
	Buyer               ledger.Pubkey
	Seller              ledger.Pubkey
	TokenMint           ledger.Pubkey
	TokenAccount        ledger.Pubkey
	Price               uint64
	TokenSize           uint64
	PublicBid           bool
	Signers             []Signature
}

// Signature is a signer of a request. Sig may be empty when the service
// trusts declared signers.
type Signature struct {
	Signer ledger.Pubkey
	Sig    []byte
}

func (r *Request) Path() auctionhouse.Path {
	if r.Auctioneer.IsZero() {
		return auctionhouse.PathDirect
	}
	return auctionhouse.PathAuctioneer
}

func (r *Request) listing() ledger.Pubkey {
	if r.ListingAuctionHouse.IsZero() {
		return r.AuctionHouse
	}
	return r.ListingAuctionHouse
}

func (r *Request) validate() error {
	switch {
	case r.AuctionHouse.IsZero():
		return fmt.Errorf("%w: auction house is required", ErrInvalidRequest)
	case r.Buyer.IsZero(), r.Seller.IsZero():
		return fmt.Errorf("%w: buyer and seller are required", ErrInvalidRequest)
	case r.TokenMint.IsZero():
		return fmt.Errorf("%w: token mint is required", ErrInvalidRequest)
	case r.TokenSize == 0:
		return fmt.Errorf("%w: token size must be positive", ErrInvalidRequest)
	case r.Path() == auctionhouse.PathDirect && r.listing() != r.AuctionHouse:
		return fmt.Errorf("%w: a direct sale settles within one auction house", ErrInvalidRequest)
	}
	return nil
}

func (r *Request) signerKeys() []ledger.Pubkey {
	keys := make([]ledger.Pubkey, len(r.Signers))
	for i, s := range r.Signers {
		keys[i] = s.Signer
	}
	return keys
}

const signingDomain = "auction-house/execute-sale/v1"

type signedTerms struct {
	Domain              string
	AuctionHouse        ledger.Pubkey
	ListingAuctionHouse ledger.Pubkey
	Auctioneer          ledger.Pubkey
	Buyer               ledger.Pubkey
	Seller              ledger.Pubkey
	TokenMint           ledger.Pubkey
	TokenAccount        ledger.Pubkey
	Price               uint64
	TokenSize           uint64
	PublicBid           bool
}

// Message is the digest every signer of r signs: blake2b-256 over the BCS
// encoding of the sale terms.
func (r *Request) Message() ([]byte, error) {
	bz, err := bcs.Marshal(signedTerms{
		Domain:              signingDomain,
		AuctionHouse:        r.AuctionHouse,
		ListingAuctionHouse: r.listing(),
		Auctioneer:          r.Auctioneer,
		Buyer:               r.Buyer,
		Seller:              r.Seller,
		TokenMint:           r.TokenMint,
		TokenAccount:        r.TokenAccount,
		Price:               r.Price,
		TokenSize:           r.TokenSize,
		PublicBid:           r.PublicBid,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode sale terms: %w", err)
	}
	sum := blake2b.Sum256(bz)
	return sum[:], nil
}

// Sign appends signer's signature over r.
func (r *Request) Sign(signer ledger.Pubkey, key ed25519.PrivateKey) error {
	msg, err := r.Message()
	if err != nil {
		return err
	}
	r.Signers = append(r.Signers, Signature{Signer: signer, Sig: ed25519.Sign(key, msg)})
	return nil
}

func (r *Request) verifySignatures() error {
	msg, err := r.Message()
	if err != nil {
		return err
	}
	for _, s := range r.Signers {
		if len(s.Sig) != ed25519.SignatureSize || !ed25519.Verify(ed25519.PublicKey(s.Signer[:]), msg, s.Sig) {
			return fmt.Errorf("%w: signer %s", ErrInvalidSignature, s.Signer)
		}
	}
	return nil
}

// EncodeSignature renders a signature in base58, the form the API carries.
func EncodeSignature(sig []byte) string {
	return base58.Encode(sig)
}

func DecodeSignature(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	sig := base58.Decode(s)
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("%w: malformed signature", ErrInvalidSignature)
	}
	return sig, nil
}
