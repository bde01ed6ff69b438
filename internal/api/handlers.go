package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/leafsii/auction-house/internal/auctionhouse"
	"github.com/leafsii/auction-house/internal/jobs"
	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/settlement"
	"github.com/leafsii/auction-house/internal/token"
	"github.com/leafsii/auction-house/internal/ws"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxBodyBytes    = 64 << 10
)

type Handler struct {
	svc    *settlement.Service
	wsHub  *ws.Hub
	logger *zap.SugaredLogger
}

func NewHandler(svc *settlement.Service, wsHub *ws.Hub, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, wsHub: wsHub, logger: logger}
}

// Sale endpoints
func (h *Handler) ExecuteSale(w http.ResponseWriter, r *http.Request) {
	h.executeSale(w, r, auctionhouse.PathDirect)
}

func (h *Handler) ExecuteSaleWithAuctioneer(w http.ResponseWriter, r *http.Request) {
	h.executeSale(w, r, auctionhouse.PathAuctioneer)
}

func (h *Handler) executeSale(w http.ResponseWriter, r *http.Request, path auctionhouse.Path) {
	requestID := middleware.GetReqID(r.Context())

	var body ExecuteSaleRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	req, err := body.toRequest()
	if err != nil {
		h.writeSaleError(w, err)
		return
	}
	if req.Path() != path {
		msg := "auctioneer is required"
		if path == auctionhouse.PathDirect {
			msg = "auctioneer sales go to /v1/sales/auctioneer"
		}
		h.writeError(w, http.StatusBadRequest, "InvalidRequest", msg)
		return
	}

	h.logger.Infow("Sale request received",
		"request_id", requestID,
		"path", path,
		"auction_house", req.AuctionHouse,
		"buyer", req.Buyer,
		"seller", req.Seller,
		"mint", req.TokenMint,
		"price", req.Price,
		"signers", len(req.Signers),
	)

	rec, err := h.svc.Execute(r.Context(), req)
	if err != nil {
		h.writeSaleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeSaleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) GetWalletSales(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.pubkeyParam(w, chi.URLParam(r, "address"), "address")
	if !ok {
		return
	}

	limit := defaultPageSize
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "INVALID_PARAMETER", "limit must be a positive integer")
			return
		}
		limit = min(n, maxPageSize)
	}

	items, next, err := h.svc.WalletSales(r.Context(), addr, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "HISTORY_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, WalletSalesDTO{
		Address:    addr.String(),
		Items:      items,
		NextCursor: next,
		UpdatedAt:  time.Now().Unix(),
	})
}

// Ledger endpoints
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.pubkeyParam(w, chi.URLParam(r, "address"), "address")
	if !ok {
		return
	}
	acct, err := h.svc.Account(r.Context(), addr)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		h.writeError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", err.Error())
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "LEDGER_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, AccountDTO{
		Address:    addr,
		Lamports:   acct.Lamports,
		Owner:      acct.Owner,
		Executable: acct.Executable,
		Data:       acct.Data,
	})
}

func (h *Handler) GetMarketplace(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.pubkeyParam(w, chi.URLParam(r, "address"), "address")
	if !ok {
		return
	}
	m, err := h.svc.Marketplace(r.Context(), addr)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "MARKETPLACE_NOT_FOUND", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

// GetMarketplaceCandle returns the latest sale price candle of a
// marketplace.
func (h *Handler) GetMarketplaceCandle(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.pubkeyParam(w, chi.URLParam(r, "address"), "address")
	if !ok {
		return
	}
	interval := chi.URLParam(r, "interval")
	if _, ok := jobs.ParseInterval(interval); !ok {
		h.writeError(w, http.StatusBadRequest, "INVALID_INTERVAL", fmt.Sprintf("unknown interval %q", interval))
		return
	}
	candle, err := h.svc.Candle(r.Context(), addr, interval)
	if errors.Is(err, settlement.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "CANDLE_NOT_FOUND", "no sales in the current interval")
		return
	}
	if err != nil {
		h.writeSaleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, candle)
}

// GetSaleQuote previews the split of a sale at price.
func (h *Handler) GetSaleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	house, ok := h.pubkeyParam(w, q.Get("marketplace"), "marketplace")
	if !ok {
		return
	}
	mint, ok := h.pubkeyParam(w, q.Get("mint"), "mint")
	if !ok {
		return
	}
	price, err := parseAmount("price", q.Get("price"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
		return
	}

	quote, err := h.svc.Quote(r.Context(), settlement.QuoteRequest{AuctionHouse: house, TokenMint: mint, Price: price})
	if err != nil {
		h.writeSaleError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, QuoteDTO{Quote: quote, AsOf: time.Now().Unix()})
}

// Health and ops endpoints
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ready(r.Context()); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, HealthDTO{Status: "unavailable", Reasons: []string{err.Error()}})
		return
	}
	h.writeJSON(w, http.StatusOK, HealthDTO{Status: "ok"})
}

// WebSocket endpoint
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHub.HandleWebSocket(w, r)
}

func (h *Handler) pubkeyParam(w http.ResponseWriter, value, name string) (ledger.Pubkey, bool) {
	if value == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_PARAMETER", name+" is required")
		return ledger.Pubkey{}, false
	}
	key, err := ledger.PubkeyFromBase58(value)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", fmt.Sprintf("invalid %s: %v", name, err))
		return ledger.Pubkey{}, false
	}
	return key, true
}

// statusOf maps a settlement failure to an HTTP status. Rejections by the
// engine, the ledger or the token program are 422.
func statusOf(err error) int {
	var ahErr *auctionhouse.Error
	switch {
	case errors.Is(err, settlement.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, settlement.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, settlement.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &ahErr):
		return http.StatusUnprocessableEntity
	}
	for _, target := range []error{
		ledger.ErrInsufficientFunds,
		ledger.ErrMissingSignature,
		ledger.ErrOwnerMismatch,
		ledger.ErrAccountAlreadyInUse,
		ledger.ErrArithmeticOverflow,
		token.ErrInsufficientTokens,
		token.ErrMintMismatch,
		token.ErrAccountFrozen,
		token.ErrInvalidOwner,
	} {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeSaleError(w http.ResponseWriter, err error) {
	h.writeError(w, statusOf(err), settlement.ErrorCode(err), err.Error())
}

// Utility methods
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("API error", "code", code, "message", message, "status", status)
	} else {
		h.logger.Infow("API error", "code", code, "message", message, "status", status)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := ErrorResponse{
		Code:    code,
		Message: message,
	}
	json.NewEncoder(w).Encode(err)
}
