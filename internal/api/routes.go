package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouteOptions configures Routes.
type RouteOptions struct {
	CORSOrigins    []string
	RateLimitRPM   int
	RequestTimeout time.Duration
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func (h *Handler) Routes(m *Middleware, opts RouteOptions) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(m.CORS(opts.CORSOrigins))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		// Live updates, outside the timeout and compression group
		r.Get("/ws", h.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(m.RateLimit(opts.RateLimitRPM))
			r.Use(m.Compress)
			if opts.RequestTimeout > 0 {
				r.Use(m.Timeout(opts.RequestTimeout))
			}

			// Settlement
			r.Route("/sales", func(r chi.Router) {
				r.Post("/", h.ExecuteSale)
				r.Post("/auctioneer", h.ExecuteSaleWithAuctioneer)
				r.Get("/{id}", h.GetSale)
			})
			r.Get("/wallets/{address}/sales", h.GetWalletSales)

			// Ledger state
			r.Get("/accounts/{address}", h.GetAccount)
			r.Get("/marketplaces/{address}", h.GetMarketplace)
			r.Get("/marketplaces/{address}/candles/{interval}", h.GetMarketplaceCandle)

			// Quotes & Previews
			r.Get("/quotes/sale", h.GetSaleQuote)
		})
	})

	return r
}
