package api

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kkkkikiki/pizzeria/internal/api/middleware"
	"github.com/kkkkikiki/pizzeria/internal/apperr"
	"github.com/kkkkikiki/pizzeria/internal/coupon"
	"github.com/kkkkikiki/pizzeria/internal/notify"
	"github.com/kkkkikiki/pizzeria/internal/order"
	"github.com/kkkkikiki/pizzeria/internal/payment"
	"github.com/kkkkikiki/pizzeria/internal/repository"
)

// Deps are the collaborators the HTTP layer dispatches to.
type Deps struct {
	DB            *sqlx.DB
	Evaluator     *coupon.Evaluator
	Ledger        *coupon.Ledger
	Allocator     *coupon.Allocator
	Batches       *coupon.BatchGenerator
	Maintenance   *coupon.Maintenance
	Orders        *order.Service
	Checkout      *payment.Checkout
	Reconciler    *payment.Reconciler
	Notifier      notify.Notifier
	IssueLimiter  *middleware.RateLimiter
	WebhookSecret string
	AdminToken    string
}

// Server holds the REST handlers
type Server struct {
	db            *sqlx.DB
	eval          *coupon.Evaluator
	ledger        *coupon.Ledger
	allocator     *coupon.Allocator
	batches       *coupon.BatchGenerator
	maintenance   *coupon.Maintenance
	orders        *order.Service
	checkout      *payment.Checkout
	reconciler    *payment.Reconciler
	notifier      notify.Notifier
	limiter       *middleware.RateLimiter
	coupons       *repository.CouponRepository
	catalog       *repository.CatalogRepository
	stock         *repository.StockRepository
	redemptions   *repository.RedemptionRepository
	webhookSecret string
	adminToken    string
	now           func() time.Time
}

// NewServer creates the REST handlers over d
func NewServer(d Deps) *Server {
	limiter := d.IssueLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(2, 5)
	}
	return &Server{
		db:            d.DB,
		eval:          d.Evaluator,
		ledger:        d.Ledger,
		allocator:     d.Allocator,
		batches:       d.Batches,
		maintenance:   d.Maintenance,
		orders:        d.Orders,
		checkout:      d.Checkout,
		reconciler:    d.Reconciler,
		notifier:      d.Notifier,
		limiter:       limiter,
		coupons:       repository.NewCouponRepository(),
		catalog:       repository.NewCatalogRepository(),
		stock:         repository.NewStockRepository(),
		redemptions:   repository.NewRedemptionRepository(),
		webhookSecret: d.WebhookSecret,
		adminToken:    d.AdminToken,
		now:           time.Now,
	}
}

// Routes builds the HTTP router
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)

	// Coupon endpoints
	r.Get("/validate", s.Validate)
	r.Post("/redeem", s.Redeem)
	r.Post("/assign", s.Assign)
	r.With(s.limiter.Limit(s.rateLimited)).Post("/issue", s.Issue)

	r.Route("/games/{gameId}", func(r chi.Router) {
		r.Get("/prize", s.GamePrize)
		r.With(s.limiter.Limit(s.rateLimited)).Post("/issue", s.GameIssue)
	})

	// Orders and payment
	r.Post("/pedido", s.CreateOrder)
	r.Get("/pedido/{ref}", s.GetOrder)
	r.Post("/checkout-session", s.CreateCheckoutSession)
	r.Post("/checkout/confirm", s.ConfirmCheckout)
	r.Post("/stripe/webhook", s.StripeWebhook)

	// Admin endpoints
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AdminToken(s.adminToken, s.unauthorized))
		r.Post("/coupons/bulk", s.BulkCoupons)
		r.Post("/coupons/sweep", s.SweepCoupons)
		r.Get("/coupons/{code}/redemptions", s.CouponRedemptions)
		r.Put("/stock", s.SetStock)
		r.Get("/stores/{storeId}/stock", s.StoreStock)
		r.Post("/orders/{ref}/cancel", s.CancelOrder)
	})

	// health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		hostname, _ := os.Hostname()
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"service":  "pizzeria",
			"hostname": hostname,
		})
	})
	r.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "error",
				"message": s.db.DriverName() + " unavailable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", s.db.DriverName(): "connected"})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, apperr.Conflict(apperr.RateLimited, "too many requests"))
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, apperr.Validation(apperr.Unauthorized, "admin token required"))
}
