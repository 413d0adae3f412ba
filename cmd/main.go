package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/kkkkikiki/pizzeria/internal/api"
	"github.com/kkkkikiki/pizzeria/internal/api/middleware"
	"github.com/kkkkikiki/pizzeria/internal/config"
	"github.com/kkkkikiki/pizzeria/internal/coupon"
	"github.com/kkkkikiki/pizzeria/internal/database"
	"github.com/kkkkikiki/pizzeria/internal/notify"
	"github.com/kkkkikiki/pizzeria/internal/order"
	"github.com/kkkkikiki/pizzeria/internal/payment"
	"github.com/kkkkikiki/pizzeria/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}
	log.Println("Server exited gracefully")
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration from environment variables
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.App.Debug {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	}
	log.Printf("Starting pizzeria service in %s mode (log level %s)", cfg.App.Environment, cfg.App.LogLevel)
	if cfg.Stripe.SecretKey == "" || cfg.Stripe.WebhookSecret == "" {
		log.Printf("Stripe is not fully configured; checkout and webhooks will fail")
	}
	if cfg.App.AdminToken == "" {
		log.Printf("APP_ADMIN_TOKEN is empty; admin routes are locked")
	}

	// Initialize database connections
	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database connections: %v", err)
		}
	}()

	// Domain services
	eval := coupon.NewEvaluator(cfg.App.Location())
	ledger := coupon.NewLedger(db.SQL, eval)
	allocator := coupon.NewAllocator(db.SQL)
	batches := coupon.NewBatchGenerator(db.SQL, coupon.NewCodeGenerator(cfg.App.CodeSecret))
	maintenance := coupon.NewMaintenance(db.SQL)

	assembler := order.NewAssembler(eval)
	stock := order.NewStockReserver()
	orders := order.NewService(db.SQL, assembler, stock)

	notifier := notify.New(cfg.SMS)
	gateway := payment.NewStripeGateway(cfg.Stripe)

	server := api.NewServer(api.Deps{
		DB:            db.SQL,
		Evaluator:     eval,
		Ledger:        ledger,
		Allocator:     allocator,
		Batches:       batches,
		Maintenance:   maintenance,
		Orders:        orders,
		Checkout:      payment.NewCheckout(db.SQL, gateway, orders, assembler, stock),
		Reconciler:    payment.NewReconciler(db.SQL, gateway, assembler, stock, ledger, notifier),
		Notifier:      notifier,
		IssueLimiter:  middleware.NewRateLimiter(cfg.Rate.IssueRPS, cfg.Rate.IssueBurst),
		WebhookSecret: cfg.Stripe.WebhookSecret,
		AdminToken:    cfg.App.AdminToken,
	})
	router := server.Routes()

	// Register coupon RPC handler next to the REST routes
	path, handler := service.NewCouponServiceHandler(service.NewCouponServer(db.SQL, batches, allocator))
	router.Handle(path+"*", handler)

	// Create server with configuration optimized for high concurrency
	httpServer := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second, // Keep connections alive longer
		MaxHeaderBytes: 1 << 20,           // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(router, &http2.Server{
			MaxConcurrentStreams: 1000, // Allow more concurrent streams
		}),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Starting pizzeria service on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return maintenance.RunSweeper(gctx, cfg.App.SweepInterval)
	})

	// Wait for interrupt signal to gracefully shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
