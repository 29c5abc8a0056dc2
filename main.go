package main

// GET  /cart/list                 - list cart lines
// POST /cart/add, /cart/remove    - edit the cart
// GET  /coupons/{code}            - preview a coupon
// POST /checkout/order            - reserve stock and open a pending order
// POST /checkout/callback         - signed payment callback from hosted checkout
// GET  /orders/{id}               - order status
// POST /orders/{id}/cancel        - cancel a pending order
// POST /orders/{id}/deliver       - mark a paid or cash on delivery order delivered (admin)
// PUT  /admin/variants            - set stock for a variant (admin)
// POST /webhooks/razorpay         - gateway events

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkout-engine/config"
	"checkout-engine/handler"
	"checkout-engine/payment"
	"checkout-engine/service"
	"checkout-engine/store"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

//go:embed migrations.sql
var migrationSQL string

func main() {
	envDefaults := config.Load(".env", ".env.local")

	port := flag.Int("port", envDefaults.Port, "http port")
	dsn := flag.String("database-url", envDefaults.DatabaseURL, "postgres dsn; empty runs in memory")
	logJSON := flag.Bool("log-json", envDefaults.LogJSON, "json logs")
	payMock := flag.Bool("pay-mock", envDefaults.PayMock, "never call the payment gateway")
	flag.Parse()

	cfg := envDefaults
	cfg.Port = *port
	cfg.DatabaseURL = *dsn
	cfg.LogJSON = *logJSON
	cfg.PayMock = *payMock

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.LogJSON || cfg.Env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		return store.NewMemoryStore(), nil
	}
	pg, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.Migrate(ctx, migrationSQL); err != nil {
		pg.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations executed")
	return pg, nil
}

func newGateway(cfg config.Config, logger *zap.Logger) (payment.Gateway, error) {
	if cfg.UseMockGateway() {
		logger.Warn("payment gateway mocked")
		return payment.MockGateway{}, nil
	}
	return payment.NewRazorpayClient(payment.RazorpayConfig{KeyID: cfg.RazorpayKeyID, KeySecret: cfg.RazorpayKeySecret})
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	gw, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}

	svc := service.NewService(st, gw, service.Config{
		Shipping: service.ShippingConfig{FlatRate: cfg.ShippingFlat, FreeAbove: cfg.ShippingFreeAbove},
		TaxRate:  cfg.TaxRate,
		Currency: cfg.Currency,
	}, logger)
	adapter := payment.NewAdapter(svc.Orders(), cfg.RazorpayWebhookSecret, cfg.RazorpayKeySecret, logger)
	sweeper := service.NewSweeper(svc.Orders(), cfg.PendingTTL, cfg.SweepInterval, logger)

	var auth *handler.Auth
	if cfg.JWTSecret != "" {
		auth = handler.NewAuth(cfg.JWTSecret)
	}
	r := mux.NewRouter()
	handler.NewHandler(svc, adapter, auth, logger).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server running", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
