package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/Numi2/sui-numi/internal/checkpoint"
	"github.com/Numi2/sui-numi/internal/config"
	"github.com/Numi2/sui-numi/internal/control"
	"github.com/Numi2/sui-numi/internal/deepbook"
	"github.com/Numi2/sui-numi/internal/execution"
	"github.com/Numi2/sui-numi/internal/httpapi"
	"github.com/Numi2/sui-numi/internal/ranker"
	"github.com/Numi2/sui-numi/internal/route"
	"github.com/Numi2/sui-numi/internal/sponsorship"
	"github.com/Numi2/sui-numi/internal/transport"
	"github.com/Numi2/sui-numi/pkg/middleware"
	"github.com/Numi2/sui-numi/pkg/observability"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability)

	metrics, err := observability.NewMetricsProvider(observability.MetricsConfig{
		ServiceName: cfg.Observability.ServiceName,
		Namespace:   "aggr",
		Enabled:     true,
	})
	if err != nil {
		log.Fatalf("failed to initialize metrics: %v", err)
	}

	venueAdapter := deepbook.New(cfg.JSONRPCEndpoint, cfg.DeepBook.Indexer, 10*time.Second)

	selector := route.NewSelector(venueAdapter, 400, 2000)
	rk := ranker.New(0, 0, 0)
	admission := control.NewAdmission(cfg.MaxInflight, cfg.RatePerSec)
	breakers := control.NewBreakers()

	jsonrpcClient := transport.NewHTTPJSONRPCClient(cfg.JSONRPCEndpoint, 30*time.Second)

	engine := execution.New(
		venueAdapter,
		nil, jsonrpcClient,
		cfg.UseGRPCExecute,
		selector,
		rk,
		cfg.Ed25519SecretHex, cfg.Address,
		nil,
	)

	if cfg.Sponsorship != nil {
		gasPrice, err := venueAdapter.ReferenceGasPrice(context.Background())
		if err != nil {
			logger.Warn(context.Background(), "could not fetch initial reference gas price, sponsorship will start at zero", map[string]interface{}{"error": err.Error()})
		}
		mgr := sponsorship.NewManager(
			cfg.Sponsorship.SponsorKeyHex,
			cfg.Sponsorship.SponsorAddress,
			gasPrice,
			sponsorship.AbuseConfig{
				MaxTxPerWindow:  cfg.Sponsorship.MaxTxPerWindow,
				MaxGasPerWindow: cfg.Sponsorship.MaxGasPerWindow,
				WindowDuration:  cfg.Sponsorship.AbuseWindow,
			},
		)
		mgr.SetUserBudget(cfg.Address, cfg.Sponsorship.PerUserBudget, cfg.Sponsorship.PerTxLimit, cfg.Sponsorship.BudgetWindow)
		if cfg.Sponsorship.RouteBudgetDefault > 0 {
			mgr.SetRouteBudget("DeepBookSingle", cfg.Sponsorship.RouteBudgetDefault, cfg.Sponsorship.PerTxLimit, cfg.Sponsorship.BudgetWindow)
		}
		engine.WithSponsorship(mgr)

		go refreshSponsorGasPrice(context.Background(), logger, venueAdapter, mgr)
	}

	cursor := checkpoint.New(logger)

	handler := httpapi.NewHandler(logger, selector, engine, admission, breakers, cursor)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	router.Handle("/metrics", metrics.Handler())

	chain := middleware.Recovery(logger)(
		middleware.Logging(logger)(
			middleware.Tracing(cfg.Observability.ServiceName)(
				middleware.CORS([]string{"*"})(
					middleware.RateLimit(float64(cfg.RatePerSec), cfg.RatePerSec)(router),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(context.Background(), "router listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(context.Background(), "shutting down", nil)
	admission.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
}

// refreshSponsorGasPrice keeps the sponsorship manager's gas price estimate
// current so sponsored transactions use a realistic gas budget, matching
// the original's periodic refresh loop.
func refreshSponsorGasPrice(ctx context.Context, logger *observability.Logger, adapter *deepbook.Adapter, mgr *sponsorship.Manager) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			price, err := adapter.ReferenceGasPrice(ctx)
			if err != nil {
				logger.Warn(ctx, "failed to refresh reference gas price", map[string]interface{}{"error": err.Error()})
				continue
			}
			mgr.UpdateGasPrice(price)
		}
	}
}
