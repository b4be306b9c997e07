// lotwatch keeps an auction lot listing current and serves it for debugging.
// Usage: go run ./cmd/lotwatch --config configs/lotwatch.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"

	"github.com/rickgao/lot-watch/internal/api"
	"github.com/rickgao/lot-watch/internal/bidding"
	"github.com/rickgao/lot-watch/internal/config"
	"github.com/rickgao/lot-watch/internal/connection"
	"github.com/rickgao/lot-watch/internal/database"
	"github.com/rickgao/lot-watch/internal/lotview"
	"github.com/rickgao/lot-watch/internal/model"
	"github.com/rickgao/lot-watch/internal/reconcile"
	"github.com/rickgao/lot-watch/internal/refresh"
	"github.com/rickgao/lot-watch/internal/registration"
	"github.com/rickgao/lot-watch/internal/storage"
	"github.com/rickgao/lot-watch/internal/storage/boltdb"
	"github.com/rickgao/lot-watch/internal/version"
	"github.com/rickgao/lot-watch/internal/writer"
)

func main() {
	configPath := pflag.String("config", "configs/lotwatch.yaml", "path to config file")
	envFile := pflag.String("env-file", ".env", "environment file loaded before the config")
	logLevel := pflag.String("log-level", "", "override log.level from the config")
	pflag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting lotwatch",
		"version", version.String(),
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("lotwatch failed", "error", err)
		os.Exit(1)
	}
	logger.Info("lotwatch stopped")
}

func run(cfg *config.LotWatchConfig, logger *slog.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Local store
	store, err := openStore(ctx, cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	params := resolveQuery(ctx, store, cfg.Query, logger)
	if cfg.Query.AuctionID == 0 {
		cfg.Query.AuctionID = queryAuctionID(params)
	}

	// Optional observation archive
	var (
		pool      *pgxpool.Pool
		archive   *writer.ObservationWriter
		refreshOp []refresh.Option
	)
	if cfg.Archive.Enabled {
		pool, archive, err = startArchive(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		defer stopWithTimeout(logger, "observation writer", archive.Stop)
		refreshOp = append(refreshOp, refresh.WithObserver(archive))
	}

	// Lots API client
	client := api.NewClient(
		cfg.API.BaseURL,
		cfg.API.APIKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithEndpoints(api.Endpoints{
			Lots:     cfg.API.LotsPath,
			Lot:      cfg.API.LotPath,
			QuickBid: cfg.API.QuickBidPath,
		}),
	)

	registry := registration.New()
	rec := reconcile.New(registry,
		reconcile.WithAfterLots(lotview.PrepareLots),
		reconcile.WithLogger(logger),
	)

	transport := connection.NewTransport(connection.TransportConfig{
		URL:                  cfg.Push.URL,
		APIKey:               cfg.API.APIKey,
		Channels:             cfg.Push.Channels,
		AuctionID:            cfg.Query.AuctionID,
		HeartbeatTimeout:     cfg.Push.HeartbeatTimeout,
		HeartbeatSkew:        cfg.Push.HeartbeatSkew,
		ReconnectBaseWait:    cfg.Push.ReconnectBaseDelay,
		ReconnectMaxWait:     cfg.Push.ReconnectMaxDelay,
		MaxReconnectAttempts: cfg.Push.MaxReconnectAttempts,
		WriteTimeout:         cfg.Push.WriteTimeout,
	}, store, logger.With("component", "push"))

	refreshCfg := refresh.Config{
		Interval:     cfg.Refresh.Interval,
		FetchTimeout: cfg.Refresh.FetchTimeout,
		Query:        params,
	}
	if cfg.Refresh.LazyLoad {
		refreshCfg.LazyLoadOffset = lotview.LazyLoadOffset(cfg.Refresh.View, cfg.Refresh.Brand)
	}
	refreshOp = append(refreshOp, refresh.WithHeartbeatStore(store))
	if cfg.Push.URL != "" {
		refreshOp = append(refreshOp, refresh.WithPush(transport))
	}
	refresher := refresh.New(refreshCfg, client, rec, logger.With("component", "refresh"), refreshOp...)

	// Initial page
	initial, err := client.FetchLots(ctx, params)
	if err != nil {
		return fmt.Errorf("initial lots: %w", err)
	}
	if err := refresher.Init(ctx, initial, initialAuction(cfg.Query.AuctionID, initial)); err != nil {
		return fmt.Errorf("init refresher: %w", err)
	}
	logger.Info("initial lots loaded",
		"lots", initial.Len(),
		"total", initial.QueryInfo.TotalNumResults,
		"registrations", registry.Len(),
	)

	if err := refresher.Start(ctx); err != nil {
		return fmt.Errorf("start refresher: %w", err)
	}
	defer stopWithTimeout(logger, "refresher", refresher.Stop)

	transport.OnMessage(refresher.HandlePush)
	transport.OnAvailabilityChange(refresher.PushAvailabilityChanged)
	switch err := transport.Start(ctx); {
	case errors.Is(err, connection.ErrTransportDisabled):
		logger.Info("push disabled, polling only")
	case err != nil:
		return fmt.Errorf("start push transport: %w", err)
	default:
		defer stopWithTimeout(logger, "push transport", transport.Stop)
	}

	submitter := bidding.NewSubmitter(bidding.Config{
		RoundingMessageDuration: cfg.Bidding.RoundingMessageDuration,
		RefetchConcurrency:      cfg.Bidding.RefetchConcurrency,
		BidsInLotObject:         cfg.Bidding.BidsInLotObject,
	}, client, refresher, registry, logger.With("component", "bidding"))
	defer submitter.Close()

	srv := &server{
		cfg:       cfg,
		refresher: refresher,
		registry:  registry,
		transport: transport,
		submitter: submitter,
		pool:      pool,
		archive:   archive,
		store:     store,
		logger:    logger,
	}
	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           srv.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
			cancel()
		}
	}()

	logger.Info("lotwatch running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	// Graceful shutdown of health server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown", "error", err)
	}
	return nil
}

func openStore(ctx context.Context, path string) (storage.Store, error) {
	if path == "" {
		return storage.NewMemory(), nil
	}
	store, err := boltdb.New(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

func startArchive(ctx context.Context, cfg *config.LotWatchConfig, logger *slog.Logger) (*pgxpool.Pool, *writer.ObservationWriter, error) {
	db := cfg.Archive.Database
	logger.Info("connecting to archive",
		"host", db.Host,
		"port", db.Port,
		"database", db.Name,
	)

	if cfg.Archive.Migrate {
		if err := database.Migrate(db); err != nil {
			return nil, nil, fmt.Errorf("migrate archive: %w", err)
		}
	}

	pool, err := database.Connect(ctx, db)
	if err != nil {
		return nil, nil, fmt.Errorf("connect archive: %w", err)
	}

	w := writer.NewObservationWriter(writer.WriterConfig{
		InstanceID:    cfg.Instance.ID,
		BatchSize:     cfg.Archive.BatchSize,
		FlushInterval: cfg.Archive.FlushInterval,
		BufferSize:    cfg.Archive.BufferSize,
	}, pool, logger.With("component", "archive"))
	if err := w.Start(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("start observation writer: %w", err)
	}
	return pool, w, nil
}

// resolveQuery returns the lots query to start with. A configured query is
// saved and used; without one the last saved query is restored.
func resolveQuery(ctx context.Context, store storage.QueryStore, q config.QueryConfig, logger *slog.Logger) api.QueryParams {
	if q.IsZero() {
		last, err := store.LastQuery(ctx)
		switch {
		case err == nil:
			params := api.QueryParams(last)
			logger.Info("restored last query", "query", params.Encode())
			return params
		case !errors.Is(err, storage.ErrNotFound):
			logger.Warn("failed to load last query", "error", err)
		}
	}

	params := api.QueryParams(q.Params())
	if err := store.SaveQuery(ctx, params); err != nil {
		logger.Warn("failed to save query", "error", err)
	}
	return params
}

// queryAuctionID is the auction_id filter of params, or 0.
func queryAuctionID(params api.QueryParams) int64 {
	id, err := strconv.ParseInt(params["auction_id"], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// initialAuction is the auction of the first lot, or a bare reference to
// the configured auction.
func initialAuction(auctionID int64, c *model.LotCollection) *model.AuctionRef {
	for _, lot := range c.ResultPage {
		if lot != nil && lot.Auction != nil && (auctionID == 0 || lot.Auction.RowID == auctionID) {
			return lot.Auction
		}
	}
	if auctionID == 0 {
		return nil
	}
	return &model.AuctionRef{RowID: auctionID}
}

func stopWithTimeout(logger *slog.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("stop failed", "component", name, "error", err)
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
