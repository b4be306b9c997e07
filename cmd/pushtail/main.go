// pushtail connects to the lots push socket and prints every message.
// Usage: go run ./cmd/pushtail --url wss://push.example.com/ws --auction-id 42
//
// LOTS_API_KEY is used as the bearer token when --api-key is not given.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rickgao/lot-watch/internal/config"
	"github.com/rickgao/lot-watch/internal/connection"
	"github.com/rickgao/lot-watch/internal/storage"
)

func main() {
	url := pflag.String("url", "", "push socket URL")
	apiKey := pflag.String("api-key", "", "bearer token (default $LOTS_API_KEY)")
	auctionID := pflag.Int64("auction-id", 0, "auction to register for")
	channels := pflag.StringSlice("channels", []string{"lots"}, "channels to register for")
	verbose := pflag.BoolP("verbose", "v", false, "print full message JSON")
	pflag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Warn("failed to load .env", "error", err)
	}
	if *apiKey == "" {
		*apiKey = os.Getenv("LOTS_API_KEY")
	}
	if *url == "" {
		fmt.Fprintln(os.Stderr, "--url is required")
		pflag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := connection.DefaultTransportConfig()
	cfg.URL = *url
	cfg.APIKey = *apiKey
	cfg.AuctionID = *auctionID
	cfg.Channels = *channels

	store := storage.NewMemory()
	transport := connection.NewTransport(cfg, store, logger)

	enc := json.NewEncoder(os.Stdout)
	transport.OnMessage(func(msg connection.Message) {
		if *verbose {
			if err := enc.Encode(msg); err != nil {
				logger.Warn("failed to print message", "error", err)
			}
			return
		}
		fmt.Printf("%s %-12s auction=%d lot_bytes=%d\n",
			msg.ReceivedAt.Format(time.TimeOnly), msg.Type, msg.AuctionID, len(msg.Lot))
	})
	transport.OnAvailabilityChange(func(available bool) {
		logger.Info("push availability changed", "available", available)
	})

	if err := transport.Start(ctx); err != nil {
		logger.Error("failed to start transport", "error", err)
		os.Exit(1)
	}
	logger.Info("streaming push messages",
		"url", *url,
		"client_id", transport.ClientID(),
		"channels", *channels,
	)

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := transport.Stop(stopCtx); err != nil {
		logger.Warn("transport stop", "error", err)
	}
	if transport.HeartbeatLagged() {
		logger.Warn("heartbeats arrived late during this session")
	}
}
