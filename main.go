package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reverse-auction/internal/accesstoken"
	auction "reverse-auction/internal/auctionService"
	"reverse-auction/internal/clock"
	"reverse-auction/internal/config"
	"reverse-auction/internal/events"
	"reverse-auction/internal/repository"
	"reverse-auction/internal/server"
	"reverse-auction/internal/supervisor"
	"reverse-auction/services/auction/broadcast"
	"reverse-auction/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set log level: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openStore(ctx, cfg)
	if err != nil {
		utils.Fatal("failed to open store", map[string]any{"driver": cfg.StoreDriver, "error": err.Error()})
	}
	defer closeRepo()

	hub := broadcast.NewHub()
	go hub.Run()
	defer hub.Stop()

	fanout := events.NewFanout(events.LogPublisher{}, hub)
	closers, err := addEventSinks(ctx, cfg, fanout)
	if err != nil {
		utils.Fatal("failed to connect event sink", map[string]any{"error": err.Error()})
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	clk := clock.Real()
	auctionSvc := auction.NewAuctionService(repo, fanout,
		auction.WithClock(clk),
		auction.WithRoundDuration(cfg.RoundDuration),
		auction.WithConfirmationWindow(cfg.ConfirmationWindow),
	)

	timeouts := supervisor.NewTimeoutSupervisor(auctionSvc, clk, cfg.SweepInterval)
	fanout.Add(timeouts)
	go timeouts.Run(ctx)
	defer timeouts.Stop()

	tokens, err := accesstoken.NewManager(cfg.AccessTokenSecret, cfg.AccessTokenTTL, clk.Now)
	if err != nil {
		utils.Fatal("failed to create token manager", map[string]any{"error": err.Error()})
	}

	router := server.SetupRouter(auctionSvc, tokens, hub)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.Info("starting auction server", map[string]any{
			"addr":           srv.Addr,
			"store":          cfg.StoreDriver,
			"round_duration": cfg.RoundDuration.String(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Error("server stopped unexpectedly", map[string]any{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	utils.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("graceful shutdown failed", map[string]any{"error": err.Error()})
	}
}

// openStore returns the repository selected by STORE_DRIVER with its schema ready
func openStore(ctx context.Context, cfg config.Config) (repository.AuctionDB, func(), error) {
	var (
		repo *repository.SQLRepo
		err  error
	)
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return repository.NewMemoryRepo(), func() {}, nil
	case config.DriverSQLite:
		repo, err = repository.OpenSQLite(cfg.DatabaseURL)
	case config.DriverPostgres:
		repo, err = repository.OpenPostgres(cfg.DatabaseURL)
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, nil, err
	}
	if err := repo.InitSchema(ctx); err != nil {
		repo.Close()
		return nil, nil, err
	}
	return repo, func() { repo.Close() }, nil
}

// addEventSinks connects the optional NATS and Redis publishers
func addEventSinks(ctx context.Context, cfg config.Config, fanout *events.Fanout) ([]io.Closer, error) {
	var closers []io.Closer

	if cfg.NATSURL != "" {
		p, err := events.NewNATSPublisher(ctx, cfg.NATSURL)
		if err != nil {
			return closers, err
		}
		fanout.Add(p)
		closers = append(closers, p)
		utils.Info("publishing events to nats", map[string]any{"url": cfg.NATSURL})
	}

	if cfg.RedisAddr != "" {
		p, err := events.NewRedisPublisher(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return closers, err
		}
		fanout.Add(p)
		closers = append(closers, p)
		utils.Info("publishing events to redis", map[string]any{"addr": cfg.RedisAddr})
	}

	return closers, nil
}
