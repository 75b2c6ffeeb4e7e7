package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wealthsim/internal/api"
	"wealthsim/internal/auth"
	"wealthsim/internal/config"
	"wealthsim/internal/db"
	"wealthsim/internal/game"
	"wealthsim/internal/journal"
	"wealthsim/internal/notify"

	"github.com/mdp/qrterminal/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	var preset *config.GameFile
	params := cfg.Params
	if cfg.GameFile != "" {
		preset, err = config.LoadGameFile(cfg.GameFile, cfg.Params)
		if err != nil {
			logger.Error("game file load failed", "path", cfg.GameFile, "err", err)
			os.Exit(1)
		}
		params = preset.Params
	}
	table, err := preset.Table()
	if err != nil {
		logger.Error("return table init failed", "err", err)
		os.Exit(1)
	}
	store, err := game.NewStore(params, table)
	if err != nil {
		logger.Error("store init failed", "err", err)
		os.Exit(1)
	}

	var opts []game.Option
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{})
		if err != nil {
			logger.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		snapshots, err := db.OpenSnapshots(ctx, pool, "")
		if err != nil {
			logger.Error("snapshot schema failed", "err", err)
			os.Exit(1)
		}
		snap, ok, err := snapshots.LoadLatest(ctx)
		if err != nil {
			logger.Error("snapshot load failed", "err", err)
			os.Exit(1)
		}
		if ok {
			if err := store.Restore(snap); err != nil {
				logger.Error("snapshot restore failed", "version", snap.Version, "err", err)
				os.Exit(1)
			}
			logger.Info("game restored", "version", snap.Version, "round", snap.Round.Round, "players", len(snap.Players))
		}
		opts = append(opts, game.WithPersister(snapshots))
	}
	if cfg.JournalPath != "" {
		j, err := journal.NewSQLite(cfg.JournalPath)
		if err != nil {
			logger.Error("journal open failed", "path", cfg.JournalPath, "err", err)
			os.Exit(1)
		}
		defer j.Close()
		opts = append(opts, game.WithJournal(j))
	}
	if cfg.DiscordToken != "" {
		d, err := notify.NewDiscord(cfg.DiscordToken, cfg.DiscordChannel)
		if err != nil {
			logger.Error("discord init failed", "err", err)
			os.Exit(1)
		}
		opts = append(opts, game.WithNotifier(d))
	}

	gameSvc := game.NewService(store, logger, opts...)
	server := api.New(cfg, logger, auth.NewSessions(cfg.SessionTTL), gameSvc)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(os.Stderr, "Students join at %s\n", cfg.PublicURL)
	qrterminal.GenerateHalfBlock(cfg.PublicURL, qrterminal.L, os.Stderr)

	logger.Info("wealthsim api listening", "addr", cfg.Addr, "mode", params.Mode, "rounds", params.MaxRounds, "assets", len(table.Assets))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
