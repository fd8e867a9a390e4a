package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/classlab/probsim/internal/api"
	"github.com/classlab/probsim/internal/config"
	"github.com/classlab/probsim/internal/session"
	"github.com/classlab/probsim/internal/store"
)

func main() {
	logger := log.New(os.Stdout, "[probsim] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	tables, rules, err := config.LoadTables(cfg.TablesPath)
	if err != nil {
		logger.Fatalf("tables: %v", err)
	}

	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatalf("migrate: %v", err)
	}

	// A fresh pool starts at the configured seed amount.
	if tables.Slot.Jackpot.Enabled {
		pool, err := db.JackpotPool()
		if err != nil {
			logger.Fatalf("jackpot: %v", err)
		}
		if pool.IsZero() {
			if err := db.SetJackpotPool(decimal.NewFromFloat(tables.Slot.Jackpot.SeedAmount)); err != nil {
				logger.Fatalf("jackpot: %v", err)
			}
		}
	}

	srv := api.NewServer(db, session.NewMemoryStore(), api.Options{
		Tables:          tables,
		Rules:           rules,
		InitialBalance:  decimal.NewFromInt(cfg.InitialBalance),
		HeartbeatWindow: cfg.HeartbeatWindow,
		Logger:          logger,
	})

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Routes(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening addr=%s db=%s rules=%d", cfg.Addr, cfg.DBPath, len(rules))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		srv.RunSweeper(ctx, cfg.SweepInterval)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("server: %v", err)
	}
	logger.Print("shutdown complete")
}
