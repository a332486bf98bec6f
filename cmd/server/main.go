package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/pose-reveal-kiosk/internal/catalog"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/config"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/engine"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/feed"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/httpapi"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/hub"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/kiosk"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/sequence"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/store"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := config.NewLogger(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		if cat, err = catalog.Load(cfg.CatalogPath); err != nil {
			return err
		}
	}
	// a catalog that cannot fill a round is a configuration error, not a runtime one
	if cat.Size() < engine.SlotCount {
		return fmt.Errorf("catalog has %d poses, need %d: %w", cat.Size(), engine.SlotCount, sequence.ErrNotEnoughPoses)
	}

	var st store.Store = store.NewMemory()
	if cfg.DatabaseURL != "" {
		if st, err = store.Open(cfg.DatabaseURL); err != nil {
			return err
		}
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, kiosk.Config{
		CatalogSize: cat.Size(),
		Rules:       cfg.Rules,
		Recorder:    st,
		Logger:      log,
	})
	if _, err := h.Ensure(cfg.DefaultKiosk); err != nil {
		return fmt.Errorf("default kiosk: %w", err)
	}

	if cfg.MQTT.Broker != "" {
		src, err := feed.NewMQTTSource(feed.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Codec:       cfg.MQTT.Codec,
		}, cat, h, log)
		if err != nil {
			return err
		}
		if err := src.Connect(ctx); err != nil {
			return err
		}
		defer func() {
			src.Close()
			stats := src.Stats()
			log.Info("mqtt feed stopped",
				zap.Uint64("received", stats.Received),
				zap.Uint64("delivered", stats.Delivered),
				zap.Uint64("dropped", stats.Dropped))
		}()
	}

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(h, cat, st, log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.Int("poses", cat.Size()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down gracefully", zap.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		h.Shutdown()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
