package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"traction/adapters/resthttp"
	"traction/adapters/stationbus"
	"traction/adapters/wsui"
	"traction/engine"
	"traction/engine/config"
	"traction/engine/device"
	"traction/engine/runtime"
	"traction/engine/telemetry/logging"
)

func main() {
	var (
		configPath string
		listen     string
		redisURL   string
		stallMA    uint
	)
	flag.StringVar(&configPath, "config", "", "Path to YAML configuration (defaults apply when empty)")
	flag.StringVar(&listen, "listen", "", "HTTP listen address (overrides config)")
	flag.StringVar(&redisURL, "redis", "", "Redis URL for the station bus (overrides config)")
	flag.UintVar(&stallMA, "sim-stall-ma", 900, "Simulated motor full-throttle current draw")
	flag.Parse()

	cfg := config.Defaults()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	if listen != "" {
		cfg.Adapters.HTTPListen = listen
	}
	if redisURL != "" {
		cfg.Adapters.RedisURL = redisURL
	}

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	base := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen}))
	slog.SetDefault(base)
	log := logging.New(base)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, configPath, uint16(stallMA), log); err != nil && !errors.Is(err, context.Canceled) {
		log.ErrorCtx(ctx, "daemon exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Runtime, configPath string, stallMA uint16, log logging.Logger) error {
	engCfg := engine.Config{
		DefaultLockoutMillis: cfg.Throttle.DefaultLockoutMS,
		MaxSpeed:             cfg.Throttle.MaxSpeed,
		QueueCapacity:        cfg.Throttle.QueueCapacity,
		MetricsEnabled:       cfg.MetricsEnabled,
		CurrentSampleEvery:   cfg.Throttle.CurrentSampleEvery,
	}
	motor := device.NewSimMotor(stallMA)
	eng, err := engine.New(engCfg, engine.WithMotor(motor), engine.WithLogger(log))
	if err != nil {
		return err
	}

	loop := runtime.NewLoop(runtime.Options{
		Engine:         eng,
		Logger:         log,
		TickInterval:   time.Duration(cfg.Throttle.TickIntervalMS) * time.Millisecond,
		EncoderDetents: cfg.Throttle.EncoderDetents,
	})

	// Hot reload: lockout duration and max speed apply between ticks.
	if configPath != "" && cfg.HotReloadEnabled {
		watcher, err := config.NewWatcher(configPath, &cfg)
		if err != nil {
			return err
		}
		defer func() { _ = watcher.Close() }()
		go func() {
			for change := range watcher.Changes() {
				log.InfoCtx(ctx, "configuration reloaded",
					slog.String("version", change.Runtime.Version))
				loop.ApplyConfig(change.Runtime.Throttle.DefaultLockoutMS, change.Runtime.Throttle.MaxSpeed)
			}
		}()
	}

	var metricsHandler http.Handler
	if prom := eng.PrometheusHandler(); prom != nil {
		metricsHandler = prom.Handler()
	}
	mux := resthttp.NewMux(resthttp.Options{
		Controller: loop,
		Health:     eng.HealthSnapshot,
		Metrics:    metricsHandler,
		Logger:     log,
	})
	mux.Handle("/ws", wsui.NewServer(wsui.Options{Controller: loop, Logger: log}).Handler())

	srv := &http.Server{Addr: cfg.Adapters.HTTPListen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errs := make(chan error, 2)
	go func() {
		log.InfoCtx(ctx, "http listening", slog.String("addr", cfg.Adapters.HTTPListen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if url := cfg.Adapters.RedisURL; url != "" {
		bridge, err := stationbus.New(ctx, stationbus.Options{
			RedisURL:   url,
			Namespace:  cfg.Adapters.BusNamespace,
			Controller: loop,
			Logger:     log,
		})
		if err != nil {
			return fmt.Errorf("station bus: %w", err)
		}
		defer func() { _ = bridge.Close() }()
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- err
			}
		}()
		log.InfoCtx(ctx, "station bus connected", slog.String("namespace", cfg.Adapters.BusNamespace))
	}

	go func() { errs <- loop.Run(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errs:
		return err
	}
}
