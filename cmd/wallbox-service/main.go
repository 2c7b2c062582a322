package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"

	"wallbox-service/internal/config"
	"wallbox-service/internal/core"
	"wallbox-service/internal/hardware"
	"wallbox-service/internal/logger"
	"wallbox-service/internal/messaging"
	"wallbox-service/internal/metrics"
	"wallbox-service/internal/network"
	"wallbox-service/internal/pilot"
)

func main() {
	var (
		configPath      string
		serviceLogLevel int
		showEnv         bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.IntVar(&serviceLogLevel, "log", -1, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG), overrides the configuration")
	flag.BoolVar(&showEnv, "env", false, "Print the supported environment variables and exit")
	flag.Parse()

	if showEnv {
		fmt.Println(config.Usage())
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	level := logger.ParseLevel(cfg.Log.Level)
	if serviceLogLevel >= 0 {
		level = logger.LogLevel(serviceLogLevel)
	}
	l := logger.NewLogger(level, logger.Options{
		Console: cfg.Log.Console,
		// systemd stamps lines itself.
		Timestamps: os.Getenv("INVOCATION_ID") == "",
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer l.Sync()

	l.Infof("Starting wallbox service (mode=%s, driver=%s, pilot=%s)", cfg.Mode, cfg.Hardware.Driver, cfg.Pilot.Source)

	if err := run(cfg, l); err != nil {
		l.Fatalf("%v", err)
	}
	l.Infof("Shutdown complete")
}

func run(cfg *config.Config, l *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer stop()

	hw, err := hardware.New(cfg, l)
	if err != nil {
		return err
	}
	if err := hw.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize hardware: %w", err)
	}
	defer hw.Cleanup()

	monitor, err := pilot.New(cfg, hw, l)
	if err != nil {
		return err
	}

	transport := network.NewUDPTransport(cfg.Network.ListenAddr, cfg.Network.PeerAddr, l)

	var ctrl *core.Controller
	opts := []core.Option{core.WithPilot(monitor)}

	var redis *messaging.RedisClient
	if cfg.Redis.Enabled {
		redis = messaging.NewRedisClient(cfg.Redis.Addr, cfg.Redis.DB, l, messaging.Callbacks{
			CommandCallback: func(cmd string) error { return ctrl.HandleCommand(cmd) },
		})
		if err := redis.Connect(); err != nil {
			return err
		}
		defer redis.Close()
		opts = append(opts, core.WithPublisher(redis))
	}

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		reg := metrics.NewRegistry()
		opts = append(opts, core.WithMetrics(metrics.NewControllerMetrics(reg)))
		metrics.RegisterTransport(reg, transport.Dropped)

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			l.Infof("Serving metrics on %s", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	ctrl = core.NewController(cfg, hw, transport, l, opts...)
	hw.RegisterInputCallback(hardware.LineButton, ctrl.HandleButton)

	if err := ctrl.Start(); err != nil {
		ctrl.Shutdown()
		return fmt.Errorf("failed to start controller: %w", err)
	}
	if redis != nil {
		if err := redis.StartListening(); err != nil {
			l.Warnf("Operator commands unavailable: %v", err)
		}
	}

	l.Infof("System started successfully")

	if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.Errorf("Controller loop stopped: %v", err)
	}
	l.Infof("Shutting down...")
	ctrl.Shutdown()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			l.Warnf("Metrics server shutdown: %v", err)
		}
	}
	return nil
}
