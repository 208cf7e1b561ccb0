package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sensor-link/config"
	"sensor-link/internal/lifecycle"
	"sensor-link/internal/logger"
	"sensor-link/internal/metrics"
	"sensor-link/internal/stats"
	"sensor-link/internal/transport"
	"sensor-link/internal/transport/mqtt"
	"sensor-link/internal/transport/nats"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to config file")

	// Optional override flags
	endpointOverride := flag.String("endpoint", "", "override broker endpoint (empty = use config)")
	usernameOverride := flag.String("username", "", "override broker username (empty = use config)")
	passwordOverride := flag.String("password", "", "override broker password (empty = use config)")
	metricsAddrOverride := flag.String("metrics-addr", "", "override metrics server address (empty = use config)")
	metricsPathOverride := flag.String("metrics-path", "", "override metrics endpoint path (empty = use config)")
	metricsIntervalOverride := flag.Duration("metrics-interval", 0, "override metrics collection interval (0 = use config)")
	telemetryIntervalOverride := flag.Duration("interval", 0, "override telemetry publish interval (0 = use config)")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	cfg.ApplyOverrides(
		*endpointOverride,
		*usernameOverride,
		*passwordOverride,
		*metricsAddrOverride,
		*metricsPathOverride,
		*metricsIntervalOverride,
		*telemetryIntervalOverride,
	)

	logger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	statsCollector := stats.NewStatsCollector()

	var metricsService *metrics.Metrics
	var metricsServer *http.Server

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			logger.Fatal("failed to create metrics service", "error", err)
		}

		updateInterval, err := time.ParseDuration(cfg.Metrics.UpdateInterval)
		if err != nil {
			logger.Fatal("invalid metrics update interval", "error", err)
		}

		metricsCollector := metrics.NewMetricsCollector(metricsService, statsCollector, updateInterval)
		metricsCollector.Start()
		defer metricsCollector.Stop()

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))
		mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
			data, err := statsCollector.GetStatsJSON()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(data)
		})

		metricsServer = &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: mux,
		}

		go func() {
			logger.Info("starting metrics server",
				"address", cfg.Metrics.Address,
				"path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	tr, closeTransport, username, password, err := newTransport(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create transport", "error", err)
	}
	defer closeTransport()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := newSensor(nil, logger, cfg.TelemetryInterval())
	orchestrator := lifecycle.New(tr, lifecycle.Options{
		Username: username,
		Password: password,
		OnState: func(s lifecycle.State) {
			logger.Info("connection state", "state", s.String())
		},
		OnCommand: sim.Handle,
	},
		lifecycle.WithLogger(logger),
		lifecycle.WithMetrics(metricsService),
		lifecycle.WithStats(statsCollector))

	sim.out = orchestrator
	go sim.Run(ctx)

	logger.Info("sensor-link started",
		"transport", cfg.Transport,
		"endpoint", tr.Endpoint(),
		"telemetryInterval", cfg.TelemetryInterval(),
		"metricsEnabled", cfg.Metrics.Enabled)

	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			logger.Info("received SIGHUP, rotating logs")
			if err := logger.Rotate(); err != nil {
				logger.Error("failed to rotate logs", "error", err)
			}
		case syscall.SIGINT, syscall.SIGTERM:
			logger.Info("shutting down...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			if metricsServer != nil {
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("failed to shutdown metrics server", "error", err)
				}
			}

			cancel()
			orchestrator.Stop()
			return
		}
	}
}

// newTransport builds the configured transport and returns it with its
// close function and the credentials to connect with.
func newTransport(cfg *config.Config, log *logger.Logger) (transport.Transport, func(), string, string, error) {
	switch cfg.Transport {
	case config.TransportNATS:
		t, err := nats.New(cfg.NATS.URL,
			nats.WithName(cfg.NATS.ClientID),
			nats.WithLogger(log))
		if err != nil {
			return nil, nil, "", "", err
		}
		return t, t.Close, cfg.NATS.Username, cfg.NATS.Password, nil

	case config.TransportMQTT:
		opts := []mqtt.Option{
			mqtt.WithClientID(cfg.MQTT.ClientID),
			mqtt.WithLogger(log),
		}
		if cfg.MQTT.TLS.Enable {
			tlsConfig, err := mqtt.NewTLSConfig(cfg.MQTT.TLS.CertFile, cfg.MQTT.TLS.KeyFile, cfg.MQTT.TLS.CAFile)
			if err != nil {
				return nil, nil, "", "", fmt.Errorf("failed to create TLS config: %w", err)
			}
			opts = append(opts, mqtt.WithTLSConfig(tlsConfig))
		}
		t, err := mqtt.New(cfg.MQTT.Endpoint, opts...)
		if err != nil {
			return nil, nil, "", "", err
		}
		return t, t.Close, cfg.MQTT.Username, cfg.MQTT.Password, nil

	default:
		return nil, nil, "", "", fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
}
