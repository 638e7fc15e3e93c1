// govswitch daemon -- userspace Ethernet switch fabric.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/netfabric/govswitch/internal/config"
	"github.com/netfabric/govswitch/internal/fabric"
	fabricmetrics "github.com/netfabric/govswitch/internal/metrics"
	"github.com/netfabric/govswitch/internal/server"
	appversion "github.com/netfabric/govswitch/internal/version"
)

// shutdownTimeout bounds how long HTTP servers may take to drain active
// connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// metricsPollInterval is how often the daemon refreshes the Prometheus
// collector's switches_active gauge from the manager; no other collector
// metric is updated by the daemon.
const metricsPollInterval = time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("govswitch starting",
		slog.String("version", appversion.Version),
		slog.String("topology", cfg.Topology.Kind),
		slog.Int("num_switches", cfg.Topology.NumSwitches),
		slog.String("server_addr", cfg.Server.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr))

	reg := prometheus.NewRegistry()
	collector := fabricmetrics.NewCollector(reg)

	mgr := fabric.NewManager(logger)

	topo, err := fabric.BuildTopology(
		fabric.TopologyKind(cfg.Topology.Kind),
		cfg.Topology.NumSwitches,
		func(switchID int) fabric.SwitchConfig {
			sc := fabric.DefaultSwitchConfig(switchID)
			sc.BurstSize = cfg.Switch.BurstSize
			sc.QueueCapacity = cfg.Switch.QueueCapacity
			sc.MACTableCapacity = cfg.Switch.MACTableCapacity
			return sc
		},
		logger,
	)
	if err != nil {
		logger.Error("failed to build topology", slog.String("error", err.Error()))
		return 1
	}

	for _, sw := range topo.Switches {
		if cfg.Switch.StaticMACFile != "" {
			if err := loadStaticMACFile(sw, cfg.Switch.StaticMACFile, logger); err != nil {
				logger.Warn("failed to load static mac table",
					slog.Int("switch_id", sw.SwitchID), slog.String("error", err.Error()))
			}
		}
		if err := mgr.Register(sw); err != nil {
			logger.Error("failed to register switch", slog.String("error", err.Error()))
			return 1
		}
	}

	if err := runServers(cfg, mgr, collector, reg, logger); err != nil {
		logger.Error("govswitch exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("govswitch stopped")
	return 0
}

func loadStaticMACFile(sw *fabric.Switch, path string, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open static mac file %s: %w", path, err)
	}
	defer f.Close()

	n, err := sw.MACTable().LoadStatic(f, sw.ValidPort, logger)
	if err != nil {
		return fmt.Errorf("load static mac file %s: %w", path, err)
	}
	logger.Info("loaded static mac table entries",
		slog.Int("switch_id", sw.SwitchID), slog.Int("count", n))
	return nil
}

// runServers drives the switch forwarding loops and the control/metrics
// HTTP servers under one signal-aware errgroup, following the teacher's
// runServers shape in cmd/gobfd/main.go.
func runServers(cfg *config.Config, mgr *fabric.Manager, collector *fabricmetrics.Collector, reg *prometheus.Registry, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mgr.Run(gCtx)
	})

	controlSrv := newControlServer(cfg.Server, mgr, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("control server listening", slog.String("addr", cfg.Server.Addr))
		return listenAndServe(gCtx, &lc, controlSrv, cfg.Server.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening", slog.String("addr", cfg.Metrics.Addr))
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		return pollMetrics(gCtx, mgr, collector)
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(logger, controlSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

func pollMetrics(ctx context.Context, mgr *fabric.Manager, collector *fabricmetrics.Collector) error {
	ticker := time.NewTicker(metricsPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snaps := mgr.Switches()
			collector.SwitchesActive.Set(float64(len(snaps)))
		}
	}
}

func gracefulShutdown(logger *slog.Logger, servers ...*http.Server) error {
	notifyStopping(logger)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var firstErr error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shutdown %s: %w", srv.Addr, err)
		}
	}
	return firstErr
}

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newControlServer(cfg config.ServerConfig, mgr *fabric.Manager, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(mgr, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
