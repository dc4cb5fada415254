// Package agent is the host-resident process spec.md §4.9 describes: it
// loads its config and keyring, listens for mgr-pushed config updates over
// mutual TLS, gathers local daemon/volume state on an adaptive schedule,
// and reports snapshots back to the manager. Grounded on pkg/worker.Worker's
// Config/lifecycle split (immutable Config, mutable Worker with a stopCh)
// and pkg/worker/health_monitor.go's ticker-plus-stopCh loop shape.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cephadmd/cephadmd/pkg/agentapi"
	"github.com/cephadmd/cephadmd/pkg/agentstore"
	"github.com/cephadmd/cephadmd/pkg/config"
	"github.com/cephadmd/cephadmd/pkg/engine"
	"github.com/cephadmd/cephadmd/pkg/log"
	"github.com/cephadmd/cephadmd/pkg/metrics"
	"github.com/cephadmd/cephadmd/pkg/runtime"
)

// Config is the agent's on-disk configuration, loaded once at startup from
// JSON plus an adjacent keyring file. Any load failure is fatal: an agent
// that can't authenticate to its manager has nothing useful left to do.
type Config struct {
	ClusterID      string `json:"cluster_id"`
	DaemonID       string `json:"daemon_id"`
	ManagerAddr    string `json:"manager_addr"`
	CAPinPath      string `json:"ca_pin_path"`
	CertPath       string `json:"cert_path"`
	KeyPath        string `json:"key_path"`
	ReportInterval int    `json:"report_interval_secs"`
	HealthPort     int    `json:"health_port"`
	MetricsPort    int    `json:"metrics_port"`
}

// LoadConfig reads and parses configPath, returning a fatal error (per
// spec.md §4.9) if either the JSON config or the adjacent keyring is
// missing or malformed.
func LoadConfig(configPath, keyringPath string) (*Config, string, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading agent config %s: %w", configPath, err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, "", fmt.Errorf("parsing agent config %s: %w", configPath, err)
	}
	keyring, err := os.ReadFile(keyringPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading agent keyring %s: %w", keyringPath, err)
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 30
	}
	return &cfg, string(keyring), nil
}

// Agent is the running agent: its config, the engine it reports state
// from, the mgr listener, the gatherers, and the reporter loop.
type Agent struct {
	cfg     *Config
	keyring string
	engine  *engine.Engine
	store   *agentstore.Store
	log     zerolog.Logger

	listener  *MgrListener
	reporter  *Reporter
	gatherer  *Gatherer
	health    *agentapi.Server
	collector *metrics.Collector

	metricsAddr string

	mu      sync.Mutex
	stopped chan struct{}
}

// New builds an Agent from its loaded config and a cluster-aware logger.
func New(cfg *Config, keyring string, host config.HostConfig, rt runtime.Runtime, store *agentstore.Store) *Agent {
	l := log.WithCluster(cfg.ClusterID)
	eng := engine.New(host, rt, l)
	a := &Agent{
		cfg:     cfg,
		keyring: keyring,
		engine:  eng,
		store:   store,
		log:     l,
		stopped: make(chan struct{}),
	}
	a.gatherer = NewGatherer(eng, cfg.ClusterID, cfg.DaemonID, store, l)
	a.health = agentapi.New()
	a.collector = metrics.NewCollector(a.gatherer)
	a.reporter = NewReporter(a.gatherer, cfg, l, a.health)
	return a
}

// Run starts the mgr listener and the reporter loop, and blocks until
// ctx is cancelled or Stop is called, at which point it waits for both to
// observe the stop signal at their next cooperative suspension point.
func (a *Agent) Run(ctx context.Context) error {
	listener, err := NewMgrListener(a.cfg, a.gatherer, a.log)
	if err != nil {
		return fmt.Errorf("starting mgr listener: %w", err)
	}
	a.mu.Lock()
	a.listener = listener
	a.mu.Unlock()

	if addr, err := a.health.Serve(ctx, a.cfg.HealthPort); err != nil {
		a.log.Warn().Err(err).Msg("health server failed to start, status queries unavailable")
	} else {
		a.log.Info().Str("addr", addr).Msg("loopback health server listening")
	}
	a.health.SetProcessServing(true)
	a.collector.Start()

	metricsLn, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", metricsPortString(a.cfg.MetricsPort)))
	if err != nil {
		a.log.Warn().Err(err).Msg("metrics server failed to start")
	} else {
		a.metricsAddr = metricsLn.Addr().String()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Handler: mux}
		go func() { _ = srv.Serve(metricsLn) }()
		go func() { <-ctx.Done(); srv.Close() }()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		listener.Serve(gctx)
		return nil
	})
	g.Go(func() error {
		a.reporter.Run(gctx)
		return nil
	})

	select {
	case <-ctx.Done():
	case <-a.stopped:
	}
	a.health.SetProcessServing(false)
	a.collector.Stop()
	listener.Close()
	return g.Wait()
}

// Stop requests cooperative shutdown. It does not block; callers observe
// completion by the Run call returning.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	select {
	case <-a.stopped:
	default:
		close(a.stopped)
	}
}

// HealthAddr returns the loopback health server's bound address, once Run
// has started it.
func (a *Agent) HealthAddr() string {
	return a.health.Addr()
}

// MetricsAddr returns the loopback metrics server's bound address, once Run
// has started it.
func (a *Agent) MetricsAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metricsAddr
}

// reportIntervalDuration is a small helper so Reporter doesn't need to know
// Config's JSON shape.
func reportIntervalDuration(cfg *Config) time.Duration {
	return time.Duration(cfg.ReportInterval) * time.Second
}

func metricsPortString(port int) string {
	if port == 0 {
		return "0"
	}
	return fmt.Sprintf("%d", port)
}
