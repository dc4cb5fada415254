package agent

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/cephadmd/cephadmd/pkg/agentapi"
	"github.com/cephadmd/cephadmd/pkg/metrics"
)

// Reporter runs the gather-then-POST loop: each cycle gathers fresh state,
// sends it to the manager's /data endpoint over a TLS connection pinned to
// the cluster CA, and sleeps for the adaptive interval minus however long
// the cycle itself took, so a slow gather doesn't compound into a slower
// report cadence.
type Reporter struct {
	g      *Gatherer
	cfg    *Config
	log    zerolog.Logger
	client *http.Client
	health *agentapi.Server

	stop chan struct{}
}

// NewReporter builds a Reporter with an HTTP client pinned to the agent's
// configured CA, falling back to the system pool if no pin is configured
// (useful in tests). health may be nil, in which case liveness toggling is
// skipped; tests construct Reporters this way.
func NewReporter(g *Gatherer, cfg *Config, log zerolog.Logger, health *agentapi.Server) *Reporter {
	client := &http.Client{Timeout: 30 * time.Second}
	if cfg.CAPinPath != "" {
		if pool, err := loadCAPool(cfg.CAPinPath); err == nil {
			client.Transport = &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS13}}
		}
	}
	return &Reporter{g: g, cfg: cfg, log: log, client: client, health: health, stop: make(chan struct{})}
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates parsed from %s", path)
	}
	return pool, nil
}

// Run loops gather-then-report until ctx is cancelled or Stop is called. It
// observes ctx and the stop signal at the top of each cycle and while
// sleeping between cycles (spec.md §4.9's cooperative shutdown: "observed
// at next suspension point"); the stop signal is not checked mid-gather or
// mid-POST.
func (r *Reporter) Run(ctx context.Context) {
	base := reportIntervalDuration(r.cfg)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		default:
		}

		start := time.Now()
		snap, err := r.g.Gather(ctx, nil)
		if err != nil {
			r.log.Error().Err(err).Msg("gather failed")
			r.setGathererHealth(false)
		} else {
			r.setGathererHealth(true)
			if err := r.post(ctx, snap); err != nil {
				r.log.Warn().Err(err).Msg("report POST failed, will retry next cycle")
			}
		}

		elapsed := time.Since(start)
		sleep := r.g.adaptiveSleep(base) - elapsed
		if sleep < time.Second {
			sleep = time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-time.After(sleep):
		case <-r.g.wake:
		}
	}
}

// Stop requests the loop exit at its next suspension point.
func (r *Reporter) Stop() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
}

func (r *Reporter) setGathererHealth(serving bool) {
	if r.health != nil {
		r.health.SetGathererServing(serving)
	}
}

func (r *Reporter) post(ctx context.Context, snap Snapshot) error {
	timer := metrics.NewTimer()
	err := r.doPost(ctx, snap)
	timer.ObserveDuration(metrics.ReportDuration)
	if err != nil {
		metrics.ReportFailuresTotal.Inc()
	}
	return err
}

func (r *Reporter) doPost(ctx context.Context, snap Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	url := "https://" + r.cfg.ManagerAddr + "/data"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("manager replied %s", resp.Status)
	}
	return nil
}
