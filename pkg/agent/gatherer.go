package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cephadmd/cephadmd/pkg/agentstore"
	"github.com/cephadmd/cephadmd/pkg/engine"
	"github.com/cephadmd/cephadmd/pkg/layout"
	"github.com/cephadmd/cephadmd/pkg/metrics"
	"github.com/cephadmd/cephadmd/pkg/procexec"
	"github.com/cephadmd/cephadmd/pkg/registry"
	"github.com/cephadmd/cephadmd/pkg/types"
)

// durationRingSize is the number of recent gather durations kept to adapt
// the next sleep interval (spec.md §4.9's "3-slot duration ring").
const durationRingSize = 3

// Gatherer collects this host's daemon and volume state on an adaptive
// schedule and caches it for the reporter loop and the metrics collector.
// Grounded on
// pkg/worker/health_monitor.go's ticker-plus-cache shape, generalized from
// "one monitor per container" to "one cache refreshed on a wake event or
// a deadline, whichever comes first".
type Gatherer struct {
	eng       *engine.Engine
	clusterID string
	daemonID  string
	store     *agentstore.Store
	log       zerolog.Logger

	mu       sync.Mutex
	cache    Snapshot
	ackCount uint64
	ring     [durationRingSize]time.Duration
	ringPos  int

	wake chan struct{}
}

// Snapshot is what one gather cycle produces: the full daemon listing plus
// a monotonic ack counter, sent verbatim in the reporter's POST body.
type Snapshot struct {
	Daemons    []types.DaemonInfo     `json:"daemons"`
	Volumes    []VolumeInfo           `json:"volumes"`
	AckCounter uint64                 `json:"ack_counter"`
	GatheredAt time.Time              `json:"gathered_at"`
}

// VolumeInfo summarizes one block device ceph-volume inventory would
// report: path, whether it looks available, and its reported size.
type VolumeInfo struct {
	Path      string `json:"path"`
	Available bool   `json:"available"`
	SizeBytes int64  `json:"size_bytes"`
}

// NewGatherer builds a Gatherer. The wake channel is buffered to size 1 so
// a config push that arrives while a gather is in flight doesn't block the
// listener goroutine.
func NewGatherer(eng *engine.Engine, clusterID, daemonID string, store *agentstore.Store, log zerolog.Logger) *Gatherer {
	return &Gatherer{
		eng:       eng,
		clusterID: clusterID,
		daemonID:  daemonID,
		store:     store,
		log:       log,
		wake:      make(chan struct{}, 1),
	}
}

// Wake requests an out-of-schedule gather, coalescing with any pending
// wake that hasn't been consumed yet.
func (g *Gatherer) Wake() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// ApplyConfigPush rewrites each recognized file the manager pushed into the
// agent's own data dir, records counter as the last-acked push, and wakes
// the gatherer so the next report reflects the new state, per spec.md
// §4.9's "config push -> file rewrite -> reload -> wake" sequence (the
// §8.5 scenario: a push naming "agent.json" rewrites that file). The
// reload step itself is out of scope for the gatherer: whatever consumes
// the rewritten file (a future process restart, or another collaborator)
// picks it up independently. Keys are treated as plain file base names;
// anything that isn't is rejected rather than silently escaping the data
// dir.
func (g *Gatherer) ApplyConfigPush(counter uint64, cfg map[string]any) error {
	dir := g.eng.Layout.DaemonDir(g.clusterID, "agent."+g.daemonID)
	if len(cfg) > 0 {
		if err := layout.EnsureDir(dir, 0o750, -1, -1); err != nil {
			return err
		}
	}
	for name, value := range cfg {
		if name == "" || name != filepath.Base(name) {
			return fmt.Errorf("config push named an invalid file %q", name)
		}
		var data []byte
		if s, ok := value.(string); ok {
			data = []byte(s)
		} else {
			marshaled, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("marshaling pushed config file %q: %w", name, err)
			}
			data = marshaled
		}
		if err := layout.WriteFileAtomic(filepath.Join(dir, name), data, 0o600, -1, -1); err != nil {
			return fmt.Errorf("writing pushed config file %q: %w", name, err)
		}
	}

	g.mu.Lock()
	g.ackCount = counter
	g.mu.Unlock()

	g.log.Info().Int("keys", len(cfg)).Uint64("counter", counter).Msg("applied config push from manager")
	g.Wake()
	return nil
}

// Snapshot returns the most recently gathered snapshot without forcing a
// fresh gather.
func (g *Gatherer) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache
}

// DaemonCounts satisfies metrics.Snapshot: a kind -> state -> count view of
// the last cached gather, for the prometheus gauge vec.
func (g *Gatherer) DaemonCounts() map[string]map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	counts := make(map[string]map[string]int)
	for _, d := range g.cache.Daemons {
		kind := string(d.Identity.Kind)
		state := string(d.State)
		if counts[kind] == nil {
			counts[kind] = make(map[string]int)
		}
		counts[kind][state]++
	}
	return counts
}

// AckCounterValue satisfies metrics.Snapshot.
func (g *Gatherer) AckCounterValue() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ackCount
}

// Gather runs one collection cycle: lists every daemon the engine knows
// about under clusterID's data dir (or only idents, when the caller names
// them) and inventories local block devices, then caches the result and
// persists it via the agent store.
func (g *Gatherer) Gather(ctx context.Context, idents []types.Identity) (Snapshot, error) {
	start := time.Now()

	if idents == nil {
		entries, _ := os.ReadDir(filepath.Join(g.eng.Host.DataDir, g.clusterID))
		for _, entry := range entries {
			kind, id, ok := strings.Cut(entry.Name(), ".")
			if !ok || !entry.IsDir() {
				continue
			}
			if _, err := registry.Lookup(types.Kind(kind)); err != nil {
				continue
			}
			idents = append(idents, types.Identity{Kind: types.Kind(kind), ID: id})
		}
	}

	daemons := make([]types.DaemonInfo, 0, len(idents))
	for _, ident := range idents {
		state := g.eng.State(ctx, g.clusterID, ident)
		daemons = append(daemons, types.DaemonInfo{
			Identity:  ident,
			ClusterID: g.clusterID,
			State:     state,
		})
	}

	volumes, err := gatherVolumes(ctx)
	if err != nil {
		g.log.Warn().Err(err).Msg("volume inventory failed, reporting empty volume list")
		metrics.GatherErrorsTotal.Inc()
	}
	metrics.GatherDuration.Observe(time.Since(start).Seconds())

	g.mu.Lock()
	ack := g.ackCount
	g.ring[g.ringPos%durationRingSize] = time.Since(start)
	g.ringPos++
	snap := Snapshot{Daemons: daemons, Volumes: volumes, AckCounter: ack, GatheredAt: start}
	g.cache = snap
	g.mu.Unlock()

	if g.store != nil {
		if err := g.store.PutDaemons(g.clusterID, daemons); err != nil {
			g.log.Warn().Err(err).Msg("failed to persist daemon listing cache")
		}
	}

	return snap, nil
}

// adaptiveSleep picks the next gather interval as base plus the average of
// the non-zero entries of the duration ring (base alone while the ring is
// empty), bounded to [5s, 5m], so a host whose gathers take longer gathers
// less often than an idle one.
func (g *Gatherer) adaptiveSleep(base time.Duration) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	var sum time.Duration
	var n int
	for _, d := range g.ring {
		if d > 0 {
			sum += d
			n++
		}
	}
	if n == 0 {
		return base
	}
	avg := sum / time.Duration(n)
	interval := base + avg
	const minInterval = 5 * time.Second
	const maxInterval = 5 * time.Minute
	if interval < minInterval {
		return minInterval
	}
	if interval > maxInterval {
		return maxInterval
	}
	return interval
}

// gatherVolumes runs "ceph-volume inventory --format json" and parses its
// per-device summary. A failed run, including ceph-volume being absent on
// the host, is returned as an error; Gather logs it, counts it and reports
// an empty volume list.
func gatherVolumes(ctx context.Context) ([]VolumeInfo, error) {
	res, err := procexec.Run(ctx, 30*time.Second, nil, "ceph-volume", "inventory", "--format", "json")
	if err != nil {
		return nil, fmt.Errorf("ceph-volume inventory: %w", err)
	}
	return parseVolumeInventory(res.Stdout)
}
