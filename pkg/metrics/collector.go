package metrics

import "time"

// Snapshot is the minimal view a Collector needs of the agent's cached
// state; pkg/agent.Gatherer satisfies this without metrics importing agent
// and creating an import cycle.
type Snapshot interface {
	DaemonCounts() map[string]map[string]int // kind -> state -> count
	AckCounterValue() uint64
}

// Collector periodically refreshes the daemon-count and ack-counter gauges
// from a Snapshot source. Grounded on the teacher's ticker-driven
// collect-on-an-interval shape (start immediately, then every tick, stop on
// a close channel), repointed from a manager's in-memory cluster state to
// this agent's own cached gather Snapshot.
type Collector struct {
	source Snapshot
	stopCh chan struct{}
}

// NewCollector builds a Collector over source.
func NewCollector(source Snapshot) *Collector {
	return &Collector{source: source, stopCh: make(chan struct{})}
}

// Start begins collecting on a 15s interval, matching the report/gather
// cadence's order of magnitude without coupling to it directly.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for kind, states := range c.source.DaemonCounts() {
		for state, count := range states {
			DaemonsTotal.WithLabelValues(kind, state).Set(float64(count))
		}
	}
	AckCounter.Set(float64(c.source.AckCounterValue()))
}
