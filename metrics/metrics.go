package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/marcelsud/webhook-engine/webhook"
)

const (
	// DefaultWindow is the rolling window used for rate and error-rate counters
	DefaultWindow = time.Minute

	// maxLatencySamples bounds the per-event-type latency reservoir;
	// the oldest sample is overwritten once full
	maxLatencySamples = 2048
)

// Sample is one recorded per-event measurement
type Sample struct {
	EventType string
	Outcome   webhook.Status
	Latency   time.Duration
	Timestamp time.Time
}

// LatencySummary is a snapshot of the latency distribution for one event type
type LatencySummary struct {
	Count  int64
	Min    time.Duration
	Median time.Duration
	P95    time.Duration
	P99    time.Duration
}

// WindowCounts is the recent activity inside the rolling window
type WindowCounts struct {
	Total    int64
	Failures int64
}

/* Collector accumulates per-event metrics: outcome counters, latency
 * reservoirs and time-windowed rate counters
 * Write-only from the pipeline, read-only from reporting surfaces; no
 * pipeline stage ever reads its own metrics to alter behavior
 */
type Collector struct {
	mu        sync.Mutex
	now       func() time.Time
	window    time.Duration
	counts    map[string]map[string]int64
	latencies map[string]*reservoir
	buckets   []bucket
}

// bucket accumulates one second of activity
type bucket struct {
	sec      int64
	total    int64
	failures int64
}

// reservoir keeps the most recent latency samples in a ring
type reservoir struct {
	samples []time.Duration
	next    int
}

func (r *reservoir) add(d time.Duration) {
	if len(r.samples) < maxLatencySamples {
		r.samples = append(r.samples, d)
		return
	}
	r.samples[r.next] = d
	r.next = (r.next + 1) % maxLatencySamples
}

// Config holds the collector tuning knobs; zero values take defaults
type Config struct {
	Window time.Duration
	Now    func() time.Time
}

// NewCollector creates an empty collector
func NewCollector(cfg Config) *Collector {
	c := &Collector{
		now:       cfg.Now,
		window:    cfg.Window,
		counts:    make(map[string]map[string]int64),
		latencies: make(map[string]*reservoir),
	}
	if c.window <= 0 {
		c.window = DefaultWindow
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.buckets = make([]bucket, int(c.window/time.Second)+1)
	return c
}

// Record accumulates one sample into the counters, the latency
// reservoir and the rolling window
func (c *Collector) Record(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcome := s.Outcome.String()
	byOutcome, ok := c.counts[s.EventType]
	if !ok {
		byOutcome = make(map[string]int64)
		c.counts[s.EventType] = byOutcome
	}
	byOutcome[outcome]++

	res, ok := c.latencies[s.EventType]
	if !ok {
		res = &reservoir{}
		c.latencies[s.EventType] = res
	}
	res.add(s.Latency)

	ts := s.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	sec := ts.Unix()
	idx := int(sec % int64(len(c.buckets)))
	if c.buckets[idx].sec != sec {
		c.buckets[idx] = bucket{sec: sec}
	}
	c.buckets[idx].total++
	if !s.Outcome.OK() {
		c.buckets[idx].failures++
	}
}

// Counts returns a snapshot of the outcome counters per event type
func (c *Collector) Counts() map[string]map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make(map[string]map[string]int64, len(c.counts))
	for eventType, byOutcome := range c.counts {
		inner := make(map[string]int64, len(byOutcome))
		for outcome, n := range byOutcome {
			inner[outcome] = n
		}
		snapshot[eventType] = inner
	}
	return snapshot
}

// Latency returns the latency distribution snapshot for one event type
func (c *Collector) Latency(eventType string) LatencySummary {
	c.mu.Lock()
	res, ok := c.latencies[eventType]
	if !ok || len(res.samples) == 0 {
		c.mu.Unlock()
		return LatencySummary{}
	}
	samples := make([]time.Duration, len(res.samples))
	copy(samples, res.samples)
	c.mu.Unlock()

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return LatencySummary{
		Count:  int64(len(samples)),
		Min:    samples[0],
		Median: percentile(samples, 0.50),
		P95:    percentile(samples, 0.95),
		P99:    percentile(samples, 0.99),
	}
}

// Window returns the totals accumulated inside the rolling window
func (c *Collector) Window() WindowCounts {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Unix() - int64(c.window/time.Second)
	var counts WindowCounts
	for _, b := range c.buckets {
		if b.sec > cutoff {
			counts.Total += b.total
			counts.Failures += b.failures
		}
	}
	return counts
}

// percentile returns the value at quantile q from sorted samples
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
