package qa

import (
	"math"
	"slices"
	"sync"
	"time"
)

const latencyWindow = 512

// Stats accumulates query outcomes and latencies for the stats endpoint
// and the terminal monitor.
type Stats struct {
	mu        sync.Mutex
	counts    map[Status]int64
	latencies []time.Duration // ring buffer
	next      int
	filled    bool

	indexChunks    int
	embeddingModel string
	lastRebuild    time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Queries        map[Status]int64 `json:"queries"`
	Total          int64            `json:"total"`
	LatencyP50Ms   float64          `json:"latency_p50_ms"`
	LatencyP95Ms   float64          `json:"latency_p95_ms"`
	RecentMs       []float64        `json:"recent_ms"`
	IndexBuilt     bool             `json:"index_built"`
	IndexChunks    int              `json:"index_chunks"`
	EmbeddingModel string           `json:"embedding_model,omitempty"`
	LastRebuild    time.Time        `json:"last_rebuild,omitempty"`
}

func newStats() *Stats {
	return &Stats{
		counts:    make(map[Status]int64, len(Statuses)),
		latencies: make([]time.Duration, latencyWindow),
	}
}

func (s *Stats) recordQuery(status Status, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[status]++
	s.latencies[s.next] = latency
	s.next = (s.next + 1) % len(s.latencies)
	if s.next == 0 {
		s.filled = true
	}
}

func (s *Stats) recordIndex(chunks int, model string, created time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexChunks = chunks
	s.embeddingModel = model
	s.lastRebuild = created
}

// recent returns the window in chronological order.
func (s *Stats) recent() []time.Duration {
	if !s.filled {
		return slices.Clone(s.latencies[:s.next])
	}
	out := make([]time.Duration, 0, len(s.latencies))
	out = append(out, s.latencies[s.next:]...)
	return append(out, s.latencies[:s.next]...)
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Queries:        make(map[Status]int64, len(Statuses)),
		IndexBuilt:     s.indexChunks > 0,
		IndexChunks:    s.indexChunks,
		EmbeddingModel: s.embeddingModel,
		LastRebuild:    s.lastRebuild,
	}
	for _, st := range Statuses {
		snap.Queries[st] = s.counts[st]
		snap.Total += s.counts[st]
	}

	recent := s.recent()
	snap.RecentMs = make([]float64, len(recent))
	for i, d := range recent {
		snap.RecentMs[i] = float64(d.Microseconds()) / 1000
	}
	sorted := slices.Clone(recent)
	slices.Sort(sorted)
	snap.LatencyP50Ms = percentileMs(sorted, 0.50)
	snap.LatencyP95Ms = percentileMs(sorted, 0.95)
	return snap
}

// percentileMs uses the nearest-rank method on sorted.
func percentileMs(sorted []time.Duration, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	rank = max(0, min(rank, len(sorted)-1))
	return float64(sorted[rank].Microseconds()) / 1000
}
