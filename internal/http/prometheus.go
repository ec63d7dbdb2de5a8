package http

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fyrsmithlabs/filingqa/internal/qa"
)

// statsCollector exposes qa.Stats in Prometheus text format. Values are
// read from a snapshot at scrape time.
type statsCollector struct {
	stats *qa.Stats

	questions   *prometheus.Desc
	latency     *prometheus.Desc
	indexChunks *prometheus.Desc
	indexBuilt  *prometheus.Desc
	lastRebuild *prometheus.Desc
}

func newStatsCollector(stats *qa.Stats) *statsCollector {
	return &statsCollector{
		stats: stats,
		questions: prometheus.NewDesc("filingqa_questions_total",
			"Questions answered, by outcome status.", []string{"status"}, nil),
		latency: prometheus.NewDesc("filingqa_question_latency_milliseconds",
			"Answer latency over the recent window.", []string{"quantile"}, nil),
		indexChunks: prometheus.NewDesc("filingqa_index_chunks",
			"Chunks in the published index.", nil, nil),
		indexBuilt: prometheus.NewDesc("filingqa_index_built",
			"1 when an index is published.", nil, nil),
		lastRebuild: prometheus.NewDesc("filingqa_index_last_rebuild_timestamp_seconds",
			"Unix time the published index was built.", nil, nil),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.questions
	ch <- c.latency
	ch <- c.indexChunks
	ch <- c.indexBuilt
	ch <- c.lastRebuild
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Snapshot()
	for _, st := range qa.Statuses {
		ch <- prometheus.MustNewConstMetric(c.questions, prometheus.CounterValue, float64(s.Queries[st]), string(st))
	}
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, s.LatencyP50Ms, "0.5")
	ch <- prometheus.MustNewConstMetric(c.latency, prometheus.GaugeValue, s.LatencyP95Ms, "0.95")
	ch <- prometheus.MustNewConstMetric(c.indexChunks, prometheus.GaugeValue, float64(s.IndexChunks))

	built := 0.0
	if s.IndexBuilt {
		built = 1
	}
	ch <- prometheus.MustNewConstMetric(c.indexBuilt, prometheus.GaugeValue, built)

	var rebuilt float64
	if !s.LastRebuild.IsZero() {
		rebuilt = float64(s.LastRebuild.Unix())
	}
	ch <- prometheus.MustNewConstMetric(c.lastRebuild, prometheus.GaugeValue, rebuilt)
}
