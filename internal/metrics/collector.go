// Package metrics exposes the ttl index engine's counters to
// Prometheus.
package metrics

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tidekv/internal/ttlindex"
)

const namespace = "tidekv"

// Collector implements prometheus.Collector over an engine's Stats.
type Collector struct {
	engine *ttlindex.Engine

	totalEnqueue *prometheus.Desc
	totalDequeue *prometheus.Desc
	queueDepth   *prometheus.Desc
	running      *prometheus.Desc
}

// NewCollector returns a Collector reading engine's live stats.
func NewCollector(engine *ttlindex.Engine) *Collector {
	return &Collector{
		engine: engine,
		totalEnqueue: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ttlindex", "enqueue_total"),
			"Total number of expired ttl index entries enqueued for deletion.", nil, nil,
		),
		totalDequeue: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ttlindex", "dequeue_total"),
			"Total number of expired keys processed by the delete jobs.", nil, nil,
		),
		queueDepth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ttlindex", "queue_depth"),
			"Current number of keys queued for deletion, per shard.", []string{"shard"}, nil,
		),
		running: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ttlindex", "running"),
			"Whether the ttl index dispatch loop is running (1) or stopped (0).", nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalEnqueue
	ch <- c.totalDequeue
	ch <- c.queueDepth
	ch <- c.running
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.engine == nil {
		return
	}
	stats := c.engine.Stats()

	ch <- prometheus.MustNewConstMetric(c.totalEnqueue, prometheus.CounterValue, float64(stats.TotalEnqueue))
	ch <- prometheus.MustNewConstMetric(c.totalDequeue, prometheus.CounterValue, float64(stats.TotalDequeue))
	for shard, depth := range stats.QueueDepth {
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(depth), shardLabel(shard))
	}

	running := 0.0
	if c.engine.IsRunning() {
		running = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, running)
}

func shardLabel(shard ttlindex.ShardID) string {
	return itoa(uint32(shard))
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// StartServer starts an HTTP server exposing /metrics. Like the
// teacher's own metrics server, it forces localhost binding when addr
// is a bare ":port" so a misconfigured deployment doesn't accidentally
// expose internal counters on a public interface.
func StartServer(addr string, engine *ttlindex.Engine, logger *slog.Logger) {
	if addr == "" {
		return
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
		logger.Info("metrics address defaults to localhost for security", "addr", addr)
	}

	reg := prometheus.NewRegistry()
	if engine != nil {
		reg.MustRegister(NewCollector(engine))
	}
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("metrics server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "err", err)
		}
	}()
}
