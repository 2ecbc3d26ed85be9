package dgemetrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus holds the engine's prometheus instruments.
// A nil *Prometheus is valid and records nothing.
type Prometheus struct {
	commits        prometheus.Counter
	decisions      *prometheus.CounterVec
	blocksAccepted prometheus.Counter
	blocksDropped  *prometheus.CounterVec
	persistRetries *prometheus.CounterVec

	watermarks *prometheus.GaugeVec
	suspended  prometheus.Gauge

	commitLatency prometheus.Histogram
}

// NewPrometheus creates the engine instruments and registers them with reg.
// Instruments already registered by an earlier engine on the same registry are reused.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gdag_commits_total",
			Help: "Number of sub-dags committed.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gdag_leader_decisions_total",
			Help: "Number of leader slots decided, by decision type.",
		}, []string{"decision"}),
		blocksAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gdag_blocks_accepted_total",
			Help: "Number of blocks accepted into DAG state.",
		}),
		blocksDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gdag_blocks_dropped_total",
			Help: "Number of offered blocks not accepted, by reason.",
		}, []string{"reason"}),
		persistRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gdag_persist_retries_total",
			Help: "Number of failed storage writes that were retried, by operation.",
		}, []string{"op"}),

		watermarks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gdag_watermark",
			Help: "Round and index watermarks of the engine kernel.",
		}, []string{"kind"}),
		suspended: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gdag_suspended_blocks",
			Help: "Number of blocks waiting for missing ancestors.",
		}),

		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gdag_commit_batch_seconds",
			Help:    "Time to linearize and persist one batch of decided leaders.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}

	p.commits = registerOnce(reg, p.commits).(prometheus.Counter)
	p.decisions = registerOnce(reg, p.decisions).(*prometheus.CounterVec)
	p.blocksAccepted = registerOnce(reg, p.blocksAccepted).(prometheus.Counter)
	p.blocksDropped = registerOnce(reg, p.blocksDropped).(*prometheus.CounterVec)
	p.persistRetries = registerOnce(reg, p.persistRetries).(*prometheus.CounterVec)
	p.watermarks = registerOnce(reg, p.watermarks).(*prometheus.GaugeVec)
	p.suspended = registerOnce(reg, p.suspended).(prometheus.Gauge)
	p.commitLatency = registerOnce(reg, p.commitLatency).(prometheus.Histogram)

	return p
}

func (p *Prometheus) Decided(label string) {
	if p == nil {
		return
	}
	p.decisions.WithLabelValues(label).Inc()
}

func (p *Prometheus) Committed(n int) {
	if p == nil {
		return
	}
	p.commits.Add(float64(n))
}

func (p *Prometheus) Accepted(n int) {
	if p == nil {
		return
	}
	p.blocksAccepted.Add(float64(n))
}

// Dropped counts n blocks that were offered but discarded for reason.
func (p *Prometheus) Dropped(reason string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.blocksDropped.WithLabelValues(reason).Add(float64(n))
}

func (p *Prometheus) PersistRetry(op string) {
	if p == nil {
		return
	}
	p.persistRetries.WithLabelValues(op).Inc()
}

// CommitBatchTimer starts timing a batch; call ObserveDuration when it is done.
func (p *Prometheus) CommitBatchTimer() *prometheus.Timer {
	if p == nil {
		return prometheus.NewTimer(prometheus.ObserverFunc(func(float64) {}))
	}
	return prometheus.NewTimer(p.commitLatency)
}

// Set records the watermarks of m.
func (p *Prometheus) Set(m Metrics) {
	if p == nil {
		return
	}
	p.watermarks.WithLabelValues("last_commit_index").Set(float64(m.LastCommitIndex))
	p.watermarks.WithLabelValues("last_decided").Set(float64(m.LastDecidedRound))
	p.watermarks.WithLabelValues("highest_accepted").Set(float64(m.HighestAcceptedRound))
	p.watermarks.WithLabelValues("gc").Set(float64(m.GCRound))
	p.suspended.Set(float64(m.SuspendedBlocks))
}

func registerOnce(reg prometheus.Registerer, collector prometheus.Collector) prometheus.Collector {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			// Use the old collector from now on.
			return are.ExistingCollector
		}
		// Something else went wrong.
		panic(err)
	}
	return collector
}
