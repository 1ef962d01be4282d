package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Posting metrics
	EventsProcessed *prometheus.CounterVec
	EntriesWritten  *prometheus.CounterVec
	PostingDuration *prometheus.HistogramVec
	PostingErrors   *prometheus.CounterVec
	PoolsSeeded     prometheus.Counter
	TxRetries       prometheus.Counter

	// Recalculation metrics
	SoftDeletes         *prometheus.CounterVec
	EntriesRecalculated *prometheus.CounterVec
	RebuildDuration     prometheus.Histogram

	// Consistency metrics
	BalanceMismatches prometheus.Gauge
	BalancesRepaired  prometheus.Counter

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Outbox metrics
	EventsPublished *prometheus.CounterVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxledger_events_processed_total",
				Help: "Total domain events posted to the ledger by type",
			},
			[]string{"event"},
		),
		EntriesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxledger_entries_written_total",
				Help: "Total ledger entries written by account kind",
			},
			[]string{"kind"},
		),
		PostingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fxledger_posting_duration_seconds",
				Help:    "Duration of posting operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event"},
		),
		PostingErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxledger_posting_errors_total",
				Help: "Total posting errors by event",
			},
			[]string{"event"},
		),
		PoolsSeeded: factory.NewCounter(prometheus.CounterOpts{
			Name: "fxledger_pools_seeded_total",
			Help: "Total currency pools created with a seed balance",
		}),
		TxRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "fxledger_tx_retries_total",
			Help: "Total transactions retried after a deadlock or serialization failure",
		}),

		SoftDeletes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxledger_soft_deletes_total",
				Help: "Total orders and documents soft-deleted",
			},
			[]string{"source"},
		),
		EntriesRecalculated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxledger_entries_recalculated_total",
				Help: "Total entries whose snapshot was rewritten by a recalculation",
			},
			[]string{"algorithm"},
		),
		RebuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fxledger_rebuild_duration_seconds",
			Help:    "Duration of full ledger rebuilds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		}),

		BalanceMismatches: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fxledger_balance_mismatches",
			Help: "Mismatching accounts found by the last consistency check",
		}),
		BalancesRepaired: factory.NewCounter(prometheus.CounterOpts{
			Name: "fxledger_balances_repaired_total",
			Help: "Total balances overwritten from history",
		}),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxledger_balance_cache_lookups_total",
				Help: "Balance cache lookups by result",
			},
			[]string{"result"},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fxledger_outbox_events_published_total",
				Help: "Outbox events published by status",
			},
			[]string{"status"},
		),
	}
}

// The helpers below are nil-safe so use cases can run without metrics.

// ObservePosting records a posting outcome.
func (m *Metrics) ObservePosting(event string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.PostingDuration.WithLabelValues(event).Observe(time.Since(started).Seconds())
	if err != nil {
		m.PostingErrors.WithLabelValues(event).Inc()
		return
	}
	m.EventsProcessed.WithLabelValues(event).Inc()
}

// AddEntries counts written entries for a kind.
func (m *Metrics) AddEntries(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.EntriesWritten.WithLabelValues(kind).Add(float64(n))
}

// IncPoolSeeded counts a seeded pool.
func (m *Metrics) IncPoolSeeded() {
	if m == nil {
		return
	}
	m.PoolsSeeded.Inc()
}

// IncTxRetry counts a retried transaction.
func (m *Metrics) IncTxRetry() {
	if m == nil {
		return
	}
	m.TxRetries.Inc()
}

// ObserveSoftDelete records a soft delete and the entries it replayed.
func (m *Metrics) ObserveSoftDelete(source string, replayed int) {
	if m == nil {
		return
	}
	m.SoftDeletes.WithLabelValues(source).Inc()
	m.EntriesRecalculated.WithLabelValues("soft_delete").Add(float64(replayed))
}

// ObserveRebuild records a full date-ordered rebuild.
func (m *Metrics) ObserveRebuild(started time.Time, replayed int) {
	if m == nil {
		return
	}
	m.RebuildDuration.Observe(time.Since(started).Seconds())
	m.EntriesRecalculated.WithLabelValues("transaction_date").Add(float64(replayed))
}

// SetMismatches records the result of a consistency check.
func (m *Metrics) SetMismatches(n int) {
	if m == nil {
		return
	}
	m.BalanceMismatches.Set(float64(n))
}

// AddRepaired counts balances overwritten from history.
func (m *Metrics) AddRepaired(n int) {
	if m == nil {
		return
	}
	m.BalancesRepaired.Add(float64(n))
}

// CacheResult counts a balance cache hit or miss.
func (m *Metrics) CacheResult(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// Published counts an outbox publish attempt.
func (m *Metrics) Published(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.EventsPublished.WithLabelValues("error").Inc()
		return
	}
	m.EventsPublished.WithLabelValues("ok").Inc()
}
