package permanent

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Row actions counted by pebble_permanent_rows_total.
const (
	actionSoftDeleted = "soft_deleted"
	actionHardDeleted = "hard_deleted"
	actionNullified   = "nullified"
	actionRestored    = "restored"
)

type metrics struct {
	rows           *prometheus.CounterVec
	deleteDuration prometheus.Histogram
}

func newMetrics() *metrics {
	return &metrics{
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pebble",
				Subsystem: "permanent",
				Name:      "rows_total",
				Help:      "Rows changed by deletes and restores, by table and action",
			},
			[]string{"table", "action"},
		),
		deleteDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "pebble",
				Subsystem: "permanent",
				Name:      "delete_duration_seconds",
				Help:      "Duration of delete operations including collection",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

// register adds the collectors to reg, adopting collectors another engine
// already registered there.
func (m *metrics) register(reg prometheus.Registerer) error {
	if err := reg.Register(m.rows); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return err
		}
		m.rows = existing
	}
	if err := reg.Register(m.deleteDuration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
		existing, ok := are.ExistingCollector.(prometheus.Histogram)
		if !ok {
			return err
		}
		m.deleteDuration = existing
	}
	return nil
}

func (m *metrics) add(table, action string, n int64) {
	if n > 0 {
		m.rows.WithLabelValues(table, action).Add(float64(n))
	}
}
