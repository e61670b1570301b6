package workers

import (
	"time"

	"github.com/platebook/importer-backend/internal/observability"
)

// metricsObserver exports per-action timings. A nil Metrics makes every call
// a no-op, so wiring can attach it unconditionally.
type metricsObserver struct {
	metrics *observability.Metrics
}

func NewMetricsObserver(m *observability.Metrics) Observer {
	return &metricsObserver{metrics: m}
}

func (o *metricsObserver) ActionStarted(*ActionContext, string) {}

func (o *metricsObserver) ActionCompleted(ac *ActionContext, action string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.metrics.ObserveAction(ac.QueueName, action, status, d.Seconds())
}
