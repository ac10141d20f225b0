package telegram

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the adapter's Prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	apiCalls      *prometheus.CounterVec
	apiLatency    *prometheus.HistogramVec
	updates       *prometheus.CounterVec
	handlerErrors prometheus.Counter
	pollErrors    prometheus.Counter
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tgbridge",
			Subsystem: "telegram",
			Name:      "api_calls_total",
			Help:      "Bot API calls by method and outcome.",
		}, []string{"method", "outcome"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tgbridge",
			Subsystem: "telegram",
			Name:      "api_call_duration_seconds",
			Help:      "Bot API call latency, retries included.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tgbridge",
			Subsystem: "telegram",
			Name:      "updates_total",
			Help:      "Inbound updates by classification result.",
		}, []string{"result"}),
		handlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tgbridge",
			Subsystem: "telegram",
			Name:      "handler_errors_total",
			Help:      "Events whose handler returned an error or panicked.",
		}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tgbridge",
			Subsystem: "telegram",
			Name:      "poll_errors_total",
			Help:      "Failed getUpdates calls.",
		}),
	}
}

// Register adds the collectors to reg. Collectors registered earlier by
// another instance are reused.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	var errs []error
	m.apiCalls = registerOrReuse(reg, m.apiCalls, &errs)
	m.apiLatency = registerOrReuse(reg, m.apiLatency, &errs)
	m.updates = registerOrReuse(reg, m.updates, &errs)
	m.handlerErrors = registerOrReuse(reg, m.handlerErrors, &errs)
	m.pollErrors = registerOrReuse(reg, m.pollErrors, &errs)
	return errors.Join(errs...)
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C, errs *[]error) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		*errs = append(*errs, err)
	}
	return c
}

func (m *Metrics) observeCall(method string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.apiCalls.WithLabelValues(method, errorOutcome(err)).Inc()
	m.apiLatency.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) observeUpdate(result string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(result).Inc()
}

func (m *Metrics) observeHandlerError() {
	if m == nil {
		return
	}
	m.handlerErrors.Inc()
}

func (m *Metrics) observePollError() {
	if m == nil {
		return
	}
	m.pollErrors.Inc()
}

func errorOutcome(err error) string {
	var (
		failed *ActionFailed
		netErr *NetworkError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &failed):
		return "action_failed"
	case errors.As(err, &netErr):
		return "network_error"
	default:
		return "error"
	}
}
