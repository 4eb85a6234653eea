// Package metrics holds the Prometheus counters the auth client updates.
// A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "authclient"

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

type Metrics struct {
	signIns           *prometheus.CounterVec
	refreshes         *prometheus.CounterVec
	persistenceErrors *prometheus.CounterVec
	notifications     prometheus.Counter
}

// New creates the counters and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_ins_total",
			Help:      "Sign-in attempts by method and result.",
		}, []string{"method", "result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refreshes by result.",
		}, []string{"result"}),
		persistenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Session persistence failures by kind.",
		}, []string{"kind"}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_notifications_total",
			Help:      "State changes fanned out to listeners.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.signIns, m.refreshes, m.persistenceErrors, m.notifications)
	}
	return m
}

func (m *Metrics) SignIn(method string, err error) {
	if m == nil {
		return
	}
	m.signIns.WithLabelValues(method, result(err)).Inc()
}

func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) PersistenceError(kind string) {
	if m == nil {
		return
	}
	m.persistenceErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Notified() {
	if m == nil {
		return
	}
	m.notifications.Inc()
}

// SignIns exposes the sign-in counter for inspection.
func (m *Metrics) SignIns() *prometheus.CounterVec { return m.signIns }

// Refreshes exposes the refresh counter for inspection.
func (m *Metrics) Refreshes() *prometheus.CounterVec { return m.refreshes }

// PersistenceErrors exposes the persistence error counter for inspection.
func (m *Metrics) PersistenceErrors() *prometheus.CounterVec { return m.persistenceErrors }

// Notifications exposes the notification counter for inspection.
func (m *Metrics) Notifications() prometheus.Counter { return m.notifications }

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
