package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rentview"

var (
	once sync.Once

	wizardStep = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wizard_step_total",
			Help:      "Count of viewing wizard step entries.",
		},
		[]string{"step"},
	)

	wizardSubmission = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wizard_submission_total",
			Help:      "Count of viewing request submissions by result.",
		},
		[]string{"result"},
	)

	appointmentAction = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_action_total",
			Help:      "Count of dashboard actions by action and result.",
		},
		[]string{"action", "result"},
	)

	actionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "appointment_action_duration_seconds",
			Help:      "Time spent dispatching a dashboard action.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5},
		},
		[]string{"action"},
	)

	statusTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_transition_total",
			Help:      "Count of stored status transitions.",
		},
		[]string{"from", "to"},
	)

	registryRefresh = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_refresh_total",
			Help:      "Count of appointment list refetches by role and result.",
		},
		[]string{"role", "result"},
	)

	notificationSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_sent_total",
			Help:      "Count of counterpart notifications by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by handler.",
		},
		[]string{"handler"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			wizardStep,
			wizardSubmission,
			appointmentAction,
			actionDuration,
			statusTransition,
			registryRefresh,
			notificationSent,
			httpRequests,
		)
	})
}

func IncWizardStep(step string) {
	wizardStep.WithLabelValues(step).Inc()
}

func IncWizardSubmission(result string) {
	wizardSubmission.WithLabelValues(result).Inc()
}

func IncAppointmentAction(action, result string) {
	appointmentAction.WithLabelValues(action, result).Inc()
}

func ObserveActionDuration(action string, d time.Duration) {
	actionDuration.WithLabelValues(action).Observe(d.Seconds())
}

func IncStatusTransition(from, to string) {
	statusTransition.WithLabelValues(from, to).Inc()
}

func IncRegistryRefresh(role, result string) {
	registryRefresh.WithLabelValues(role, result).Inc()
}

func IncNotificationSent(result string) {
	notificationSent.WithLabelValues(result).Inc()
}

func IncHTTP(handler string) {
	httpRequests.WithLabelValues(handler).Inc()
}
