package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registration stages reported on RegistrationFailures
const (
	StageValidation = "validation"
	StageBegin      = "begin"
	StageSubscriber = "insert_subscriber"
	StageToken      = "insert_token"
	StageCommit     = "commit"
	StageEmail      = "email"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	SubscriptionsRegistered prometheus.Counter
	SubscriptionsConfirmed  prometheus.Counter
	ConfirmationEmails      *prometheus.CounterVec
	RegistrationFailures    *prometheus.CounterVec
	RedeliveryQueued        prometheus.Counter
	HTTPRequestDuration     *prometheus.HistogramVec
}

// New creates the metrics and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubscriptionsRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailbolt_subscriptions_registered_total",
			Help: "Subscribers committed in pending_confirmation state",
		}),
		SubscriptionsConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailbolt_subscriptions_confirmed_total",
			Help: "Successful confirmation requests",
		}),
		ConfirmationEmails: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailbolt_confirmation_emails_total",
			Help: "Confirmation email delivery attempts by result",
		}, []string{"result"}),
		RegistrationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mailbolt_registration_failures_total",
			Help: "Registration requests that failed, by stage",
		}, []string{"stage"}),
		RedeliveryQueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "mailbolt_confirmation_redelivery_queued_total",
			Help: "Confirmation emails queued for background redelivery",
		}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailbolt_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// EmailSent records a delivered confirmation email
func (m *Metrics) EmailSent() {
	m.ConfirmationEmails.WithLabelValues("sent").Inc()
}

// EmailFailed records a failed confirmation email attempt
func (m *Metrics) EmailFailed() {
	m.ConfirmationEmails.WithLabelValues("failed").Inc()
}

// RegistrationFailed records a registration failing at stage
func (m *Metrics) RegistrationFailed(stage string) {
	m.RegistrationFailures.WithLabelValues(stage).Inc()
}

// ObserveHTTPRequest records one served request
func (m *Metrics) ObserveHTTPRequest(method, route, status string, d time.Duration) {
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
