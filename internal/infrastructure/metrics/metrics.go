package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fpp_app"

// Metrics groups the collectors exported by the app layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	apiRequests        *prometheus.CounterVec
	apiRetries         prometheus.Counter
	deprecationNotices prometheus.Counter
	webhookDeliveries  *prometheus.CounterVec
	webhookRegisters   *prometheus.CounterVec
	oauthCompletions   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Platform API attempts by HTTP method and status code.",
		}, []string{"method", "code"}),
		apiRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Platform API attempts that were retried after a retriable failure.",
		}),
		deprecationNotices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_deprecation_notices_total",
			Help:      "Deprecation notices logged after deduplication.",
		}),
		webhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Inbound webhook deliveries by topic and response status.",
		}, []string{"topic", "status"}),
		webhookRegisters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_registrations_total",
			Help:      "Webhook registrations by topic and outcome.",
		}, []string{"topic", "outcome"}),
		oauthCompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_completions_total",
			Help:      "Completed OAuth callbacks by access mode.",
		}, []string{"mode"}),
	}

	reg.MustRegister(
		m.apiRequests,
		m.apiRetries,
		m.deprecationNotices,
		m.webhookDeliveries,
		m.webhookRegisters,
		m.oauthCompletions,
	)

	return m
}

func (m *Metrics) APIRequest(method string, code int) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (m *Metrics) APIRetry() {
	if m == nil {
		return
	}
	m.apiRetries.Inc()
}

func (m *Metrics) DeprecationNotice() {
	if m == nil {
		return
	}
	m.deprecationNotices.Inc()
}

func (m *Metrics) WebhookDelivery(topic string, status int) {
	if m == nil {
		return
	}
	m.webhookDeliveries.WithLabelValues(topic, strconv.Itoa(status)).Inc()
}

func (m *Metrics) WebhookRegistration(topic string, success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.webhookRegisters.WithLabelValues(topic, outcome).Inc()
}

func (m *Metrics) OAuthCompletion(online bool) {
	if m == nil {
		return
	}
	mode := "offline"
	if online {
		mode = "online"
	}
	m.oauthCompletions.WithLabelValues(mode).Inc()
}
