package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters is the request/webhook counting capability handed to handlers.
type Counters interface {
	ObserveRequest(method, path string, status int)
	ObserveWebhook(result string)
}

// Prometheus implements Counters with two counter vectors.
type Prometheus struct {
	HTTPRequests    *prometheus.CounterVec
	WebhookRequests *prometheus.CounterVec
}

// New creates the counters and registers them on r.
func New(r prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		WebhookRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_requests_total",
				Help: "Total webhook requests by outcome",
			},
			[]string{"result"}, // created|duplicate|invalid_signature|validation_error|store_error|rate_limited|too_large
		),
	}
	r.MustRegister(
		p.HTTPRequests,
		p.WebhookRequests,
	)
	return p
}

func (p *Prometheus) ObserveRequest(method, path string, status int) {
	p.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

func (p *Prometheus) ObserveWebhook(result string) {
	p.WebhookRequests.WithLabelValues(result).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveRequest(string, string, int) {}
func (Nop) ObserveWebhook(string)              {}
