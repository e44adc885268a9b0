// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OutcomeOK labels a successful operation; failures use the error kind name.
const OutcomeOK = "ok"

// Recorder is what services and middleware report to.
type Recorder interface {
	RecordRegistration(outcome string)
	RecordVerification(outcome string)
	RecordLogin(outcome string)
	RecordResend(outcome string)
	RecordMailFailure()
	RecordStagedSwept(count int64)
	RecordEnhancement(outcome string, d time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	registrations  *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	logins         *prometheus.CounterVec
	resends        *prometheus.CounterVec
	mailFailures   prometheus.Counter
	stagedSwept    prometheus.Counter
	enhancements   *prometheus.CounterVec
	enhanceLatency prometheus.Histogram
	httpStatus     *prometheus.CounterVec
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endpix_registrations_total",
			Help: "Registration attempts by outcome.",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endpix_verifications_total",
			Help: "OTP verification attempts by outcome.",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endpix_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		resends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endpix_otp_resends_total",
			Help: "OTP resend requests by outcome.",
		}, []string{"outcome"}),
		mailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "endpix_mail_failures_total",
			Help: "Outbound OTP emails that failed to send.",
		}),
		stagedSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "endpix_staged_swept_total",
			Help: "Expired staged identities removed by the sweeper.",
		}),
		enhancements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endpix_enhancements_total",
			Help: "Image enhancement requests by outcome.",
		}, []string{"outcome"}),
		enhanceLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "endpix_enhancement_duration_seconds",
			Help:    "Time spent in the generative image API and storage per enhancement.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endpix_http_responses_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.registrations,
		c.verifications,
		c.logins,
		c.resends,
		c.mailFailures,
		c.stagedSwept,
		c.enhancements,
		c.enhanceLatency,
		c.httpStatus,
	)
	return c
}

func (c *Collector) RecordRegistration(outcome string) { c.registrations.WithLabelValues(outcome).Inc() }
func (c *Collector) RecordVerification(outcome string) { c.verifications.WithLabelValues(outcome).Inc() }
func (c *Collector) RecordLogin(outcome string)        { c.logins.WithLabelValues(outcome).Inc() }
func (c *Collector) RecordResend(outcome string)       { c.resends.WithLabelValues(outcome).Inc() }
func (c *Collector) RecordMailFailure()                { c.mailFailures.Inc() }

func (c *Collector) RecordStagedSwept(count int64) {
	if count > 0 {
		c.stagedSwept.Add(float64(count))
	}
}

func (c *Collector) RecordEnhancement(outcome string, d time.Duration) {
	c.enhancements.WithLabelValues(outcome).Inc()
	c.enhanceLatency.Observe(d.Seconds())
}

func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler serves the Prometheus exposition format for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything. Used where metrics are not wired, e.g. tests.
type Nop struct{}

func (Nop) RecordRegistration(string)               {}
func (Nop) RecordVerification(string)               {}
func (Nop) RecordLogin(string)                      {}
func (Nop) RecordResend(string)                     {}
func (Nop) RecordMailFailure()                      {}
func (Nop) RecordStagedSwept(int64)                 {}
func (Nop) RecordEnhancement(string, time.Duration) {}
func (Nop) RecordHTTPStatus(int)                    {}
