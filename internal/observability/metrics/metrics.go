// Package metrics holds the Prometheus collectors for the HTTP API and auth flows.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values for the result and method labels.
const (
	ResultSuccess      = "success"
	ResultFailure      = "failure"
	ResultSecondFactor = "second_factor_required"
	ResultExpired      = "expired"
	ResultError        = "error"

	MethodTOTP         = "totp"
	MethodRecoveryCode = "recovery_code"
	MethodNone         = "none"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AuthRegistrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Total number of registration attempts.",
		},
		[]string{"result"},
	)

	AuthLoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total number of password login attempts.",
		},
		[]string{"result"},
	)

	AuthSecondFactorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_second_factor_total",
			Help: "Total number of second-factor submissions.",
		},
		[]string{"method", "result"},
	)

	AuthSessionsRevokedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_sessions_revoked_total",
			Help: "Total number of sessions revoked by their owner.",
		},
	)
)

// MustRegister registers every collector on reg, labelled with the service name.
// A nil reg uses prometheus.DefaultRegisterer.
func MustRegister(reg prometheus.Registerer, serviceName string) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, reg).MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		AuthRegistrationsTotal,
		AuthLoginsTotal,
		AuthSecondFactorTotal,
		AuthSessionsRevokedTotal,
	)
}

// ObserveHTTP records one finished request. path should be the route pattern, not the raw URL.
func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
