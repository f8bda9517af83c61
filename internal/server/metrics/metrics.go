// Package metrics exposes prometheus counters for the authentication core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the counters the services increment. Label values are
// closed sets chosen by the callers, never user input.
type Metrics struct {
	Logins      *prometheus.CounterVec // method: password|otp_email|otp_phone|federated
	Rotations   *prometheus.CounterVec // outcome: ok|rejected|disabled
	OtpSends    *prometheus.CounterVec // channel: email|phone, outcome: ok|failed
	OtpVerifies *prometheus.CounterVec // channel + outcome: ok|rejected
}

// New registers the counters on reg and returns them. Tests pass a private
// registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "logins_total",
			Help:      "Successful logins by method.",
		}, []string{"method"}),
		Rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "refresh_rotations_total",
			Help:      "Refresh credential rotations by outcome.",
		}, []string{"outcome"}),
		OtpSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "otp_sends_total",
			Help:      "One-time-code issue operations by channel and outcome.",
		}, []string{"channel", "outcome"}),
		OtpVerifies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "authcore",
			Name:      "otp_verifies_total",
			Help:      "One-time-code verification attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
	}

	reg.MustRegister(m.Logins, m.Rotations, m.OtpSends, m.OtpVerifies)
	return m
}
