// Package metrics defines the Prometheus metrics of the authentication
// service. Metrics are registered on the default registry at init through
// promauto; HTTP request metrics come from echoprometheus in the router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "authgate"

// ── Guard ─────────────────────────────────────────────────────────────────────

// GuardDecisionsTotal counts route guard decisions.
// Label:
//   - outcome: "allowed", "rejected" or "redirected_to_onboarding"
var GuardDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guard_decisions_total",
		Help:      "Total number of route guard decisions, by outcome.",
	},
	[]string{"outcome"},
)

// OnboardingCheckDuration measures calls to the onboarding checker.
// Label:
//   - result: "completed", "pending" or "error"
var OnboardingCheckDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "onboarding_check_duration_seconds",
		Help:      "Duration of onboarding status checks made by the guard.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"result"},
)

// ── Sign-in ───────────────────────────────────────────────────────────────────

// LoginsTotal counts sign-in attempts.
// Labels:
//   - method: "password", "magic_link" or "oauth"
//   - result: "success" or "failure"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of sign-in attempts, by method and result.",
	},
	[]string{"method", "result"},
)

// MagicLinksRequestedTotal counts accepted magic link requests, whether or
// not a link was actually sent.
var MagicLinksRequestedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "magic_links_requested_total",
		Help:      "Total number of accepted magic link requests.",
	},
)

// RegistrationsTotal counts accounts created through POST /auth/register.
var RegistrationsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Total number of registered accounts.",
	},
)

const (
	MethodPassword  = "password"
	MethodMagicLink = "magic_link"
	MethodOAuth     = "oauth"
)

// ObserveLogin records one sign-in attempt.
func ObserveLogin(method string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	LoginsTotal.WithLabelValues(method, result).Inc()
}
