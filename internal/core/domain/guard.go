package domain

import (
	"errors"
	"fmt"
	"strings"
)

// GuardOutcome is the terminal state of a single route guard evaluation.
//
//	Unauthenticated ─decode─▶ Authenticated ─onboarding─▶ Allowed
//	        │                       └──────────────────▶ RedirectedToOnboarding
//	        └──────────────────▶ Rejected
type GuardOutcome string

const (
	OutcomeAllowed                GuardOutcome = "allowed"
	OutcomeRejected               GuardOutcome = "rejected"
	OutcomeRedirectedToOnboarding GuardOutcome = "redirected_to_onboarding"
)

// TokenTransport names where a deployment carries the session token.
type TokenTransport string

const (
	TransportCookie TokenTransport = "cookie"
	TransportHeader TokenTransport = "header"
)

// OnboardingPolicy decides what the guard does when the onboarding check
// cannot complete.
type OnboardingPolicy string

const (
	OnboardingFailOpen   OnboardingPolicy = "fail-open"
	OnboardingFailClosed OnboardingPolicy = "fail-closed"
	OnboardingDisabled   OnboardingPolicy = "disabled"
)

var errUnknownValue = errors.New("unknown value")

// ParseTokenTransport parses "cookie" or "header".
func ParseTokenTransport(s string) (TokenTransport, error) {
	switch t := TokenTransport(strings.ToLower(strings.TrimSpace(s))); t {
	case TransportCookie, TransportHeader:
		return t, nil
	}
	return "", fmt.Errorf("token transport %q: %w", s, errUnknownValue)
}

// ParseOnboardingPolicy parses "fail-open", "fail-closed" or "disabled".
func ParseOnboardingPolicy(s string) (OnboardingPolicy, error) {
	switch p := OnboardingPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case OnboardingFailOpen, OnboardingFailClosed, OnboardingDisabled:
		return p, nil
	}
	return "", fmt.Errorf("onboarding policy %q: %w", s, errUnknownValue)
}
