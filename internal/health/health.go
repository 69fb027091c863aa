// Package health decides from rendered page text whether the remote session
// is alive and whether the browser is signed in.
package health

import (
	"strings"

	"github.com/xkilldash9x/nbwarden/internal/config"
)

// Markers are the text fragments that decide session health.
type Markers struct {
	Failure []string
	Success []string
}

// MarkersFromConfig selects the markers configured in the health section.
func MarkersFromConfig(cfg config.HealthConfig) Markers {
	return Markers{
		Failure: cfg.FailureMarkers,
		Success: cfg.SuccessMarkers,
	}
}

// Status is the outcome of one health evaluation.
type Status struct {
	Healthy bool
	Reason  string
}

// Evaluate applies the health predicate to page text. Any failure marker makes
// the session unhealthy; otherwise at least one success marker must be present.
// Matching is case-sensitive.
func Evaluate(text string, m Markers) Status {
	for _, marker := range m.Failure {
		if marker != "" && strings.Contains(text, marker) {
			return Status{Healthy: false, Reason: "failure marker present: " + marker}
		}
	}
	for _, marker := range m.Success {
		if marker != "" && strings.Contains(text, marker) {
			return Status{Healthy: true, Reason: "success marker present: " + marker}
		}
	}
	return Status{Healthy: false, Reason: "no success marker present"}
}

// SignInMarkers describe a signed-in page.
type SignInMarkers struct {
	Indicators []string
	Prompt     string
}

// SignedIn reports whether text looks like a signed-in page: any indicator is
// present, or the sign-in prompt is absent.
func SignedIn(text string, m SignInMarkers) bool {
	for _, indicator := range m.Indicators {
		if indicator != "" && strings.Contains(text, indicator) {
			return true
		}
	}
	if m.Prompt == "" {
		return false
	}
	return !strings.Contains(text, m.Prompt)
}
