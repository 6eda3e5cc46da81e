// Package event defines the core data model for fixwatch incidents.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Decision records what the escalator decided to do with an incident.
type Decision string

const (
	// DecisionReport means a sanitized bundle was (or will be) handed to the sink.
	DecisionReport Decision = "report"
	// DecisionSuppressed means the incident was dropped by the cooldown or an
	// active lockout.
	DecisionSuppressed Decision = "suppressed"
	// DecisionLockout means this incident crossed the crash-loop threshold and
	// moved the service into lockout. No report is sent for it.
	DecisionLockout Decision = "lockout"
)

// Incident is a reportable error detected in a service's log output.
type Incident struct {
	ID        string
	Service   string
	Timestamp time.Time
	// Reason is the failure keyword that made the increment reportable.
	Reason string
	// Excerpt is the raw log increment. It never leaves the process without
	// passing through the sanitizer first.
	Excerpt string

	Decision  Decision
	Delivered bool
	IssueURL  string
}

// New creates an Incident with a generated UUID.
func New(service string, ts time.Time, reason, excerpt string) *Incident {
	return &Incident{
		ID:        uuid.NewString(),
		Service:   service,
		Timestamp: ts,
		Reason:    reason,
		Excerpt:   excerpt,
	}
}

// Label returns a human-readable label for the decision.
func (d Decision) Label() string {
	switch d {
	case DecisionReport:
		return "Reported"
	case DecisionSuppressed:
		return "Suppressed"
	case DecisionLockout:
		return "Lockout"
	default:
		return string(d)
	}
}
