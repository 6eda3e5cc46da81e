// Package escalate implements the per-service rate-limit and crash-loop state
// machine. It is a two-tier limiter: a short cooldown prevents report storms
// from a single recurring error, and a sliding-window crash counter detects a
// crash loop and halts automated reporting entirely.
package escalate

import (
	"sync"
	"time"
)

// Action is the escalator's verdict for one reportable event.
type Action int

const (
	// ActionReport means a report should be built and handed to the sink.
	ActionReport Action = iota
	// ActionSuppress means the event is dropped (cooldown or lockout).
	ActionSuppress
	// ActionLockout means this event crossed the crash threshold: the service
	// enters lockout and no report is sent for it or any later event.
	ActionLockout
)

func (a Action) String() string {
	switch a {
	case ActionReport:
		return "report"
	case ActionSuppress:
		return "suppress"
	case ActionLockout:
		return "lockout"
	default:
		return "unknown"
	}
}

// Verdict carries the action plus context for logging and audit.
type Verdict struct {
	Action Action
	// Remaining is the time left in the cooldown when Action is ActionSuppress
	// because of the cooldown. Zero otherwise.
	Remaining time.Duration
	// CrashCount is the number of reportable events within the crash window,
	// including this one.
	CrashCount int
	// LockedOut is true when the service is (now or already) in lockout.
	LockedOut bool
}

// state is the per-service escalation state. A service is in lockout when
// lockout is true, in cooldown when lastReport is set and younger than the
// cooldown interval, and in the normal state otherwise.
type state struct {
	lastReport time.Time // zero means no report sent yet
	crashes    []time.Time
	lockout    bool
}

// Escalator tracks escalation state for all services. Safe for concurrent
// use; Decide holds no lock while callers sanitize or submit.
type Escalator struct {
	mu       sync.Mutex
	cooldown time.Duration
	window   time.Duration
	limit    int
	services map[string]*state

	now func() time.Time
}

// New creates an Escalator with the given tunables.
func New(cooldown, crashWindow time.Duration, crashLimit int) *Escalator {
	return &Escalator{
		cooldown: cooldown,
		window:   crashWindow,
		limit:    crashLimit,
		services: make(map[string]*state),
		now:      time.Now,
	}
}

// Decide records one reportable event for a service and returns the verdict.
// Non-reportable events must not be passed in: only genuine failure signals
// mutate escalation state.
//
// Every reportable event counts toward the crash window, including ones the
// cooldown suppresses; the cooldown gates reporting, not crash accounting.
// Lockout supersedes both: once the windowed count reaches the limit the
// service stops reporting until explicitly reset.
func (e *Escalator) Decide(service string) Verdict {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	st := e.services[service]
	if st == nil {
		st = &state{}
		e.services[service] = st
	}

	if st.lockout {
		return Verdict{Action: ActionSuppress, LockedOut: true, CrashCount: e.prune(st, now)}
	}

	st.crashes = append(st.crashes, now)
	count := e.prune(st, now)

	if count >= e.limit {
		st.lockout = true
		return Verdict{Action: ActionLockout, CrashCount: count, LockedOut: true}
	}

	if !st.lastReport.IsZero() {
		elapsed := now.Sub(st.lastReport)
		if elapsed < e.cooldown {
			return Verdict{Action: ActionSuppress, Remaining: e.cooldown - elapsed, CrashCount: count}
		}
	}

	st.lastReport = now
	return Verdict{Action: ActionReport, CrashCount: count}
}

// prune drops crash timestamps older than the window and returns the count.
func (e *Escalator) prune(st *state, now time.Time) int {
	cutoff := now.Add(-e.window)
	kept := st.crashes[:0]
	for _, ts := range st.crashes {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	st.crashes = kept
	return len(kept)
}

// Reset clears the service's lockout and crash history. It exists for
// operator intervention only and is never called from the event path.
func (e *Escalator) Reset(service string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.services, service)
}

// LockedOut reports whether the service is currently in lockout.
func (e *Escalator) LockedOut(service string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.services[service]
	return st != nil && st.lockout
}

// LockedOutServices returns the names of all services currently in lockout.
func (e *Escalator) LockedOutServices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for name, st := range e.services {
		if st.lockout {
			out = append(out, name)
		}
	}
	return out
}
