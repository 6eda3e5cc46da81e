package reporter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emonet/fixwatch/internal/event"
)

// DigestSummary holds aggregated incident counts for a digest period.
type DigestSummary struct {
	InstanceID string
	Since      time.Time
	Until      time.Time

	Total      int
	Reported   int
	Suppressed int
	Lockouts   int

	ByService map[string]int
	ByReason  map[string]int
	LockedOut []string // services that hit lockout in the period
}

// BuildDigest aggregates a list of incidents into a DigestSummary.
func BuildDigest(instanceID string, incidents []*event.Incident, since, until time.Time) *DigestSummary {
	d := &DigestSummary{
		InstanceID: instanceID,
		Since:      since,
		Until:      until,
		ByService:  make(map[string]int),
		ByReason:   make(map[string]int),
	}

	lockoutSeen := make(map[string]bool)

	for _, inc := range incidents {
		d.Total++
		d.ByService[inc.Service]++
		if inc.Reason != "" {
			d.ByReason[strings.ToLower(inc.Reason)]++
		}

		switch inc.Decision {
		case event.DecisionReport:
			d.Reported++
		case event.DecisionSuppressed:
			d.Suppressed++
		case event.DecisionLockout:
			d.Lockouts++
			if !lockoutSeen[inc.Service] {
				lockoutSeen[inc.Service] = true
				d.LockedOut = append(d.LockedOut, inc.Service)
			}
		}
	}

	sort.Strings(d.LockedOut)
	return d
}

// FormatDigest formats a DigestSummary as human-readable text.
func FormatDigest(d *DigestSummary) string {
	var b strings.Builder

	dateRange := fmt.Sprintf("%s - %s",
		d.Since.Local().Format("Jan 02"),
		d.Until.Local().Format("Jan 02"))

	fmt.Fprintf(&b, "=== %s ===\n", d.InstanceID)
	fmt.Fprintf(&b, "Period: %s\n\n", dateRange)

	fmt.Fprintf(&b, "Incidents:   %d", d.Total)
	if d.Total > 0 {
		fmt.Fprintf(&b, " (%s)", formatBreakdown(d.ByService))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Reported:    %d\n", d.Reported)
	fmt.Fprintf(&b, "Suppressed:  %d\n", d.Suppressed)

	fmt.Fprintf(&b, "Lockouts:    %d", d.Lockouts)
	if len(d.LockedOut) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(d.LockedOut, ", "))
	}
	b.WriteString("\n")

	if len(d.ByReason) > 0 {
		fmt.Fprintf(&b, "Triggers:    %s\n", formatBreakdown(d.ByReason))
	}

	return b.String()
}

// FormatDigestTitle generates the title for a digest.
func FormatDigestTitle(since, until time.Time) string {
	return fmt.Sprintf("fixwatch digest (%s - %s)",
		since.Local().Format("Jan 02"),
		until.Local().Format("Jan 02"))
}

// formatBreakdown turns a map[string]int into "foo ×2, bar ×1" sorted by count desc.
func formatBreakdown(m map[string]int) string {
	type entry struct {
		name  string
		count int
	}

	entries := make([]entry, 0, len(m))
	for name, count := range m {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s ×%d", e.name, e.count)
	}
	return strings.Join(parts, ", ")
}
