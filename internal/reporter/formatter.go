package reporter

import (
	"fmt"
	"strings"
	"time"
)

// FormatTitle builds the issue title for a service incident.
func FormatTitle(service string, ts time.Time) string {
	return fmt.Sprintf("[AUTO-FIX] %s - %s service failure", service, ts.Format("01/02 15:04"))
}

// FormatBody composes the markdown issue body: header, sanitized log excerpt,
// and the sanitized source snippets.
func FormatBody(b *Bundle) string {
	var sb strings.Builder

	sb.WriteString("## Automated incident report\n")
	fmt.Fprintf(&sb, "**Service**: `%s`\n", b.Service)
	fmt.Fprintf(&sb, "**Time**: `%s`\n", b.Timestamp.Format("2006-01-02 15:04:05"))
	sb.WriteString("**Sanitization**: passed redaction and leak validation\n\n")

	sb.WriteString("### Log excerpt (sanitized)\n")
	sb.WriteString("```\n")
	sb.WriteString(b.Excerpt)
	sb.WriteString("\n```\n")

	if len(b.Snippets) > 0 {
		sb.WriteString("\n### Related source files (sanitized)\n")
		for _, sn := range b.Snippets {
			fmt.Fprintf(&sb, "\n#### `%s`\n", sn.Filename)
			fmt.Fprintf(&sb, "```%s\n%s\n```\n", sn.Lang, sn.Body)
		}
	}

	sb.WriteString("\n---\n")
	sb.WriteString("*Filed automatically by fixwatch. Logs and code were redacted before submission.*\n")

	return sb.String()
}
