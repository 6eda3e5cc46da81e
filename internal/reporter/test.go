package reporter

import (
	"fmt"
	"time"
)

// TestBundle creates a synthetic bundle for verifying sink connectivity and
// credentials. It carries no real log content.
func TestBundle(instanceID string) *Bundle {
	now := time.Now()
	b := &Bundle{
		Service:   "fixwatch-test",
		Timestamp: now,
		Excerpt:   fmt.Sprintf("Test report from fixwatch on %s.\nIf you see this issue, the sink is configured correctly.", instanceID),
	}
	b.Title = fmt.Sprintf("[AUTO-FIX] connectivity test - %s", now.Format("01/02 15:04"))
	b.Body = FormatBody(b)
	return b
}
