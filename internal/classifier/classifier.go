// Package classifier decides whether a log increment represents a genuine
// failure for a watched service.
package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/emonet/fixwatch/internal/config"
)

// Classifier applies per-service suppression signatures and a coarse failure
// keyword filter. Suppression always wins: an increment matching a service's
// benign-chatter signature is never reportable regardless of keyword content,
// which keeps the false-positive rate low during routine restarts.
type Classifier struct {
	suppress map[string]*regexp.Regexp
}

// New compiles each service's suppression rule.
func New(services []config.ServiceConfig) (*Classifier, error) {
	c := &Classifier{suppress: make(map[string]*regexp.Regexp)}
	for _, svc := range services {
		if svc.Suppress == "" {
			continue
		}
		re, err := regexp.Compile(svc.Suppress)
		if err != nil {
			return nil, fmt.Errorf("service %q: compiling suppress pattern: %w", svc.Name, err)
		}
		c.suppress[svc.Name] = re
	}
	return c, nil
}

// IsReportable reports whether the increment contains a failure signal for
// the given service, and if so which keyword triggered it.
func (c *Classifier) IsReportable(service, increment string) (bool, string) {
	if increment == "" {
		return false, ""
	}

	if re, ok := c.suppress[service]; ok && re.MatchString(increment) {
		return false, ""
	}

	for _, kw := range failureKeywords {
		if strings.Contains(increment, kw) {
			return true, kw
		}
	}
	return false, ""
}
