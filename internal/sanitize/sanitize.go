// Package sanitize redacts sensitive data from text before it is disclosed
// externally. It applies an ordered list of redaction rules and provides a
// strict post-hoc validator as a last-resort leak gate.
package sanitize

import "regexp"

// Rule is one redaction pass: a compiled pattern plus a replacement strategy.
// Rules are applied in declaration order; longer, more specific patterns come
// first so they are not partially consumed by shorter generic ones.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	// Replace maps a match (full match plus submatches, as returned by
	// FindStringSubmatch) to its redacted form. Replacement text must not
	// itself match any rule pattern, otherwise Sanitize would not be
	// idempotent.
	Replace func(groups []string) string
}

// Apply runs a single rule over the text.
func (r Rule) Apply(text string) string {
	return r.Pattern.ReplaceAllStringFunc(text, func(m string) string {
		return r.Replace(r.Pattern.FindStringSubmatch(m))
	})
}

// Sanitize applies every redaction rule in order. It is total (never fails)
// and idempotent: sanitizing already-sanitized text yields the same text.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	for _, rule := range Rules {
		text = rule.Apply(text)
	}
	return text
}

// Finding describes a high-confidence secret found by Validate.
type Finding struct {
	Rule   string
	Detail string
}

// Validate re-scans text against a strict subset of the secret families:
// provider key prefixes, GitHub tokens, AWS access keys, and PEM private-key
// headers. A non-empty result means the text must not leave the process.
//
// The subset deliberately excludes emails and IPs: their masked forms can
// still resemble the original pattern and would cause false positives.
func Validate(text string) []Finding {
	var findings []Finding
	for _, v := range validators {
		if v.re.MatchString(text) {
			findings = append(findings, Finding{Rule: v.name, Detail: v.detail})
		}
	}
	return findings
}
