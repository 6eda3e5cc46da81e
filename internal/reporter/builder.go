// Package reporter assembles bounded, sanitized incident bundles and hands
// them to the external issue sink.
package reporter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/emonet/fixwatch/internal/config"
	"github.com/emonet/fixwatch/internal/sanitize"
)

const (
	// MaxExcerptChars bounds the sanitized log excerpt; the most recent
	// content is kept when the increment is longer.
	MaxExcerptChars = 3000
	// MinExcerptChars is the minimum sanitized excerpt length worth
	// reporting. Shorter excerpts abort with ErrNothingToReport.
	MinExcerptChars = 10
	// MaxSnippetFiles bounds how many source files a bundle may carry.
	MaxSnippetFiles = 2
	// MaxSnippetChars bounds each source snippet.
	MaxSnippetChars = 2000

	truncationMarker = "\n... (truncated) ..."
)

// ErrNothingToReport means the sanitized excerpt was too short to be worth a
// report. It is a skip condition, not a failure.
var ErrNothingToReport = errors.New("sanitized excerpt below minimum length")

// LeakError aborts a report because the validator found a high-confidence
// secret in the composed bundle text. Nothing partial is ever submitted.
type LeakError struct {
	Findings []sanitize.Finding
}

func (e *LeakError) Error() string {
	names := make([]string, len(e.Findings))
	for i, f := range e.Findings {
		names[i] = f.Rule
	}
	return fmt.Sprintf("sanitization leak detected: %s", strings.Join(names, ", "))
}

// Snippet is one sanitized source file excerpt.
type Snippet struct {
	Filename string
	Lang     string
	Body     string
}

// Bundle is the sanitized, size-bounded incident package prepared for the
// sink. Immutable once built.
type Bundle struct {
	Service   string
	Timestamp time.Time
	Excerpt   string
	Snippets  []Snippet
	Title     string
	Body      string
}

// Builder constructs bundles. The zero-value-usable now hook exists for tests.
type Builder struct {
	now func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// Build sanitizes and bounds the log increment, attaches up to
// MaxSnippetFiles recently-modified source files from the service's code
// directory, composes the final bundle text, and re-validates the whole
// composition. On any validator finding the entire report is aborted.
func (b *Builder) Build(svc *config.ServiceConfig, increment string) (*Bundle, error) {
	// Keep the most recent content: failures land at the end of the log.
	raw := increment
	if len(raw) > MaxExcerptChars {
		raw = raw[len(raw)-MaxExcerptChars:]
	}

	excerpt := sanitize.Sanitize(raw)
	if len(strings.TrimSpace(excerpt)) < MinExcerptChars {
		return nil, ErrNothingToReport
	}

	snippets := collectSnippets(svc)

	now := b.now()
	bundle := &Bundle{
		Service:   svc.Name,
		Timestamp: now,
		Excerpt:   excerpt,
		Snippets:  snippets,
	}
	bundle.Title = FormatTitle(svc.Name, now)
	bundle.Body = FormatBody(bundle)

	// Validate the whole composed text, not just the pieces: concatenation
	// is what actually leaves the process.
	if findings := sanitize.Validate(bundle.Body); len(findings) > 0 {
		return nil, &LeakError{Findings: findings}
	}

	return bundle, nil
}

// collectSnippets returns the most-recently-modified source files under the
// service's code directory, sanitized and truncated. Any per-file read error
// just skips that file: snippets are best-effort context, not evidence.
func collectSnippets(svc *config.ServiceConfig) []Snippet {
	if svc.CodeDir == "" {
		return nil
	}

	entries, err := os.ReadDir(svc.CodeDir)
	if err != nil {
		return nil
	}

	type candidate struct {
		name    string
		modTime time.Time
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if svc.CodeExt != "" && !strings.HasSuffix(entry.Name(), svc.CodeExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{name: entry.Name(), modTime: info.ModTime()})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})
	if len(candidates) > MaxSnippetFiles {
		candidates = candidates[:MaxSnippetFiles]
	}

	lang := strings.TrimPrefix(svc.CodeExt, ".")
	var snippets []Snippet
	for _, c := range candidates {
		data, err := os.ReadFile(filepath.Join(svc.CodeDir, c.name))
		if err != nil {
			continue
		}
		body := sanitize.Sanitize(string(data))
		if len(body) > MaxSnippetChars {
			body = body[:MaxSnippetChars] + truncationMarker
		}
		snippets = append(snippets, Snippet{Filename: c.name, Lang: lang, Body: body})
	}
	return snippets
}
