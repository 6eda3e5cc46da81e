package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/emonet/fixwatch/internal/config"
)

// SinkErrorKind classifies a sink failure.
type SinkErrorKind string

const (
	SinkErrAuth      SinkErrorKind = "auth"
	SinkErrRateLimit SinkErrorKind = "rate_limit"
	SinkErrNetwork   SinkErrorKind = "network"
	SinkErrOther     SinkErrorKind = "other"
)

// SinkError is a structured failure from the issue sink. Callers log it and
// move on: report delivery is best-effort and never retried from here.
type SinkError struct {
	Kind   SinkErrorKind
	Status int
	Err    error
}

func (e *SinkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("issue sink %s failure (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("issue sink %s failure: %v", e.Kind, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// GitHubSink files incident bundles as GitHub issues.
type GitHubSink struct {
	cfg    *config.Config
	client *http.Client
}

// NewGitHub creates a GitHubSink.
func NewGitHub(cfg *config.Config) *GitHubSink {
	return &GitHubSink{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type issueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

type issueResponse struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// Report submits a bundle and returns the created issue URL.
func (s *GitHubSink) Report(ctx context.Context, bundle *Bundle) (string, error) {
	if s.cfg.Sink.Repo == "" {
		return "", &SinkError{Kind: SinkErrOther, Err: fmt.Errorf("sink.repo not configured")}
	}
	token := s.cfg.SinkToken()
	if token == "" {
		return "", &SinkError{Kind: SinkErrAuth, Err: fmt.Errorf("%s not set", s.cfg.Sink.TokenEnv)}
	}

	payload, err := json.Marshal(issueRequest{
		Title:  bundle.Title,
		Body:   bundle.Body,
		Labels: s.cfg.Sink.Labels,
	})
	if err != nil {
		return "", &SinkError{Kind: SinkErrOther, Err: err}
	}

	url := fmt.Sprintf("%s/repos/%s/issues", s.cfg.Sink.APIURL, s.cfg.Sink.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", &SinkError{Kind: SinkErrOther, Err: err}
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &SinkError{Kind: SinkErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &SinkError{Kind: SinkErrAuth, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &SinkError{Kind: SinkErrRateLimit, Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &SinkError{Kind: SinkErrOther, Status: resp.StatusCode}
	}

	var issue issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return "", &SinkError{Kind: SinkErrOther, Err: fmt.Errorf("decoding response: %w", err)}
	}

	slog.Info("issue created", "service", bundle.Service, "number", issue.Number, "url", issue.HTMLURL)
	return issue.HTMLURL, nil
}
