package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/emonet/fixwatch/internal/event"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "fixwatch.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndQuery(t *testing.T) {
	db := openTestDB(t)

	inc := event.New("pocketbase", time.Now(), "error", "error: hook crashed\n")
	inc.Decision = event.DecisionReport
	if err := db.Insert(inc); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := db.Query(QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d incidents, want 1", len(got))
	}
	if got[0].ID != inc.ID {
		t.Errorf("id = %q, want %q", got[0].ID, inc.ID)
	}
	if got[0].Service != "pocketbase" || got[0].Reason != "error" {
		t.Errorf("service/reason = %q/%q", got[0].Service, got[0].Reason)
	}
	if got[0].Decision != event.DecisionReport {
		t.Errorf("decision = %q", got[0].Decision)
	}
	if got[0].Delivered {
		t.Error("delivered should start false")
	}
}

func TestMarkDelivered(t *testing.T) {
	db := openTestDB(t)

	inc := event.New("ai-proxy", time.Now(), "panic", "panic: send on closed channel\n")
	inc.Decision = event.DecisionReport
	if err := db.Insert(inc); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	url := "https://github.com/emonet/services/issues/7"
	if err := db.MarkDelivered(inc.ID, url); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}

	got, err := db.Query(QueryFilter{Service: "ai-proxy"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || !got[0].Delivered || got[0].IssueURL != url {
		t.Errorf("got %+v", got[0])
	}
}

func TestQueryFilters(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	seed := []struct {
		service  string
		offset   time.Duration
		decision event.Decision
	}{
		{"pocketbase", 0, event.DecisionReport},
		{"pocketbase", time.Minute, event.DecisionSuppressed},
		{"ai-proxy", 2 * time.Minute, event.DecisionReport},
		{"ai-proxy", 3 * time.Minute, event.DecisionLockout},
	}
	for _, s := range seed {
		inc := event.New(s.service, base.Add(s.offset), "error", "error: enough detail here\n")
		inc.Decision = s.decision
		if err := db.Insert(inc); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	byService, err := db.Query(QueryFilter{Service: "pocketbase"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byService) != 2 {
		t.Errorf("service filter: got %d, want 2", len(byService))
	}

	byDecision, err := db.Query(QueryFilter{Decision: string(event.DecisionLockout)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byDecision) != 1 || byDecision[0].Service != "ai-proxy" {
		t.Errorf("decision filter: got %+v", byDecision)
	}

	since, err := db.Query(QueryFilter{Since: base.Add(90 * time.Second)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(since) != 2 {
		t.Errorf("since filter: got %d, want 2", len(since))
	}

	limited, err := db.Query(QueryFilter{Limit: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit filter: got %d, want 1", len(limited))
	}
	// Descending order: the newest row wins the limit.
	if limited[0].Service != "ai-proxy" || limited[0].Decision != event.DecisionLockout {
		t.Errorf("limit filter returned %+v, want newest row", limited[0])
	}
}

func TestCount(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()

	for i, d := range []event.Decision{
		event.DecisionReport,
		event.DecisionSuppressed,
		event.DecisionSuppressed,
	} {
		inc := event.New("pocketbase", now.Add(time.Duration(i)*time.Second), "error", "error: detail goes here\n")
		inc.Decision = d
		if err := db.Insert(inc); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	counts, err := db.Count("pocketbase", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if counts[event.DecisionReport] != 1 || counts[event.DecisionSuppressed] != 2 {
		t.Errorf("counts = %v", counts)
	}
}

func TestPurge(t *testing.T) {
	db := openTestDB(t)

	old := event.New("pocketbase", time.Now().Add(-48*time.Hour), "error", "error: stale incident row\n")
	old.Decision = event.DecisionReport
	fresh := event.New("pocketbase", time.Now(), "error", "error: recent incident row\n")
	fresh.Decision = event.DecisionReport
	for _, inc := range []*event.Incident{old, fresh} {
		if err := db.Insert(inc); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	n, err := db.Purge(24 * time.Hour)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}

	got, err := db.Query(QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ID != fresh.ID {
		t.Errorf("remaining = %+v", got)
	}
}
