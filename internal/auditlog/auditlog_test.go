package auditlog_test

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/loganross/coffer/internal/auditlog"
)

func TestRecordAndRecentOrdering(t *testing.T) {
	dir := t.TempDir()
	log, err := auditlog.Open(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	id := uuid.New()
	other := uuid.New()

	for _, kind := range []string{"added", "locked", "unlocked"} {
		if err := log.Record(id, kind, ""); err != nil {
			t.Fatalf("Record(%s): %v", kind, err)
		}
	}
	if err := log.Record(other, "added", ""); err != nil {
		t.Fatalf("Record other: %v", err)
	}

	events, err := log.Recent(id, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events for vault, got %d", len(events))
	}
	if events[0].Kind != "unlocked" {
		t.Fatalf("expected newest-first ordering, got %s first", events[0].Kind)
	}
	for _, e := range events {
		if e.VaultID != id {
			t.Fatalf("event leaked from another vault: %+v", e)
		}
	}
}

func TestRecentRespectsLimit(t *testing.T) {
	dir := t.TempDir()
	log, err := auditlog.Open(filepath.Join(dir, "audit.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer log.Close()

	id := uuid.New()
	for i := 0; i < 5; i++ {
		if err := log.Record(id, "tick", ""); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	events, err := log.Recent(id, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected limit to cap results to 2, got %d", len(events))
	}
}

func TestReopenPreservesEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.db")
	id := uuid.New()

	log, err := auditlog.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := log.Record(id, "added", "first run"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	log.Close()

	reopened, err := auditlog.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	events, err := reopened.Recent(id, 10)
	if err != nil {
		t.Fatalf("Recent after reopen: %v", err)
	}
	if len(events) != 1 || events[0].Detail != "first run" {
		t.Fatalf("expected event to survive reopen, got %+v", events)
	}
}
