package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenSQLiteAppendAndRecent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(ctx, "", path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	now := time.Now().Truncate(time.Second)
	r := Record{
		RunID:      "01977a9e-0000-7000-8000-000000000001",
		StartedAt:  now,
		EndedAt:    now.Add(2 * time.Second),
		ConfigHash: "abc123",
		Passed:     true,
		FileCount:  3,
	}
	if err := store.Append(ctx, r); err != nil {
		t.Fatal(err)
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("got %d records, want 1", len(recent))
	}
	if recent[0].RunID != r.RunID || !recent[0].Passed || recent[0].FileCount != 3 {
		t.Fatalf("record = %+v", recent[0])
	}
}

func TestAppendUpsertsOnSameRunID(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(ctx, "", path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	now := time.Now().Truncate(time.Second)
	r := Record{RunID: "same-id", StartedAt: now, EndedAt: now, ConfigHash: "h", Passed: false, FileCount: 1, FirstError: "boom"}
	if err := store.Append(ctx, r); err != nil {
		t.Fatal(err)
	}
	r.Passed = true
	r.FirstError = ""
	r.EndedAt = now.Add(time.Second)
	if err := store.Append(ctx, r); err != nil {
		t.Fatal(err)
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("got %d records, want 1 (upsert, not insert)", len(recent))
	}
	if !recent[0].Passed {
		t.Fatalf("expected upsert to reflect passed=true")
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := Open(ctx, "", path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Now().Truncate(time.Second)
	for i, id := range []string{"r1", "r2", "r3"} {
		started := base.Add(time.Duration(i) * time.Minute)
		store.Append(ctx, Record{RunID: id, StartedAt: started, EndedAt: started, ConfigHash: "h", Passed: true, FileCount: 1})
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 || recent[0].RunID != "r3" {
		t.Fatalf("recent = %+v, want newest (r3) first", recent)
	}
}
