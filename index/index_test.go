// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

package index_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lapse-project/lapse/index"
)

var indexEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *index.Store {
	t.Helper()
	store, err := index.Open(index.Config{Path: ":memory:", PoolSize: 1})
	if err != nil {
		t.Fatalf("opening in-memory index: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("closing index: %v", err)
		}
	})
	return store
}

func testEntry(offset time.Duration) index.Entry {
	stamp := indexEpoch.Add(offset)
	return index.Entry{
		Path:       "/captures/" + stamp.Format("2006-01-02") + "/screen-" + stamp.Format("150405") + ".jpg",
		Surface:    "screen",
		CapturedAt: stamp,
		SizeBytes:  1000 + int64(offset/time.Second),
		FrameHash:  stamp.Format("150405.000000000"),
	}
}

func recordEntries(t *testing.T, store *index.Store, entries ...index.Entry) {
	t.Helper()
	ctx := context.Background()
	for _, entry := range entries {
		if err := store.Record(ctx, entry); err != nil {
			t.Fatalf("recording %s: %v", entry.Path, err)
		}
	}
}

func TestRecordAndRecent(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	first := testEntry(0)
	second := testEntry(time.Minute)
	third := testEntry(2 * time.Minute)
	recordEntries(t, store, first, second, third)

	entries, err := store.Recent(context.Background(), index.Filter{})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Recent returned %d entries, want 3", len(entries))
	}

	// Newest first.
	if entries[0].Path != third.Path || entries[2].Path != first.Path {
		t.Fatalf("entries out of order: %q, %q, %q",
			entries[0].Path, entries[1].Path, entries[2].Path)
	}

	got := entries[0]
	if got.Surface != third.Surface ||
		!got.CapturedAt.Equal(third.CapturedAt) ||
		got.SizeBytes != third.SizeBytes ||
		got.FrameHash != third.FrameHash {
		t.Fatalf("entry round trip mismatch: got %+v, want %+v", got, third)
	}
}

func TestRecentFilters(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	screen := testEntry(0)
	monitor := testEntry(time.Minute)
	monitor.Surface = "DP-1"
	nextDay := testEntry(25 * time.Hour)
	recordEntries(t, store, screen, monitor, nextDay)

	bySurface, err := store.Recent(ctx, index.Filter{Surface: "DP-1"})
	if err != nil {
		t.Fatalf("Recent by surface: %v", err)
	}
	if len(bySurface) != 1 || bySurface[0].Path != monitor.Path {
		t.Fatalf("surface filter returned %+v", bySurface)
	}

	byDay, err := store.Recent(ctx, index.Filter{Day: "2026-03-15"})
	if err != nil {
		t.Fatalf("Recent by day: %v", err)
	}
	if len(byDay) != 1 || byDay[0].Path != nextDay.Path {
		t.Fatalf("day filter returned %+v", byDay)
	}

	since, err := store.Recent(ctx, index.Filter{Since: indexEpoch.Add(30 * time.Second)})
	if err != nil {
		t.Fatalf("Recent since: %v", err)
	}
	if len(since) != 2 {
		t.Fatalf("since filter returned %d entries, want 2", len(since))
	}

	limited, err := store.Recent(ctx, index.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Recent limited: %v", err)
	}
	if len(limited) != 2 || limited[0].Path != nextDay.Path {
		t.Fatalf("limit filter returned %+v", limited)
	}
}

func TestPruneDays(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	recordEntries(t, store,
		testEntry(0),
		testEntry(time.Minute),
		testEntry(25*time.Hour),
	)

	pruned, err := store.PruneDays(ctx, []string{"2026-03-14"})
	if err != nil {
		t.Fatalf("PruneDays: %v", err)
	}
	if pruned != 2 {
		t.Fatalf("PruneDays removed %d rows, want 2", pruned)
	}

	remaining, err := store.Recent(ctx, index.Filter{})
	if err != nil {
		t.Fatalf("Recent after prune: %v", err)
	}
	if len(remaining) != 1 || remaining[0].CapturedAt.Before(indexEpoch.Add(24*time.Hour)) {
		t.Fatalf("prune left %+v", remaining)
	}

	noop, err := store.PruneDays(ctx, nil)
	if err != nil {
		t.Fatalf("PruneDays with no days: %v", err)
	}
	if noop != 0 {
		t.Fatalf("PruneDays with no days removed %d rows", noop)
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	first := testEntry(0)
	second := testEntry(time.Minute)
	nextDay := testEntry(25 * time.Hour)
	recordEntries(t, store, first, second, nextDay)

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Captures != 3 {
		t.Errorf("Captures = %d, want 3", stats.Captures)
	}
	if stats.Days != 2 {
		t.Errorf("Days = %d, want 2", stats.Days)
	}
	if want := first.SizeBytes + second.SizeBytes + nextDay.SizeBytes; stats.ContentBytes != want {
		t.Errorf("ContentBytes = %d, want %d", stats.ContentBytes, want)
	}
	if stats.DatabaseBytes <= 0 {
		t.Errorf("DatabaseBytes = %d, want positive", stats.DatabaseBytes)
	}
}

func TestReopenKeepsRows(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "index.db")

	store, err := index.Open(index.Config{Path: path})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	recordEntries(t, store, testEntry(0))
	if err := store.Close(); err != nil {
		t.Fatalf("closing first store: %v", err)
	}

	reopened, err := index.Open(index.Config{Path: path})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.Recent(context.Background(), index.Filter{})
	if err != nil {
		t.Fatalf("Recent after reopen: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("reopened index holds %d entries, want 1", len(entries))
	}
}
