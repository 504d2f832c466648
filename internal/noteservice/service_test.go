package noteservice

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/graph"
	"github.com/starford/raido/internal/linkindex"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/resolver"
	"github.com/starford/raido/internal/vault"
)

func testService(t *testing.T, files map[string]string) *Service {
	t.Helper()

	store, err := vault.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for path, content := range files {
		if err := store.Write(path, []byte(content)); err != nil {
			t.Fatal(err)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	idx := linkindex.New(store, logger)
	t.Cleanup(idx.Close)

	res := resolver.New(idx.Index(), 0)
	queries := graph.NewProvider(idx.Index())
	sub := idx.Subscribe(func(snap *models.Index) {
		res.UpdateIndex(snap)
		queries.UpdateIndex(snap)
	})
	t.Cleanup(sub.Cancel)

	if _, err := idx.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	return NewService(store, idx, res, queries)
}

func TestGetNote_EnrichesWithIndex(t *testing.T) {
	svc := testService(t, map[string]string{
		"a.md": "---\ntitle: Alpha\ntags:\n  - one\n---\n[[b]] #two",
		"b.md": "[[a]]",
	})

	note, err := svc.GetNote(context.Background(), "a.md")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if note.Title != "Alpha" {
		t.Errorf("title = %q", note.Title)
	}
	if len(note.Tags) != 2 {
		t.Errorf("tags = %v", note.Tags)
	}
	if len(note.Links) != 1 || !note.Links[0].TargetExists || note.Links[0].TargetFile != "b.md" {
		t.Errorf("links = %+v", note.Links)
	}
	if len(note.Backlinks) != 1 || note.Backlinks[0] != "b.md" {
		t.Errorf("backlinks = %v", note.Backlinks)
	}

	if _, err := svc.GetNote(context.Background(), "missing.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateNote_IndexesImmediately(t *testing.T) {
	svc := testService(t, map[string]string{"target.md": "x"})

	note, err := svc.CreateNote(context.Background(), "new.md", []byte("[[target]]"))
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if len(note.Links) != 1 || !note.Links[0].TargetExists {
		t.Errorf("links = %+v", note.Links)
	}

	// Backlinks visible without any debounce wait.
	if bl := svc.Backlinks(context.Background(), "target.md"); len(bl) != 1 || bl[0] != "new.md" {
		t.Errorf("backlinks = %v", bl)
	}

	if _, err := svc.CreateNote(context.Background(), "new.md", []byte("again")); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestUpdateNote_ChecksumGuard(t *testing.T) {
	svc := testService(t, map[string]string{"n.md": "v1"})

	if _, err := svc.UpdateNote(context.Background(), "n.md", []byte("v2"), "bogus"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	note, err := svc.GetNote(context.Background(), "n.md")
	if err != nil {
		t.Fatal(err)
	}
	updated, err := svc.UpdateNote(context.Background(), "n.md", []byte("v2"), note.Checksum)
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if updated.Content != "v2" {
		t.Errorf("content = %q", updated.Content)
	}

	// Empty If-Match skips the guard.
	if _, err := svc.UpdateNote(context.Background(), "n.md", []byte("v3"), ""); err != nil {
		t.Errorf("unconditional update: %v", err)
	}

	if _, err := svc.UpdateNote(context.Background(), "ghost.md", []byte("x"), ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteNote_StripsIndex(t *testing.T) {
	svc := testService(t, map[string]string{
		"a.md": "[[b]]",
		"b.md": "x",
	})
	if err := svc.DeleteNote(context.Background(), "a.md"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if bl := svc.Backlinks(context.Background(), "b.md"); len(bl) != 0 {
		t.Errorf("backlinks = %v", bl)
	}
	snap := svc.Snapshot(context.Background())
	if err := snap.CheckInvariants(); err != nil {
		t.Errorf("invariants: %v", err)
	}
}

func TestListNotes_SortAndFilter(t *testing.T) {
	svc := testService(t, map[string]string{
		"b.md": "# Bravo\n#keep",
		"a.md": "# Alpha\n#keep",
		"c.md": "# Charlie",
	})

	items, total, err := svc.ListNotes(context.Background(), 0, 0, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || items[0].Path != "a.md" {
		t.Errorf("default sort: total=%d items=%+v", total, items)
	}

	items, total, err = svc.ListNotes(context.Background(), 0, 0, "keep", "title")
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || items[0].Title != "Alpha" || items[1].Title != "Bravo" {
		t.Errorf("tag+title sort: total=%d items=%+v", total, items)
	}

	items, total, err = svc.ListNotes(context.Background(), 1, 1, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(items) != 1 || items[0].Path != "b.md" {
		t.Errorf("pagination: total=%d items=%+v", total, items)
	}
}

func TestListNotes_NegativePaginationClamped(t *testing.T) {
	svc := testService(t, map[string]string{
		"a.md": "x",
		"b.md": "y",
	})

	for _, tc := range []struct {
		name          string
		limit, offset int
	}{
		{"negative offset", 0, -1},
		{"negative limit", -5, 0},
		{"both negative", -5, -10},
	} {
		t.Run(tc.name, func(t *testing.T) {
			items, total, err := svc.ListNotes(context.Background(), tc.limit, tc.offset, "", "")
			if err != nil {
				t.Fatal(err)
			}
			if total != 2 || len(items) != 2 {
				t.Errorf("total=%d items=%+v", total, items)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	svc := testService(t, map[string]string{"my-note.md": "x", "my-note-2.md": "y"})

	res := svc.Resolve(context.Background(), "My Note", "")
	if !res.Exists || res.TargetFile != "my-note.md" {
		t.Errorf("resolution = %+v", res)
	}

	res = svc.Resolve(context.Background(), "absolutely nothing", "")
	if res.Exists {
		t.Errorf("expected a miss, got %+v", res)
	}
}

func TestRebuild_FiresEventCallback(t *testing.T) {
	svc := testService(t, map[string]string{"a.md": "x"})

	var events []string
	svc.SetEventCallback(func(kind, path string) {
		events = append(events, kind)
	})

	if _, err := svc.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(events) != 1 || events[0] != "rebuilt" {
		t.Errorf("events = %v", events)
	}
}

func TestStatsAndGraph(t *testing.T) {
	svc := testService(t, map[string]string{
		"a.md": "[[b]] #tag",
		"b.md": "x",
	})

	stats := svc.Stats(context.Background())
	if stats.TotalFiles != 2 || stats.TotalLinks != 1 || stats.TotalTags != 1 {
		t.Errorf("stats = %+v", stats)
	}

	nodes, edges := svc.Graph(context.Background())
	if len(nodes) != 2 || len(edges) != 1 {
		t.Errorf("graph: %d nodes, %d edges", len(nodes), len(edges))
	}

	if d := svc.Distance(context.Background(), "a.md", "b.md"); d != 1 {
		t.Errorf("distance = %d", d)
	}
	if n := svc.Connected(context.Background(), "a.md", -1); len(n) != 1 {
		t.Errorf("connected = %+v", n)
	}
	if rep := svc.Validate(context.Background()); rep.Valid != 1 || rep.Broken != 0 {
		t.Errorf("report = %+v", rep)
	}
}
