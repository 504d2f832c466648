package linkindex_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/graph"
	"github.com/starford/raido/internal/linkindex"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/testutil"
)

func backlinkPaths(idx *models.Index, target string) []string {
	var out []string
	for p := range idx.Backlinks[target] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func TestRebuild_Backlinks(t *testing.T) {
	_, idx := testutil.TestIndex(t, map[string]string{
		"a.md": "Links to [[b]] and [[c]].",
		"b.md": "Links to [[c]].",
		"c.md": "No links here.",
	})

	snap := idx.Index()
	if err := snap.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	if got := backlinkPaths(snap, "c.md"); !reflect.DeepEqual(got, []string{"a.md", "b.md"}) {
		t.Errorf("backlinks[c.md] = %v", got)
	}
	if got := backlinkPaths(snap, "b.md"); !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Errorf("backlinks[b.md] = %v", got)
	}
	if got := backlinkPaths(snap, "a.md"); got != nil {
		t.Errorf("backlinks[a.md] = %v, want none", got)
	}

	stats := idx.Stats()
	if stats.TotalFiles != 3 || stats.TotalLinks != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRebuild_Idempotent(t *testing.T) {
	_, idx := testutil.TestIndex(t, map[string]string{
		"a.md": "[[b]] #tag",
		"b.md": "plain",
	})
	first := idx.Index()

	if _, err := idx.Rebuild(context.Background()); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	second := idx.Index()

	if first.Metadata.TotalFiles != second.Metadata.TotalFiles ||
		first.Metadata.TotalLinks != second.Metadata.TotalLinks {
		t.Errorf("counters changed: %+v vs %+v", first.Metadata, second.Metadata)
	}
	if !reflect.DeepEqual(backlinkPaths(first, "b.md"), backlinkPaths(second, "b.md")) {
		t.Errorf("backlinks changed across rebuilds")
	}
}

func TestRebuild_BrokenLinks(t *testing.T) {
	_, idx := testutil.TestIndex(t, map[string]string{
		"a.md": "[[does not exist anywhere]]",
	})
	snap := idx.Index()
	links := snap.Files["a.md"].OutgoingLinks
	if len(links) != 1 {
		t.Fatalf("links = %d", len(links))
	}
	if links[0].TargetExists || links[0].TargetFile != "" {
		t.Errorf("broken link resolved: %+v", links[0])
	}
	if len(snap.Backlinks) != 0 {
		t.Errorf("broken link produced backlinks: %v", snap.Backlinks)
	}
}

func TestRebuild_ConcurrentGuard(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 50; i++ {
		files[string(rune('a'+i%26))+"-note-"+string(rune('0'+i%10))+".md"] = "[[a-note-0]] body #t"
	}
	_, idx := testutil.TestIndex(t, files)

	var wg sync.WaitGroup
	conflicts := 0
	var mu sync.Mutex
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := idx.Rebuild(context.Background()); errors.Is(err, apperr.ErrRebuildInProgress) {
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// At least one must have run; rejected callers get the sentinel, not
	// a crash or a partial index.
	snap := idx.Index()
	if err := snap.CheckInvariants(); err != nil {
		t.Fatalf("invariants after concurrent rebuilds: %v", err)
	}
	_ = conflicts
}

func TestRemoveFile_StripsEverywhere(t *testing.T) {
	_, idx := testutil.TestIndex(t, map[string]string{
		"a.md": "[[b]] and [[c]] #shared",
		"b.md": "[[c]] #shared",
		"c.md": "leaf",
	})

	idx.RemoveFile("a.md")

	snap := idx.Index()
	if err := snap.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	if _, ok := snap.Files["a.md"]; ok {
		t.Error("a.md still present")
	}
	if got := backlinkPaths(snap, "c.md"); !reflect.DeepEqual(got, []string{"b.md"}) {
		t.Errorf("backlinks[c.md] = %v, want [b.md]", got)
	}
	if got := backlinkPaths(snap, "b.md"); got != nil {
		t.Errorf("backlinks[b.md] = %v, want pruned", got)
	}
	if set, ok := snap.Tags["shared"]; !ok || !set["b.md"] || set["a.md"] {
		t.Errorf("tags[shared] = %v", set)
	}
	if snap.Metadata.TotalFiles != 2 || snap.Metadata.TotalLinks != 1 {
		t.Errorf("counters = %+v", snap.Metadata)
	}
}

func TestRemoveFile_LinkTargetBecomesBroken(t *testing.T) {
	_, idx := testutil.TestIndex(t, map[string]string{
		"a.md": "points at [[b]]",
		"b.md": "the target",
	})

	idx.RemoveFile("b.md")

	snap := idx.Index()
	if err := snap.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	links := snap.Files["a.md"].OutgoingLinks
	if len(links) != 1 {
		t.Fatalf("links = %d", len(links))
	}
	if links[0].TargetExists || links[0].TargetFile != "" {
		t.Errorf("link still resolved after target removal: %+v", links[0])
	}
	if got := backlinkPaths(snap, "b.md"); got != nil {
		t.Errorf("backlinks[b.md] = %v, want gone", got)
	}
	if snap.Metadata.TotalFiles != 1 || snap.Metadata.TotalLinks != 1 {
		t.Errorf("counters = %+v", snap.Metadata)
	}

	// The dangling link must surface as broken without a full rebuild.
	queries := graph.NewProvider(snap)
	if report := queries.Validate(); report.Broken != 1 {
		t.Errorf("broken links = %d, want 1", report.Broken)
	}
	if broken := queries.FilesWithBrokenLinks(); len(broken) != 1 || broken[0].Path != "a.md" {
		t.Errorf("files with broken links = %v, want [a.md]", broken)
	}
}

func TestRemoveFile_UnknownIsNoop(t *testing.T) {
	_, idx := testutil.TestIndex(t, map[string]string{"a.md": "x"})
	before := idx.Stats()
	idx.RemoveFile("ghost.md")
	if after := idx.Stats(); after != before {
		t.Errorf("stats changed: %+v vs %+v", before, after)
	}
}

func TestUpdateFile_DebounceCoalesces(t *testing.T) {
	vaultDir, idx := testutil.TestIndex(t,
		map[string]string{"a.md": "v0", "b.md": "target"},
		linkindex.WithDebounce(30*time.Millisecond))

	var mu sync.Mutex
	notifications := 0
	sub := idx.Subscribe(func(*models.Index) {
		mu.Lock()
		notifications++
		mu.Unlock()
	})
	defer sub.Cancel()

	// Rapid successive updates to the same path: only the last survives.
	if err := os.WriteFile(filepath.Join(vaultDir, "a.md"), []byte("[[b]] final"), 0o644); err != nil {
		t.Fatal(err)
	}
	idx.UpdateFile("a.md", []byte("v1"))
	idx.UpdateFile("a.md", []byte("v2 [[missing]]"))
	idx.UpdateFile("a.md", []byte("[[b]] final"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := idx.Index()
		if backlinkPaths(snap, "b.md") != nil {
			if err := snap.CheckInvariants(); err != nil {
				t.Fatalf("invariants: %v", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("debounced update never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	got := notifications
	mu.Unlock()
	if got != 1 {
		t.Errorf("notifications = %d, want 1 (coalesced)", got)
	}
}

func TestUpdateFile_VanishedFileRemoved(t *testing.T) {
	vaultDir, idx := testutil.TestIndex(t,
		map[string]string{"a.md": "body", "b.md": "[[a]]"},
		linkindex.WithDebounce(10*time.Millisecond))

	if err := os.Remove(filepath.Join(vaultDir, "a.md")); err != nil {
		t.Fatal(err)
	}
	idx.UpdateFile("a.md", []byte("new content"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := idx.Index()
		if _, ok := snap.Files["a.md"]; !ok {
			if err := snap.CheckInvariants(); err != nil {
				t.Fatalf("invariants: %v", err)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("vanished file never removed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestReindex_Immediate(t *testing.T) {
	vaultDir, idx := testutil.TestIndex(t, map[string]string{
		"a.md": "no links",
		"b.md": "target",
	})

	content := []byte("now links [[b]]")
	if err := os.WriteFile(filepath.Join(vaultDir, "a.md"), content, 0o644); err != nil {
		t.Fatal(err)
	}
	idx.Reindex("a.md", content)

	snap := idx.Index()
	if got := backlinkPaths(snap, "b.md"); !reflect.DeepEqual(got, []string{"a.md"}) {
		t.Errorf("backlinks[b.md] = %v, want [a.md] without waiting", got)
	}
}

func TestReindex_UnchangedContentSkipped(t *testing.T) {
	_, idx := testutil.TestIndex(t, map[string]string{"a.md": "same"})

	var mu sync.Mutex
	notifications := 0
	sub := idx.Subscribe(func(*models.Index) {
		mu.Lock()
		notifications++
		mu.Unlock()
	})
	defer sub.Cancel()

	idx.Reindex("a.md", []byte("same"))

	mu.Lock()
	defer mu.Unlock()
	if notifications != 0 {
		t.Errorf("unchanged content triggered %d notifications", notifications)
	}
}

func TestSetIndex_PrunesStaleEntries(t *testing.T) {
	_, idx := testutil.TestIndex(t, nil)

	stale := models.NewIndex()
	stale.Files["a.md"] = &models.FileEntry{Path: "a.md", Name: "a"}
	stale.Backlinks["a.md"] = models.PathSet{"ghost.md": true}
	stale.Tags["t"] = models.PathSet{"ghost.md": true}

	idx.SetIndex(stale)

	snap := idx.Index()
	if err := snap.CheckInvariants(); err != nil {
		t.Fatalf("invariants after restore: %v", err)
	}
	if len(snap.Backlinks) != 0 || len(snap.Tags) != 0 {
		t.Errorf("stale members not pruned: %v %v", snap.Backlinks, snap.Tags)
	}
	if snap.Metadata.TotalFiles != 1 {
		t.Errorf("total_files = %d, want 1", snap.Metadata.TotalFiles)
	}
}

func TestClose_DropsPendingAndSubscribers(t *testing.T) {
	_, idx := testutil.TestIndex(t,
		map[string]string{"a.md": "x"},
		linkindex.WithDebounce(10*time.Millisecond))

	fired := make(chan struct{}, 8)
	idx.Subscribe(func(*models.Index) { fired <- struct{}{} })

	idx.UpdateFile("a.md", []byte("pending change"))
	idx.Close()

	select {
	case <-fired:
		t.Error("pending update applied after Close")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscriptionCancel(t *testing.T) {
	_, idx := testutil.TestIndex(t, map[string]string{"a.md": "x", "b.md": "y"})

	fired := make(chan struct{}, 8)
	sub := idx.Subscribe(func(*models.Index) { fired <- struct{}{} })
	sub.Cancel()
	sub.Cancel() // idempotent

	idx.RemoveFile("a.md")
	select {
	case <-fired:
		t.Error("cancelled subscriber was notified")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTagIndex(t *testing.T) {
	_, idx := testutil.TestIndex(t, map[string]string{
		"a.md": "---\ntags:\n  - project\n---\nbody #shared",
		"b.md": "text #shared #Solo",
	})
	snap := idx.Index()
	if got := snap.TotalTags(); got != 3 {
		t.Fatalf("total tags = %d, want 3 (%v)", got, snap.Tags)
	}
	if set := snap.Tags["shared"]; !set["a.md"] || !set["b.md"] {
		t.Errorf("tags[shared] = %v", set)
	}
	if set := snap.Tags["solo"]; !set["b.md"] {
		t.Errorf("tags[solo] = %v (tags are lowercased)", set)
	}
}
