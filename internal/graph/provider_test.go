package graph

import (
	"reflect"
	"testing"

	"github.com/starford/raido/internal/models"
)

// chainIndex builds a -> b -> c plus a disconnected d, with one broken
// link out of c.
func chainIndex() *models.Index {
	idx := models.NewIndex()
	add := func(path string, links ...*models.LinkInstance) {
		idx.Files[path] = &models.FileEntry{
			Path:          path,
			Name:          path,
			OutgoingLinks: links,
			Metadata:      models.FileMetadata{Title: path},
		}
	}
	add("a.md", &models.LinkInstance{Title: "b", SourceFile: "a.md", TargetFile: "b.md", TargetExists: true})
	add("b.md", &models.LinkInstance{Title: "c", SourceFile: "b.md", TargetFile: "c.md", TargetExists: true})
	add("c.md", &models.LinkInstance{Title: "nowhere", SourceFile: "c.md"})
	add("d.md")

	idx.Backlinks["b.md"] = models.PathSet{"a.md": true}
	idx.Backlinks["c.md"] = models.PathSet{"b.md": true}
	idx.Metadata.TotalFiles = 4
	idx.Metadata.TotalLinks = 3
	return idx
}

func TestBacklinksFor(t *testing.T) {
	p := NewProvider(chainIndex())
	bl := p.BacklinksFor("c.md")
	if len(bl) != 1 || bl[0].Path != "b.md" {
		t.Fatalf("backlinks = %+v", bl)
	}
	if got := p.BacklinksFor("a.md"); len(got) != 0 {
		t.Errorf("backlinks[a.md] = %+v, want empty", got)
	}
	if got := p.BacklinksFor("missing.md"); len(got) != 0 {
		t.Errorf("backlinks for unknown file = %+v, want empty", got)
	}
}

func TestLinksFrom(t *testing.T) {
	p := NewProvider(chainIndex())
	if got := p.LinksFrom("a.md"); len(got) != 1 || got[0].TargetFile != "b.md" {
		t.Errorf("links from a.md = %+v", got)
	}
	if got := p.LinksFrom("missing.md"); got == nil || len(got) != 0 {
		t.Errorf("links from unknown file = %+v, want empty non-nil", got)
	}
}

func TestDistance(t *testing.T) {
	p := NewProvider(chainIndex())
	tests := []struct {
		from, to string
		want     int
	}{
		{"a.md", "a.md", 0},
		{"a.md", "b.md", 1},
		{"a.md", "c.md", 2},
		{"c.md", "a.md", 2}, // undirected: backlinks count as edges
		{"a.md", "d.md", -1},
		{"a.md", "missing.md", -1},
		{"", "a.md", -1},
	}
	for _, tt := range tests {
		if got := p.Distance(tt.from, tt.to); got != tt.want {
			t.Errorf("Distance(%q, %q) = %d, want %d", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestDistance_Memoized(t *testing.T) {
	p := NewProvider(chainIndex())
	first := p.Distance("a.md", "c.md")
	// Cached result must survive repeated queries and be symmetric.
	if again := p.Distance("a.md", "c.md"); again != first {
		t.Errorf("memoized distance = %d, want %d", again, first)
	}
	if rev := p.Distance("c.md", "a.md"); rev != first {
		t.Errorf("reverse distance = %d, want %d", rev, first)
	}

	p.UpdateIndex(models.NewIndex())
	if got := p.Distance("a.md", "c.md"); got != -1 {
		t.Errorf("distance after snapshot swap = %d, want -1", got)
	}
}

func TestConnected(t *testing.T) {
	p := NewProvider(chainIndex())

	if got := p.Connected("a.md", 0); len(got) != 0 {
		t.Errorf("maxDepth 0 = %+v, want empty", got)
	}
	if got := p.Connected("missing.md", -1); len(got) != 0 {
		t.Errorf("unknown root = %+v, want empty", got)
	}

	got := p.Connected("a.md", 1)
	want := []Node{{Path: "b.md", Distance: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("depth 1 = %+v, want %+v", got, want)
	}

	got = p.Connected("a.md", -1)
	want = []Node{{Path: "b.md", Distance: 1}, {Path: "c.md", Distance: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("unlimited = %+v, want %+v", got, want)
	}
}

func TestConnected_Cycle(t *testing.T) {
	idx := models.NewIndex()
	idx.Files["x.md"] = &models.FileEntry{Path: "x.md", OutgoingLinks: []*models.LinkInstance{
		{Title: "y", SourceFile: "x.md", TargetFile: "y.md", TargetExists: true},
	}}
	idx.Files["y.md"] = &models.FileEntry{Path: "y.md", OutgoingLinks: []*models.LinkInstance{
		{Title: "x", SourceFile: "y.md", TargetFile: "x.md", TargetExists: true},
	}}
	idx.Backlinks["x.md"] = models.PathSet{"y.md": true}
	idx.Backlinks["y.md"] = models.PathSet{"x.md": true}
	idx.Metadata.TotalFiles = 2
	idx.Metadata.TotalLinks = 2

	p := NewProvider(idx)
	got := p.Connected("x.md", -1)
	if len(got) != 1 || got[0].Path != "y.md" || got[0].Distance != 1 {
		t.Errorf("cycle traversal = %+v", got)
	}
}

func TestFilesWithBrokenLinks(t *testing.T) {
	p := NewProvider(chainIndex())
	got := p.FilesWithBrokenLinks()
	if len(got) != 1 || got[0].Path != "c.md" {
		t.Fatalf("broken files = %+v", got)
	}
}

func TestValidate(t *testing.T) {
	idx := chainIndex()
	p := NewProvider(idx)
	rep := p.Validate()
	if rep.Valid != 2 || rep.Broken != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Valid+rep.Broken != idx.Metadata.TotalLinks {
		t.Errorf("valid+broken = %d, want %d", rep.Valid+rep.Broken, idx.Metadata.TotalLinks)
	}
	if len(rep.Details) != 1 || rep.Details[0].Source != "c.md" || rep.Details[0].Target != "nowhere" {
		t.Errorf("details = %+v", rep.Details)
	}
}

func TestValidate_EmptyIndex(t *testing.T) {
	p := NewProvider(models.NewIndex())
	rep := p.Validate()
	if rep.Valid != 0 || rep.Broken != 0 || rep.Details == nil {
		t.Errorf("report = %+v", rep)
	}
}

func TestExport(t *testing.T) {
	p := NewProvider(chainIndex())
	nodes, edges := p.Export()
	if len(nodes) != 4 {
		t.Errorf("nodes = %d, want 4", len(nodes))
	}
	wantEdges := []GraphEdge{{Source: "a.md", Target: "b.md"}, {Source: "b.md", Target: "c.md"}}
	if !reflect.DeepEqual(edges, wantEdges) {
		t.Errorf("edges = %+v, want %+v", edges, wantEdges)
	}
}
