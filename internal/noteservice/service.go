// Package noteservice coordinates the vault, the link index, and the
// query layers behind one facade consumed by the HTTP and MCP surfaces.
package noteservice

import (
	"context"
	"errors"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/graph"
	"github.com/starford/raido/internal/linkindex"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/parser"
	"github.com/starford/raido/internal/resolver"
	"github.com/starford/raido/internal/vault"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string                  `json:"path"`
	Title       string                  `json:"title"`
	Content     string                  `json:"content"`
	Checksum    string                  `json:"checksum"`
	Tags        []string                `json:"tags"`
	Frontmatter map[string]any          `json:"frontmatter,omitempty"`
	Links       []*models.LinkInstance  `json:"links"`
	Backlinks   []string                `json:"backlinks"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Checksum  string    `json:"checksum"`
	Links     int       `json:"links"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service coordinates vault and index operations.
type Service struct {
	store    vault.Provider
	idx      *linkindex.Service
	resolver *resolver.Resolver
	queries  *graph.Provider
	events   func(kind, path string)
}

// NewService creates a note service. The resolver and graph provider are
// refreshed by the orchestrating layer on index-change notifications;
// the service itself only reads from them.
func NewService(store vault.Provider, idx *linkindex.Service, res *resolver.Resolver, queries *graph.Provider) *Service {
	return &Service{store: store, idx: idx, resolver: res, queries: queries}
}

// SetEventCallback registers a callback invoked after a successful full
// rebuild. Per-note change events come from the file watcher instead.
func (s *Service) SetEventCallback(cb func(kind, path string)) {
	s.events = cb
}

// GetNote reads a note from the vault, parses it, and enriches it with
// resolved links and backlinks from the index.
func (s *Service) GetNote(_ context.Context, path string) (*NoteDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildNoteDetail(path, data), nil
}

// CreateNote writes a new note, indexes it immediately, and returns it.
func (s *Service) CreateNote(_ context.Context, path string, content []byte) (*NoteDetail, error) {
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	s.idx.Reindex(path, content)
	return s.buildNoteDetail(path, content), nil
}

// UpdateNote writes updated content with optimistic concurrency: a
// non-empty ifMatch must equal the current content checksum.
func (s *Service) UpdateNote(_ context.Context, path string, content []byte, ifMatch string) (*NoteDetail, error) {
	existing, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	s.idx.Reindex(path, content)
	return s.buildNoteDetail(path, content), nil
}

// DeleteNote removes a note from the vault and strips it from the index.
func (s *Service) DeleteNote(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		return err
	}
	s.idx.RemoveFile(path)
	return nil
}

// ListNotes returns paginated entries from the index snapshot, optionally
// filtered by tag. sort may be "title", "modified", or "path" (default).
func (s *Service) ListNotes(_ context.Context, limit, offset int, tag, sortBy string) ([]NoteListItem, int, error) {
	snapshot := s.idx.Index()

	var paths []string
	if tag != "" {
		for p := range snapshot.Tags[strings.ToLower(tag)] {
			paths = append(paths, p)
		}
	} else {
		for p := range snapshot.Files {
			paths = append(paths, p)
		}
	}

	entries := make([]*models.FileEntry, 0, len(paths))
	for _, p := range paths {
		if e, ok := snapshot.Files[p]; ok {
			entries = append(entries, e)
		}
	}

	switch sortBy {
	case "title":
		sort.Slice(entries, func(i, j int) bool { return entries[i].Metadata.Title < entries[j].Metadata.Title })
	case "modified":
		sort.Slice(entries, func(i, j int) bool { return entries[i].Metadata.ModifiedAt.After(entries[j].Metadata.ModifiedAt) })
	default:
		sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	}

	total := len(entries)
	if offset < 0 {
		offset = 0
	}
	if offset > len(entries) {
		offset = len(entries)
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	items := make([]NoteListItem, len(entries))
	for i, e := range entries {
		items[i] = NoteListItem{
			Path:      e.Path,
			Title:     e.Metadata.Title,
			Checksum:  e.ContentHash,
			Links:     len(e.OutgoingLinks),
			UpdatedAt: e.Metadata.ModifiedAt,
		}
	}
	return items, total, nil
}

// Rebuild triggers a full index rebuild.
func (s *Service) Rebuild(ctx context.Context) (*models.Index, error) {
	snap, err := s.idx.Rebuild(ctx)
	if err == nil && s.events != nil {
		s.events("rebuilt", "")
	}
	return snap, err
}

// Stats reports index totals.
func (s *Service) Stats(_ context.Context) linkindex.Stats {
	return s.idx.Stats()
}

// Snapshot returns a read-only copy of the current index.
func (s *Service) Snapshot(_ context.Context) *models.Index {
	return s.idx.Index()
}

// Backlinks returns the paths of all notes linking to target.
func (s *Service) Backlinks(_ context.Context, target string) []string {
	entries := s.queries.BacklinksFor(target)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

// LinksFrom returns a note's outgoing links, including broken ones.
func (s *Service) LinksFrom(_ context.Context, path string) []*models.LinkInstance {
	return s.queries.LinksFrom(path)
}

// Distance returns the shortest hop count between two notes, or -1.
func (s *Service) Distance(_ context.Context, from, to string) int {
	return s.queries.Distance(from, to)
}

// Connected returns the subgraph reachable from path within maxDepth.
func (s *Service) Connected(_ context.Context, path string, maxDepth int) []graph.Node {
	return s.queries.Connected(path, maxDepth)
}

// BrokenFiles returns all files containing at least one broken link.
func (s *Service) BrokenFiles(_ context.Context) []*models.FileEntry {
	return s.queries.FilesWithBrokenLinks()
}

// Validate tallies valid and broken links across the index.
func (s *Service) Validate(_ context.Context) graph.Report {
	return s.queries.Validate()
}

// Graph returns the full resolved graph for visualization.
func (s *Service) Graph(_ context.Context) ([]graph.GraphNode, []graph.GraphEdge) {
	return s.queries.Export()
}

// Resolve maps a raw link title to its best-matching note, with ranked
// candidates when nothing matches.
func (s *Service) Resolve(_ context.Context, title, sourceFile string) resolver.Resolution {
	link := &models.LinkInstance{
		Title:       title,
		SourceFile:  sourceFile,
		Format:      models.FormatWikilink,
		DisplayText: title,
	}
	return s.resolver.ResolveLink(link, sourceFile)
}

// buildNoteDetail constructs a NoteDetail from raw data without
// re-reading the file. Links are resolved against the current snapshot
// for display; the index's own copies are maintained separately.
func (s *Service) buildNoteDetail(path string, data []byte) *NoteDetail {
	content := string(data)
	res := parser.Parse(content, path, parser.Options{})
	for _, l := range res.Links {
		s.resolver.ResolveLink(l, path)
	}
	return &NoteDetail{
		Path:        path,
		Title:       res.Title,
		Content:     content,
		Checksum:    checksum.Sum(data),
		Tags:        nonNilSlice(res.Tags),
		Frontmatter: res.Frontmatter,
		Links:       nonNilSlice(res.Links),
		Backlinks:   nonNilSlice(s.Backlinks(context.Background(), path)),
		UpdatedAt:   time.Now(),
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
