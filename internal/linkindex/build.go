package linkindex

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/parser"
	"github.com/starford/raido/internal/resolver"
)

// Rebuild discovers every note in the vault and constructs a fresh index
// in two passes: parse everything, then resolve every link against the
// complete file set. The new index replaces the old one in a single
// atomic swap, so readers never observe a partially built index.
//
// Only one rebuild may be in flight; a concurrent request is rejected
// with apperr.ErrRebuildInProgress and the prior index is returned
// unchanged. Unreadable files are logged and skipped; the rebuild as a
// whole does not fail for them.
func (s *Service) Rebuild(ctx context.Context) (*models.Index, error) {
	if !s.building.CompareAndSwap(false, true) {
		s.logger.Warn("linkindex: rebuild already in progress")
		return s.Index(), apperr.ErrRebuildInProgress
	}
	defer s.building.Store(false)

	start := time.Now()

	metas, err := s.store.List("")
	if err != nil {
		return s.Index(), fmt.Errorf("linkindex: discover notes: %w", err)
	}

	next := models.NewIndex()

	// First pass: read and parse each file independently.
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return s.Index(), fmt.Errorf("linkindex: rebuild cancelled: %w", err)
		}
		data, err := s.store.Read(m.Path)
		if err != nil {
			s.logger.Warn("linkindex: read failed, skipping",
				slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		entry, tags := s.parseEntry(m.Path, data)
		next.Files[m.Path] = entry
		addTags(next, m.Path, tags)
	}

	// Second pass: resolve every link against the complete file set and
	// derive the backlink inverse.
	res := resolver.New(next, s.fuzzyDistance)
	for _, path := range sortedFilePaths(next) {
		entry := next.Files[path]
		for _, link := range entry.OutgoingLinks {
			res.ResolveLink(link, path)
			if link.TargetExists {
				addBacklink(next, link.TargetFile, path)
			}
		}
	}

	recount(next)
	next.Metadata.LastBuildTime = time.Now()
	validate(next)

	s.mu.Lock()
	s.idx = next
	s.lastBuildDur = time.Since(start)
	snapshot := next.Clone()
	s.mu.Unlock()

	s.logger.Info("linkindex: rebuild complete",
		slog.Int("files", next.Metadata.TotalFiles),
		slog.Int("links", next.Metadata.TotalLinks),
		slog.Int("tags", next.TotalTags()),
		slog.Duration("took", s.lastBuildDur))

	s.notify(snapshot)
	return snapshot, nil
}

// parseEntry builds a FileEntry from raw content. Parse errors are
// logged at debug level; they never abort indexing.
func (s *Service) parseEntry(path string, data []byte) (*models.FileEntry, []string) {
	content := string(data)
	res := parser.Parse(content, path, parser.Options{})
	for _, perr := range res.Errors {
		s.logger.Debug("linkindex: parse issue",
			slog.String("path", path), slog.String("issue", perr))
	}

	meta := models.FileMetadata{Title: res.Title, Size: int64(len(data))}
	if st, err := s.store.Stat(path); err == nil {
		meta.Size = st.Size
		meta.CreatedAt = st.CreatedAt
		meta.ModifiedAt = st.ModifiedAt
	}

	return &models.FileEntry{
		Path:          path,
		Name:          parser.Stem(path),
		LastIndexed:   time.Now(),
		ContentHash:   checksum.Sum(data),
		OutgoingLinks: res.Links,
		Metadata:      meta,
	}, res.Tags
}

// recount recomputes the metadata counters from the maps.
func recount(idx *models.Index) {
	idx.Metadata.Version = models.IndexVersion
	idx.Metadata.TotalFiles = len(idx.Files)
	links := 0
	for _, e := range idx.Files {
		links += len(e.OutgoingLinks)
	}
	idx.Metadata.TotalLinks = links
}

// validate prunes tag and backlink members whose files no longer exist
// (e.g. deleted between discovery and completion, or a stale cached
// snapshot) and drops any sets left empty.
func validate(idx *models.Index) {
	for tag, set := range idx.Tags {
		for p := range set {
			if _, ok := idx.Files[p]; !ok {
				delete(set, p)
			}
		}
		if len(set) == 0 {
			delete(idx.Tags, tag)
		}
	}
	for target, set := range idx.Backlinks {
		for p := range set {
			if _, ok := idx.Files[p]; !ok {
				delete(set, p)
			}
		}
		if len(set) == 0 {
			delete(idx.Backlinks, target)
		}
	}
}

func addBacklink(idx *models.Index, target, source string) {
	set := idx.Backlinks[target]
	if set == nil {
		set = make(models.PathSet)
		idx.Backlinks[target] = set
	}
	set[source] = true
}

func addTags(idx *models.Index, path string, tags []string) {
	for _, t := range tags {
		set := idx.Tags[t]
		if set == nil {
			set = make(models.PathSet)
			idx.Tags[t] = set
		}
		set[path] = true
	}
}

func sortedFilePaths(idx *models.Index) []string {
	paths := make([]string, 0, len(idx.Files))
	for p := range idx.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
