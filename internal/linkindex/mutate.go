package linkindex

import (
	"log/slog"
	"time"

	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/resolver"
)

// UpdateFile schedules a debounced re-index of a single file. A newer
// update for the same path cancels and replaces the pending one
// (last-write-wins per path); updates to different paths are independent.
func (s *Service) UpdateFile(path string, content []byte) {
	s.pendMu.Lock()
	if s.closed {
		s.pendMu.Unlock()
		return
	}
	if prev, ok := s.pending[path]; ok {
		prev.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(s.debounce, func() {
		s.pendMu.Lock()
		// A later update may already have replaced us.
		if s.pending[path] == timer {
			delete(s.pending, path)
		}
		closed := s.closed
		s.pendMu.Unlock()
		if closed {
			return
		}
		s.applyUpdate(path, content)
	})
	s.pending[path] = timer
	s.pendMu.Unlock()
}

// Reindex applies a file update immediately, bypassing the debounce.
// Used by the editing surface, where each write is deliberate; any
// pending debounced update for the path is cancelled first.
func (s *Service) Reindex(path string, content []byte) {
	s.pendMu.Lock()
	if t, ok := s.pending[path]; ok {
		t.Stop()
		delete(s.pending, path)
	}
	closed := s.closed
	s.pendMu.Unlock()
	if closed {
		return
	}
	s.applyUpdate(path, content)
}

// RemoveFile deletes a file's contribution from the index immediately,
// cancelling any pending update for the same path. Removing an unknown
// file is a no-op.
func (s *Service) RemoveFile(path string) {
	s.pendMu.Lock()
	if t, ok := s.pending[path]; ok {
		t.Stop()
		delete(s.pending, path)
	}
	s.pendMu.Unlock()

	s.applyRemove(path)
}

// applyUpdate runs after the debounce quiet period: it strips the file's
// old contribution, re-parses, re-resolves against the current file set,
// and installs the new entry. The whole mutation happens under the
// service lock in one pass, so no partial backlink state is observable.
func (s *Service) applyUpdate(path string, content []byte) {
	// The file may have been deleted while the update was pending.
	if _, err := s.store.Stat(path); err != nil {
		s.logger.Debug("linkindex: update target vanished, removing",
			slog.String("path", path))
		s.applyRemove(path)
		return
	}

	newHash := checksum.Sum(content)

	s.mu.Lock()
	old := s.idx.Files[path]
	if old != nil && old.ContentHash == newHash {
		s.mu.Unlock()
		s.logger.Debug("linkindex: content unchanged, skipping update",
			slog.String("path", path), slog.String("hash", checksum.Short(content)))
		return
	}

	oldLinkCount := 0
	if old != nil {
		oldLinkCount = len(old.OutgoingLinks)
		stripBacklinkContribution(s.idx, old)
		stripFromTagSets(s.idx, path)
	} else {
		s.idx.Metadata.TotalFiles++
	}

	entry, tags := s.parseEntry(path, content)
	s.idx.Files[path] = entry
	addTags(s.idx, path, tags)

	// Resolve against the current file set, which includes the updated
	// entry itself.
	res := resolver.New(s.idx, s.fuzzyDistance)
	for _, link := range entry.OutgoingLinks {
		res.ResolveLink(link, path)
		if link.TargetExists {
			addBacklink(s.idx, link.TargetFile, path)
		}
	}

	s.idx.Metadata.TotalLinks += len(entry.OutgoingLinks) - oldLinkCount
	snapshot := s.idx.Clone()
	s.mu.Unlock()

	s.logger.Debug("linkindex: updated",
		slog.String("path", path),
		slog.Int("links", len(entry.OutgoingLinks)))

	s.notify(snapshot)
}

// applyRemove strips the file everywhere: its entry, its backlink
// target key, every backlink source-set it appears in, and every tag
// membership set, pruning sets left empty.
func (s *Service) applyRemove(path string) {
	s.mu.Lock()
	entry, ok := s.idx.Files[path]
	if !ok {
		s.mu.Unlock()
		return
	}

	delete(s.idx.Files, path)
	s.idx.Metadata.TotalFiles--
	s.idx.Metadata.TotalLinks -= len(entry.OutgoingLinks)

	// Links from other files that resolved to the removed note become
	// broken: un-resolve them before dropping the reverse entry, so the
	// backlink inverse holds and the broken-link surface sees them.
	for source := range s.idx.Backlinks[path] {
		src, exists := s.idx.Files[source]
		if !exists {
			continue
		}
		for _, l := range src.OutgoingLinks {
			if l.TargetFile == path {
				l.TargetFile = ""
				l.TargetExists = false
			}
		}
	}
	delete(s.idx.Backlinks, path)
	for target, set := range s.idx.Backlinks {
		delete(set, path)
		if len(set) == 0 {
			delete(s.idx.Backlinks, target)
		}
	}
	stripFromTagSets(s.idx, path)

	snapshot := s.idx.Clone()
	s.mu.Unlock()

	s.logger.Debug("linkindex: removed", slog.String("path", path))
	s.notify(snapshot)
}

// stripBacklinkContribution removes the backlink entries created by a
// file's old resolved links, pruning empty sets.
func stripBacklinkContribution(idx *models.Index, entry *models.FileEntry) {
	for _, l := range entry.OutgoingLinks {
		if l.TargetFile == "" {
			continue
		}
		set := idx.Backlinks[l.TargetFile]
		if set == nil {
			continue
		}
		delete(set, entry.Path)
		if len(set) == 0 {
			delete(idx.Backlinks, l.TargetFile)
		}
	}
}

// stripFromTagSets removes a path from every tag membership set.
func stripFromTagSets(idx *models.Index, path string) {
	for tag, set := range idx.Tags {
		delete(set, path)
		if len(set) == 0 {
			delete(idx.Tags, tag)
		}
	}
}
