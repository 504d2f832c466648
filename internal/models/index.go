package models

import (
	"fmt"
	"time"
)

// IndexVersion is bumped whenever the serialized index shape changes.
const IndexVersion = 1

// FileMetadata carries display and stat information for a note.
type FileMetadata struct {
	Title      string    `json:"title"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// FileEntry is the per-note index record. It is replaced wholesale on
// every rebuild or single-file update.
type FileEntry struct {
	Path          string          `json:"path"`
	Name          string          `json:"name"`
	LastIndexed   time.Time       `json:"last_indexed"`
	ContentHash   string          `json:"content_hash"`
	OutgoingLinks []*LinkInstance `json:"outgoing_links"`
	Metadata      FileMetadata    `json:"metadata"`
}

// Clone returns a deep copy of the entry.
func (e *FileEntry) Clone() *FileEntry {
	cp := *e
	cp.OutgoingLinks = make([]*LinkInstance, len(e.OutgoingLinks))
	for i, l := range e.OutgoingLinks {
		cp.OutgoingLinks[i] = l.Clone()
	}
	return &cp
}

// IndexMetadata holds the counters maintained incrementally by the index
// service. TotalFiles and TotalLinks must always equal len(Files) and the
// sum of all outgoing-link counts respectively.
type IndexMetadata struct {
	Version       int       `json:"version"`
	LastBuildTime time.Time `json:"last_build_time"`
	TotalFiles    int       `json:"total_files"`
	TotalLinks    int       `json:"total_links"`
}

// PathSet is a set of note paths, serialized as an object of true flags.
type PathSet map[string]bool

// Clone returns a copy of the set.
func (s PathSet) Clone() PathSet {
	cp := make(PathSet, len(s))
	for k := range s {
		cp[k] = true
	}
	return cp
}

// Index is the aggregate link graph: per-file entries, the derived
// backlink inverse, and tag membership sets.
//
// Backlinks maps targetPath -> set of sourcePaths linking to it, and is
// mutated only by the index service; it is always the exact inverse of
// the resolved TargetFile values across all outgoing links. Tags maps
// lowercase tag name -> set of member paths. Empty sets are pruned, never
// stored.
type Index struct {
	Files     map[string]*FileEntry `json:"files"`
	Backlinks map[string]PathSet    `json:"backlinks"`
	Tags      map[string]PathSet    `json:"tags"`
	Metadata  IndexMetadata         `json:"metadata"`
}

// NewIndex returns an empty index with initialized maps.
func NewIndex() *Index {
	return &Index{
		Files:     make(map[string]*FileEntry),
		Backlinks: make(map[string]PathSet),
		Tags:      make(map[string]PathSet),
		Metadata:  IndexMetadata{Version: IndexVersion},
	}
}

// Clone returns a deep-copy snapshot. Callers receive genuinely
// independent state, so external consumers cannot mutate the live index.
func (idx *Index) Clone() *Index {
	cp := NewIndex()
	cp.Metadata = idx.Metadata
	for p, e := range idx.Files {
		cp.Files[p] = e.Clone()
	}
	for t, set := range idx.Backlinks {
		cp.Backlinks[t] = set.Clone()
	}
	for t, set := range idx.Tags {
		cp.Tags[t] = set.Clone()
	}
	return cp
}

// TotalTags returns the number of distinct tags.
func (idx *Index) TotalTags() int {
	return len(idx.Tags)
}

// CheckInvariants verifies the structural invariants that must hold after
// every mutation. Used by tests and assertions, not by normal operation.
func (idx *Index) CheckInvariants() error {
	if got := len(idx.Files); got != idx.Metadata.TotalFiles {
		return fmt.Errorf("index: total_files=%d but files has %d entries", idx.Metadata.TotalFiles, got)
	}
	links := 0
	for _, e := range idx.Files {
		links += len(e.OutgoingLinks)
	}
	if links != idx.Metadata.TotalLinks {
		return fmt.Errorf("index: total_links=%d but counted %d", idx.Metadata.TotalLinks, links)
	}
	for target, set := range idx.Backlinks {
		if len(set) == 0 {
			return fmt.Errorf("index: empty backlink set for %s", target)
		}
		for source := range set {
			entry, ok := idx.Files[source]
			if !ok {
				return fmt.Errorf("index: backlinks[%s] references missing file %s", target, source)
			}
			if !linksTo(entry, target) {
				return fmt.Errorf("index: backlinks[%s] includes %s but no such outgoing link", target, source)
			}
		}
	}
	// Inverse direction: every resolved link must be reflected in Backlinks.
	for source, entry := range idx.Files {
		for _, l := range entry.OutgoingLinks {
			if l.TargetFile == "" {
				continue
			}
			if !idx.Backlinks[l.TargetFile][source] {
				return fmt.Errorf("index: link %s -> %s missing from backlinks", source, l.TargetFile)
			}
		}
	}
	for tag, set := range idx.Tags {
		if len(set) == 0 {
			return fmt.Errorf("index: empty tag set for %s", tag)
		}
		for p := range set {
			if _, ok := idx.Files[p]; !ok {
				return fmt.Errorf("index: tags[%s] references missing file %s", tag, p)
			}
		}
	}
	return nil
}

func linksTo(entry *FileEntry, target string) bool {
	for _, l := range entry.OutgoingLinks {
		if l.TargetFile == target {
			return true
		}
	}
	return false
}
