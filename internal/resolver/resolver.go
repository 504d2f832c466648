// Package resolver maps unstructured link titles to concrete note files
// using tiered matching: exact, case-insensitive, fuzzy (edit distance),
// then substring. When every tier misses it still produces a ranked
// candidate list for the caller to surface.
package resolver

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/parser"
)

const (
	// DefaultFuzzyDistance is the edit-distance cutoff for the fuzzy
	// tier. Tunable via config; the exact value is not load-bearing.
	DefaultFuzzyDistance = 3

	// DefaultCandidateLimit caps ranked candidate lists.
	DefaultCandidateLimit = 5
)

// Candidate scores. Ranking is independent of tier order: exact beats
// prefix beats substring beats fuzzy; zero-score files are excluded.
const (
	scoreExact         = 1000
	scoreExactSansExt  = 950
	scorePrefix        = 500
	scorePrefixStem    = 450
	scoreSubstring     = 300
	scoreSubstringStem = 250
	scoreFuzzyMax      = 100
)

// Resolution is the ephemeral result of resolving one link.
type Resolution struct {
	Link       *models.LinkInstance `json:"link"`
	TargetFile string               `json:"target_file,omitempty"`
	Exists     bool                 `json:"exists"`
	Candidates []*models.FileEntry  `json:"candidates,omitempty"`
}

type cachedResolution struct {
	targetFile string
	exists     bool
}

// cacheKey carries the source directory alongside the normalized target:
// same-directory preference means the same title can resolve differently
// from different directories.
type cacheKey struct {
	norm      string
	sourceDir string
}

// Resolver resolves link titles against a snapshot of the file set.
// It never mutates the index; UpdateIndex swaps the snapshot and clears
// the memoization cache (one resolution per target and source directory
// per index generation).
type Resolver struct {
	mu             sync.RWMutex
	idx            *models.Index
	order          []string // deterministic file-set order (sorted paths)
	cache          map[cacheKey]cachedResolution
	fuzzyDistance  int
	candidateLimit int
}

// New creates a resolver over the given index snapshot.
// fuzzyDistance <= 0 selects DefaultFuzzyDistance.
func New(idx *models.Index, fuzzyDistance int) *Resolver {
	if fuzzyDistance <= 0 {
		fuzzyDistance = DefaultFuzzyDistance
	}
	r := &Resolver{fuzzyDistance: fuzzyDistance, candidateLimit: DefaultCandidateLimit}
	r.UpdateIndex(idx)
	return r
}

// SetCandidateLimit caps the ranked candidates attached to a failed
// resolution. limit <= 0 restores DefaultCandidateLimit.
func (r *Resolver) SetCandidateLimit(limit int) {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	r.mu.Lock()
	r.candidateLimit = limit
	r.mu.Unlock()
}

// UpdateIndex replaces the index snapshot and invalidates the cache.
// Clearing eagerly is always safe; staleness is not.
func (r *Resolver) UpdateIndex(idx *models.Index) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx == nil {
		idx = models.NewIndex()
	}
	r.idx = idx
	r.order = make([]string, 0, len(idx.Files))
	for p := range idx.Files {
		r.order = append(r.order, p)
	}
	sort.Strings(r.order)
	r.cache = make(map[cacheKey]cachedResolution)
}

// ResolveLink fills in the link's TargetFile/TargetExists and returns the
// resolution, including ranked candidates when no tier matched.
func (r *Resolver) ResolveLink(link *models.LinkInstance, sourceFile string) Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()

	norm := parser.NormalizeTarget(link.Title)
	sourceDir := filepath.Dir(sourceFile)
	key := cacheKey{norm: norm, sourceDir: sourceDir}

	if hit, ok := r.cache[key]; ok {
		link.TargetFile = hit.targetFile
		link.TargetExists = hit.exists
		res := Resolution{Link: link, TargetFile: hit.targetFile, Exists: hit.exists}
		if !hit.exists {
			res.Candidates = r.rankCandidates(norm, r.candidateLimit)
		}
		return res
	}

	entry := r.findBestMatch(norm, sourceDir)
	res := Resolution{Link: link}
	if entry != nil {
		link.TargetFile = entry.Path
		link.TargetExists = true
		res.TargetFile = entry.Path
		res.Exists = true
	} else {
		link.TargetFile = ""
		link.TargetExists = false
		res.Candidates = r.rankCandidates(norm, r.candidateLimit)
	}
	r.cache[key] = cachedResolution{targetFile: link.TargetFile, exists: link.TargetExists}
	return res
}

// FindBestMatch applies the matching tiers to a raw target string and
// returns the winning file entry, or nil when every tier misses.
func (r *Resolver) FindBestMatch(target, sourceDir string) *models.FileEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findBestMatch(parser.NormalizeTarget(target), sourceDir)
}

// findBestMatch assumes the target is already normalized and the lock is
// held.
func (r *Resolver) findBestMatch(norm, sourceDir string) *models.FileEntry {
	if norm == "" {
		return nil
	}
	normSans := strings.TrimSuffix(norm, ".md")

	// Tier 1: exact base-name match (case-sensitive).
	if e := r.pickByDir(sourceDir, func(base, _ string) bool { return base == norm }); e != nil {
		return e
	}

	// Tier 2: case-insensitive match.
	if e := r.pickByDir(sourceDir, func(base, _ string) bool { return strings.EqualFold(base, norm) }); e != nil {
		return e
	}

	// Tier 3: fuzzy match under the edit-distance cutoff, tried both
	// with and without the .md suffix. Ties go to the first file in
	// file-set order.
	var best *models.FileEntry
	bestDist := r.fuzzyDistance
	for _, p := range r.order {
		base := filepath.Base(p)
		stem := strings.TrimSuffix(base, ".md")
		d := levenshtein(norm, base)
		if ds := levenshtein(normSans, stem); ds < d {
			d = ds
		}
		if d < bestDist {
			bestDist = d
			best = r.idx.Files[p]
		}
	}
	if best != nil {
		return best
	}

	// Tier 4: substring match, first hit wins.
	for _, p := range r.order {
		base := filepath.Base(p)
		if strings.Contains(base, norm) || strings.Contains(strings.TrimSuffix(base, ".md"), normSans) {
			return r.idx.Files[p]
		}
	}
	return nil
}

// pickByDir returns the first file whose base name satisfies match,
// preferring files in the link's source directory when several do.
func (r *Resolver) pickByDir(sourceDir string, match func(base, path string) bool) *models.FileEntry {
	var first *models.FileEntry
	for _, p := range r.order {
		if !match(filepath.Base(p), p) {
			continue
		}
		if filepath.Dir(p) == sourceDir {
			return r.idx.Files[p]
		}
		if first == nil {
			first = r.idx.Files[p]
		}
	}
	return first
}

// Candidates returns up to limit file entries ranked by match score for
// the given raw title. limit <= 0 selects DefaultCandidateLimit.
func (r *Resolver) Candidates(title string, limit int) []*models.FileEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	return r.rankCandidates(parser.NormalizeTarget(title), limit)
}

func (r *Resolver) rankCandidates(norm string, limit int) []*models.FileEntry {
	if norm == "" {
		return nil
	}
	normSans := strings.TrimSuffix(norm, ".md")

	type scored struct {
		entry *models.FileEntry
		score int
	}
	var ranked []scored
	for _, p := range r.order {
		s := r.scoreName(filepath.Base(p), norm, normSans)
		if s > 0 {
			ranked = append(ranked, scored{entry: r.idx.Files[p], score: s})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]*models.FileEntry, len(ranked))
	for i, s := range ranked {
		out[i] = s.entry
	}
	return out
}

func (r *Resolver) scoreName(base, norm, normSans string) int {
	stem := strings.TrimSuffix(base, ".md")
	switch {
	case base == norm:
		return scoreExact
	case stem == normSans:
		return scoreExactSansExt
	case strings.HasPrefix(base, norm):
		return scorePrefix
	case strings.HasPrefix(stem, normSans):
		return scorePrefixStem
	case strings.Contains(base, norm):
		return scoreSubstring
	case strings.Contains(stem, normSans):
		return scoreSubstringStem
	}
	d := levenshtein(norm, base)
	if ds := levenshtein(normSans, stem); ds < d {
		d = ds
	}
	if d < r.fuzzyDistance {
		return scoreFuzzyMax * (r.fuzzyDistance - d) / r.fuzzyDistance
	}
	return 0
}

// IsLinked reports whether source has an outgoing link resolved to target.
// It scans only the source file's links, never the whole index.
func (r *Resolver) IsLinked(source, target string) bool {
	return r.GetLink(source, target) != nil
}

// GetLink returns the first outgoing link from source resolved to target,
// or nil.
func (r *Resolver) GetLink(source, target string) *models.LinkInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.idx.Files[source]
	if !ok {
		return nil
	}
	for _, l := range entry.OutgoingLinks {
		if l.TargetFile == target {
			return l
		}
	}
	return nil
}

// levenshtein computes edit distance with the two-row dynamic program.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
