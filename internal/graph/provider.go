// Package graph answers read-only queries over an index snapshot:
// backlinks, outgoing links, shortest distance, connected subgraphs, and
// broken-link reports.
package graph

import (
	"sort"
	"sync"

	"github.com/starford/raido/internal/models"
)

// Node is a reachable note with its BFS distance from the query root.
type Node struct {
	Path     string `json:"path"`
	Distance int    `json:"distance"`
}

// BrokenLink describes one unresolved outgoing link.
type BrokenLink struct {
	Source string               `json:"source"`
	Target string               `json:"target"`
	Link   *models.LinkInstance `json:"link"`
}

// Report tallies link validation over the whole index.
// Valid + Broken always equals the index's total link count.
type Report struct {
	Valid   int          `json:"valid"`
	Broken  int          `json:"broken"`
	Details []BrokenLink `json:"details"`
}

// GraphNode is a node in the full graph export.
type GraphNode struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// GraphEdge is a resolved directed edge in the full graph export.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type distKey struct{ from, to string }

// Provider runs queries against an index snapshot it never mutates.
// Distance results are memoized per snapshot; UpdateIndex swaps the
// snapshot and clears the cache.
type Provider struct {
	mu        sync.Mutex
	idx       *models.Index
	distCache map[distKey]int
}

// NewProvider creates a provider over the given snapshot.
func NewProvider(idx *models.Index) *Provider {
	p := &Provider{}
	p.UpdateIndex(idx)
	return p
}

// UpdateIndex replaces the snapshot and invalidates the distance cache.
func (p *Provider) UpdateIndex(idx *models.Index) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idx == nil {
		idx = models.NewIndex()
	}
	p.idx = idx
	p.distCache = make(map[distKey]int)
}

// BacklinksFor returns the entries of every file linking to path, sorted
// by path. Unknown or unlinked files yield an empty slice.
func (p *Provider) BacklinksFor(path string) []*models.FileEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	sources := p.idx.Backlinks[path]
	out := make([]*models.FileEntry, 0, len(sources))
	for s := range sources {
		if e, ok := p.idx.Files[s]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// LinksFrom returns the file's outgoing links verbatim, including
// unresolved ones. Unknown files yield an empty slice.
func (p *Provider) LinksFrom(path string) []*models.LinkInstance {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.idx.Files[path]
	if !ok {
		return []*models.LinkInstance{}
	}
	return entry.OutgoingLinks
}

// Distance returns the shortest hop count between two notes over the
// undirected union of forward links and backlinks: 0 for the same file,
// -1 when unreachable or either path is empty or unknown.
func (p *Provider) Distance(from, to string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if from == "" || to == "" {
		return -1
	}
	if _, ok := p.idx.Files[from]; !ok {
		return -1
	}
	if _, ok := p.idx.Files[to]; !ok {
		return -1
	}
	if from == to {
		return 0
	}

	key := distKey{from, to}
	if d, ok := p.distCache[key]; ok {
		return d
	}

	d := -1
	for _, n := range p.bfs(from, -1) {
		if n.Path == to {
			d = n.Distance
			break
		}
	}
	p.distCache[key] = d
	p.distCache[distKey{to, from}] = d // symmetric under undirected traversal
	return d
}

// Connected returns every note reachable from path (excluding path
// itself) with its distance, bounded by maxDepth. maxDepth 0 yields an
// empty result; a negative maxDepth means unlimited. Results are sorted
// by distance, then path.
func (p *Provider) Connected(path string, maxDepth int) []Node {
	p.mu.Lock()
	defer p.mu.Unlock()

	if maxDepth == 0 {
		return []Node{}
	}
	if _, ok := p.idx.Files[path]; !ok {
		return []Node{}
	}

	nodes := p.bfs(path, maxDepth)
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Distance != nodes[j].Distance {
			return nodes[i].Distance < nodes[j].Distance
		}
		return nodes[i].Path < nodes[j].Path
	})
	return nodes
}

// bfs walks the undirected link graph with an iterative queue (no
// recursion, so depth is bounded by index size rather than stack).
// maxDepth < 0 means unlimited. The root is not included in the result.
func (p *Provider) bfs(root string, maxDepth int) []Node {
	type qitem struct {
		path string
		dist int
	}
	visited := map[string]bool{root: true}
	queue := []qitem{{root, 0}}
	var out []Node

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if maxDepth >= 0 && cur.dist >= maxDepth {
			continue
		}

		for _, next := range p.neighbors(cur.path) {
			if visited[next] {
				continue
			}
			visited[next] = true
			out = append(out, Node{Path: next, Distance: cur.dist + 1})
			queue = append(queue, qitem{next, cur.dist + 1})
		}
	}
	return out
}

// neighbors returns forward targets and backlink sources of path that
// exist in the file set.
func (p *Provider) neighbors(path string) []string {
	var out []string
	if entry, ok := p.idx.Files[path]; ok {
		for _, l := range entry.OutgoingLinks {
			if l.TargetFile == "" {
				continue
			}
			if _, ok := p.idx.Files[l.TargetFile]; ok {
				out = append(out, l.TargetFile)
			}
		}
	}
	for s := range p.idx.Backlinks[path] {
		out = append(out, s)
	}
	return out
}

// FilesWithBrokenLinks returns every file with at least one unresolved
// outgoing link, sorted by path.
func (p *Provider) FilesWithBrokenLinks() []*models.FileEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*models.FileEntry
	for _, e := range p.idx.Files {
		for _, l := range e.OutgoingLinks {
			if !l.TargetExists {
				out = append(out, e)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Validate tallies valid vs broken links over the whole index, with a
// detail row per broken link.
func (p *Provider) Validate() Report {
	p.mu.Lock()
	defer p.mu.Unlock()

	rep := Report{Details: []BrokenLink{}}
	paths := sortedPaths(p.idx)
	for _, path := range paths {
		for _, l := range p.idx.Files[path].OutgoingLinks {
			if l.TargetExists {
				rep.Valid++
				continue
			}
			rep.Broken++
			rep.Details = append(rep.Details, BrokenLink{
				Source: path,
				Target: l.Title,
				Link:   l,
			})
		}
	}
	return rep
}

// Export returns the full resolved graph for visualization.
func (p *Provider) Export() ([]GraphNode, []GraphEdge) {
	p.mu.Lock()
	defer p.mu.Unlock()

	paths := sortedPaths(p.idx)
	nodes := make([]GraphNode, 0, len(paths))
	var edges []GraphEdge
	for _, path := range paths {
		e := p.idx.Files[path]
		nodes = append(nodes, GraphNode{ID: path, Title: e.Metadata.Title})
		for _, l := range e.OutgoingLinks {
			if l.TargetExists {
				edges = append(edges, GraphEdge{Source: path, Target: l.TargetFile})
			}
		}
	}
	return nodes, edges
}

func sortedPaths(idx *models.Index) []string {
	paths := make([]string, 0, len(idx.Files))
	for p := range idx.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
