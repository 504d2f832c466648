// Package parser extracts wikilinks, Markdown links, and #tags from raw
// note content, along with YAML frontmatter and a derived title.
package parser

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/raido/internal/models"
)

var (
	// Nested [[a [[b]]]] sequences match opportunistically: the target
	// charset excludes ']' and '|' only, so leftmost-match semantics
	// produce a partial match. Kept as-is; see the nested-bracket test.
	wikilinkRe = regexp.MustCompile(`\[\[([^\]|]*)(?:\|([^\]]*))?\]\]`)
	mdLinkRe   = regexp.MustCompile(`\[([^\]\[]*)\]\(([^)]*)\)`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z0-9_-]+)`)
	schemeRe   = regexp.MustCompile(`^(?:https?://|mailto:)`)

	squashRe = regexp.MustCompile(`[\s_]+`)
)

// Options controls parsing behavior. It is intentionally small; it exists
// so parsing can grow settings without rewriting call sites.
type Options struct{}

// Result holds everything extracted from a single note.
type Result struct {
	Links       []*models.LinkInstance
	Tags        []string
	Errors      []string
	Frontmatter map[string]any
	Title       string
}

// Parse extracts links, tags, frontmatter, and a title from content.
// Malformed individual links are recorded in Errors and parsing
// continues; Parse itself never fails.
func Parse(content string, sourceFile string, _ Options) (res *Result) {
	res = &Result{}
	defer func() {
		// A panic here would be an internal bug; degrade to an empty
		// result with a single top-level error instead of crashing the
		// host.
		if r := recover(); r != nil {
			res = &Result{Errors: []string{fmt.Sprintf("parser: internal failure: %v", r)}}
		}
	}()

	fm, body, bodyOffset := splitFrontmatter(content)
	res.Frontmatter = fm

	res.Links, res.Errors = extractLinks(content, body, bodyOffset, sourceFile)
	res.Tags = extractTags(body, fm)
	res.Title = deriveTitle(fm, body, sourceFile)
	return res
}

// NormalizeTarget turns raw link text into the canonical resolver key:
// trim, lowercase, collapse whitespace/underscore runs into single
// hyphens, strip trailing hyphens, and ensure a .md suffix.
func NormalizeTarget(target string) string {
	t := strings.ToLower(strings.TrimSpace(target))
	t = squashRe.ReplaceAllString(t, "-")
	t = strings.TrimRight(t, "-")
	if t == "" {
		return ""
	}
	if !strings.HasSuffix(t, ".md") {
		t += ".md"
	}
	return t
}

// extractLinks finds wikilinks and Markdown links in body, reporting
// positions relative to the full original content.
func extractLinks(content, body string, bodyOffset int, sourceFile string) ([]*models.LinkInstance, []string) {
	links := []*models.LinkInstance{}
	var errs []string

	for _, m := range wikilinkRe.FindAllStringSubmatchIndex(body, -1) {
		target := submatch(body, m, 1)
		display := target
		if m[4] >= 0 {
			display = submatch(body, m, 2)
		}
		link := &models.LinkInstance{
			Title:       target,
			SourceFile:  sourceFile,
			Range:       spanToRange(content, bodyOffset+m[0], bodyOffset+m[1]),
			Format:      models.FormatWikilink,
			DisplayText: display,
		}
		if strings.TrimSpace(target) == "" {
			pos := link.Range.Start
			errs = append(errs, fmt.Sprintf("empty wikilink target at %d:%d", pos.Line, pos.Column))
		}
		links = append(links, link)
	}

	for _, m := range mdLinkRe.FindAllStringSubmatchIndex(body, -1) {
		text := submatch(body, m, 1)
		target := submatch(body, m, 2)
		// Anchors and external schemes are not links to other notes.
		if strings.HasPrefix(target, "#") || schemeRe.MatchString(target) {
			continue
		}
		links = append(links, &models.LinkInstance{
			Title:       target,
			SourceFile:  sourceFile,
			Range:       spanToRange(content, bodyOffset+m[0], bodyOffset+m[1]),
			Format:      models.FormatMarkdown,
			DisplayText: text,
		})
	}

	// Keep source order so OutgoingLinks reflects appearance order.
	sort.SliceStable(links, func(i, j int) bool {
		a, b := links[i].Range.Start, links[j].Range.Start
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})

	return links, errs
}

// extractTags collects inline #tags from body plus any frontmatter tags,
// lowercased, deduplicated, and sorted.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		seen[strings.ToLower(m[1])] = struct{}{}
	}

	if fm != nil {
		if raw, ok := fm["tags"]; ok {
			if list, ok := raw.([]any); ok {
				for _, item := range list {
					if s, ok := item.(string); ok {
						s = strings.ToLower(strings.TrimSpace(s))
						if s != "" {
							seen[s] = struct{}{}
						}
					}
				}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// splitFrontmatter separates YAML frontmatter (between leading ---
// delimiters) from the Markdown body. Returns the body's byte offset in
// the original content so link positions stay accurate. Invalid YAML
// falls back to treating everything as body.
func splitFrontmatter(content string) (map[string]any, string, int) {
	const delim = "---"
	trimmed := strings.TrimLeft(content, "\n\r")

	if !strings.HasPrefix(trimmed, delim) {
		return nil, content, 0
	}

	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return nil, content, 0
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(afterDelim, "\n\r")
	bodyOffset := len(content) - len(body)

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
		return nil, content, 0
	}
	return fm, body, bodyOffset
}

// deriveTitle returns the frontmatter title, otherwise the first H1
// heading, otherwise the filename stem.
func deriveTitle(fm map[string]any, body, sourceFile string) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return Stem(sourceFile)
}

// Stem returns the base filename without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PositionAt converts a byte offset into a zero-based (line, column)
// pair. '\r' is treated as zero-width so positions agree between LF and
// CRLF content. Offsets beyond the content clamp to its end.
func PositionAt(content string, offset int) models.Position {
	if offset > len(content) {
		offset = len(content)
	}
	var pos models.Position
	for i := 0; i < offset; i++ {
		switch content[i] {
		case '\n':
			pos.Line++
			pos.Column = 0
		case '\r':
			// zero-width
		default:
			pos.Column++
		}
	}
	return pos
}

func spanToRange(content string, start, end int) models.Range {
	return models.Range{
		Start: PositionAt(content, start),
		End:   PositionAt(content, end),
	}
}

func submatch(s string, m []int, n int) string {
	if m[2*n] < 0 {
		return ""
	}
	return s[m[2*n]:m[2*n+1]]
}
