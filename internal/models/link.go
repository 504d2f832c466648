// Package models defines the domain types for Raido: parsed links,
// per-note index entries, and the aggregate link index.
package models

// LinkFormat identifies the syntax a link was written in.
type LinkFormat string

const (
	FormatWikilink LinkFormat = "wikilink"
	FormatMarkdown LinkFormat = "markdown"
)

// Position is a zero-based line/column location in a source file.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range spans from Start (inclusive) to End (exclusive) in a source file.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// LinkInstance is one parsed reference occurring in a source file.
// Title and DisplayText are fixed at parse time; TargetFile and
// TargetExists are filled in during resolution.
type LinkInstance struct {
	Title        string     `json:"title"`
	SourceFile   string     `json:"source_file"`
	TargetFile   string     `json:"target_file,omitempty"`
	Range        Range      `json:"range"`
	Format       LinkFormat `json:"format"`
	TargetExists bool       `json:"target_exists"`
	DisplayText  string     `json:"display_text"`
}

// Clone returns a copy of the link.
func (l *LinkInstance) Clone() *LinkInstance {
	cp := *l
	return &cp
}
