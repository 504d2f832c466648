package api

import (
	"github.com/starford/raido/internal/graph"
	"github.com/starford/raido/internal/noteservice"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Content string `json:"content" example:"# Hello\n[[world]]" validate:"required"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// BacklinksResponse lists the notes linking to a target.
type BacklinksResponse struct {
	Path      string   `json:"path" example:"notes/hello.md" validate:"required"`
	Backlinks []string `json:"backlinks" validate:"required"`
}

// DistanceResponse carries a shortest-path query result.
// Distance is -1 when the notes are unreachable from each other.
type DistanceResponse struct {
	From     string `json:"from" example:"notes/a.md" validate:"required"`
	To       string `json:"to" example:"notes/b.md" validate:"required"`
	Distance int    `json:"distance" example:"2" validate:"required"`
}

// ConnectedResponse lists notes reachable from a root within a depth bound.
type ConnectedResponse struct {
	Path  string       `json:"path" validate:"required"`
	Nodes []graph.Node `json:"nodes" validate:"required"`
}

// GraphResponse wraps the full resolved graph.
type GraphResponse struct {
	Nodes []graph.GraphNode `json:"nodes" validate:"required"`
	Edges []graph.GraphEdge `json:"edges" validate:"required"`
}

// ValidateResponse is the full broken-link report.
type ValidateResponse = graph.Report
