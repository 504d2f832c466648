package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/graph"
	"github.com/starford/raido/internal/noteservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the note path from the URL wildcard. Supports
// encoded slashes from generated clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List indexed notes with optional pagination and tag filtering
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Param			sort	query		string	false	"Sort field"	Enums(path, title, modified)
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}

	items, total, err := h.svc.ListNotes(r.Context(), limit, offset, q.Get("tag"), q.Get("sort"))
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// GetNote handles GET /api/notes/*.
//
//	@Summary		Get a single note with its resolved links and backlinks
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	note, err := h.svc.GetNote(r.Context(), path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get note failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note and index it
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusConflict, errorBody("note already exists"))
		} else {
			slog.Error("create note failed", slog.String("path", req.Path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/*.
//
//	@Summary		Update a note with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string				true	"Note path"
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	UpdateNoteRequest	true	"Updated content"
//	@Success		200		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	var req UpdateNoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	note, err := h.svc.UpdateNote(r.Context(), path, []byte(req.Content), ifMatch)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
		default:
			slog.Error("update note failed", slog.String("path", path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/*.
//
//	@Summary		Delete a note and strip it from the index
//	@Tags			notes
//	@Param			path	path	string	true	"Note path"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteNote(r.Context(), path); err != nil {
		slog.Error("delete note failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		List all notes that link to the given note
//	@Tags			graph
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	BacklinksResponse
//	@Security		BearerAuth
//	@Router			/backlinks/{path} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	bl := h.svc.Backlinks(r.Context(), path)
	writeJSON(w, http.StatusOK, BacklinksResponse{Path: path, Backlinks: bl})
}

// Links handles GET /api/links/*.
//
//	@Summary		List a note's outgoing links, including broken ones
//	@Tags			graph
//	@Produce		json
//	@Param			path	path	string	true	"Note path"
//	@Success		200
//	@Security		BearerAuth
//	@Router			/links/{path} [get]
func (h *Handler) Links(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":  path,
		"links": h.svc.LinksFrom(r.Context(), path),
	})
}

// Distance handles GET /api/distance?from=&to=.
//
//	@Summary		Shortest hop count between two notes (undirected)
//	@Tags			graph
//	@Produce		json
//	@Param			from	query		string	true	"Source note path"
//	@Param			to		query		string	true	"Target note path"
//	@Success		200		{object}	DistanceResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/distance [get]
func (h *Handler) Distance(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameters 'from' and 'to' are required"))
		return
	}
	d := h.svc.Distance(r.Context(), from, to)
	writeJSON(w, http.StatusOK, DistanceResponse{From: from, To: to, Distance: d})
}

// Connected handles GET /api/connected/*?depth=N.
//
//	@Summary		Notes reachable from a root within a depth bound
//	@Tags			graph
//	@Produce		json
//	@Param			path	path		string	true	"Root note path"
//	@Param			depth	query		int		false	"Max depth (omit for unlimited)"
//	@Success		200		{object}	ConnectedResponse
//	@Security		BearerAuth
//	@Router			/connected/{path} [get]
func (h *Handler) Connected(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	depth := -1 // unlimited unless specified
	if raw := r.URL.Query().Get("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("depth must be a non-negative integer"))
			return
		}
		depth = d
	}
	nodes := h.svc.Connected(r.Context(), path, depth)
	writeJSON(w, http.StatusOK, ConnectedResponse{Path: path, Nodes: nodes})
}

// Broken handles GET /api/broken.
//
//	@Summary		List all files containing at least one broken link
//	@Tags			graph
//	@Produce		json
//	@Success		200
//	@Security		BearerAuth
//	@Router			/broken [get]
func (h *Handler) Broken(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"files": h.svc.BrokenFiles(r.Context()),
	})
}

// Validate handles GET /api/validate.
//
//	@Summary		Full link validation report
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	ValidateResponse
//	@Security		BearerAuth
//	@Router			/validate [get]
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Validate(r.Context()))
}

// Resolve handles GET /api/resolve?title=&source=.
//
//	@Summary		Resolve a raw link title to its best-matching note
//	@Tags			graph
//	@Produce		json
//	@Param			title	query		string	true	"Raw link title as written"
//	@Param			source	query		string	false	"Source note path"
//	@Success		200
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resolve [get]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'title' is required"))
		return
	}
	res := h.svc.Resolve(r.Context(), title, r.URL.Query().Get("source"))
	writeJSON(w, http.StatusOK, res)
}

// Graph handles GET /api/graph.
//
//	@Summary		Full resolved graph for visualization
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, edges := h.svc.Graph(r.Context())
	if edges == nil {
		edges = []graph.GraphEdge{}
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nodes, Edges: edges})
}

// Stats handles GET /api/stats.
//
//	@Summary		Index totals and last rebuild duration
//	@Tags			index
//	@Produce		json
//	@Success		200
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats(r.Context()))
}

// Rebuild handles POST /api/rebuild.
//
//	@Summary		Trigger a full index rebuild
//	@Tags			index
//	@Produce		json
//	@Success		200
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/rebuild [post]
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	idx, err := h.svc.Rebuild(r.Context())
	if err != nil {
		if errors.Is(err, apperr.ErrRebuildInProgress) {
			writeJSON(w, http.StatusConflict, errorBody("rebuild already in progress"))
			return
		}
		slog.Error("rebuild failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_files": idx.Metadata.TotalFiles,
		"total_links": idx.Metadata.TotalLinks,
		"total_tags":  idx.TotalTags(),
	})
}
