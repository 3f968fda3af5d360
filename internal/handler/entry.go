package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/journal/internal/apperror"
	"github.com/sakif/journal/internal/auth"
	"github.com/sakif/journal/internal/export"
	"github.com/sakif/journal/internal/model"
	"github.com/sakif/journal/internal/query"
	"github.com/sakif/journal/internal/service"
)

// EntryService is the part of service.EntryService the handlers call.
type EntryService interface {
	Create(ctx context.Context, ownerID string, in service.EntryInput) (*model.Entry, error)
	Get(ctx context.Context, ownerID, id string) (*model.Entry, error)
	List(ctx context.Context, ownerID string, params service.ListParams) ([]model.Entry, error)
	Update(ctx context.Context, ownerID, id string, in service.EntryInput) (*model.Entry, error)
	Delete(ctx context.Context, ownerID, id string) error
	Calendar(ctx context.Context, ownerID, month, timezoneOffset string) (*service.CalendarMonth, error)
}

// Renderer turns entries into a downloadable document.
type Renderer interface {
	ContentType() string
	Render(w io.Writer, entries []model.Entry, opts export.Options) error
	RenderEntry(w io.Writer, entry model.Entry, opts export.Options) error
}

// EntryHandler serves the owner-scoped journal entry API.
//
// Every route sits behind auth.RequireAuth, so the owner is always taken from
// the verified token in the request context, never from the URL or body.
type EntryHandler struct {
	entries  EntryService
	renderer Renderer
	logger   *slog.Logger
}

func NewEntryHandler(entries EntryService, renderer Renderer, logger *slog.Logger) *EntryHandler {
	return &EntryHandler{
		entries:  entries,
		renderer: renderer,
		logger:   logger,
	}
}

// entryRequest is the body of create and update. Pointers distinguish
// "absent" from "empty" only where it matters: createdAt is optional.
type entryRequest struct {
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Tags      []string   `json:"tags"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func (req entryRequest) input() service.EntryInput {
	return service.EntryInput{
		Title:     req.Title,
		Content:   req.Content,
		Tags:      req.Tags,
		CreatedAt: req.CreatedAt,
	}
}

// ownerID reads the authenticated user. The route group guarantees it is
// present; a missing ID is treated as unauthenticated rather than trusted.
func (h *EntryHandler) ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(h.logger, w, r, apperror.Unauthenticated())
		return "", false
	}
	return id, true
}

func listParams(r *http.Request) service.ListParams {
	q := r.URL.Query()
	return service.ListParams{
		Search:         q.Get("search"),
		Date:           q.Get("date"),
		TimezoneOffset: q.Get("timezoneOffset"),
	}
}

// HandleList returns the caller's entries, newest first.
//
// HTTP: GET /api/entries?search=hike&date=2024-03-10&timezoneOffset=-330
//
// search matches title, content or any tag, case-insensitively. date selects
// one calendar day in the client's timezone; timezoneOffset is the value of
// JavaScript's Date.getTimezoneOffset(). The response is always an array,
// [] when nothing matches.
func (h *EntryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	entries, err := h.entries.List(r.Context(), ownerID, listParams(r))
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// HandleCreate saves a new entry.
//
// HTTP: POST /api/entries
// REQUEST BODY: {"title": "...", "content": "...", "tags": ["a","b"], "createdAt": "2024-03-09T20:00:00Z"}
// RESPONSE: 201 with the stored entry (normalised tags, server-assigned id)
func (h *EntryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req entryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	entry, err := h.entries.Create(r.Context(), ownerID, req.input())
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	w.Header().Set("Location", "/api/entries/"+entry.ID)
	writeJSON(w, http.StatusCreated, entry)
}

// HandleGet returns one entry.
//
// HTTP: GET /api/entries/{id}
//
// Another user's entry is a 404, exactly like a missing one.
func (h *EntryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	entry, err := h.entries.Get(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// HandleUpdate replaces an entry's title, content and tags.
//
// HTTP: PUT /api/entries/{id}
//
// Omitted tags clear the entry's tags. createdAt in the body is ignored.
func (h *EntryHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req entryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	entry, err := h.entries.Update(r.Context(), ownerID, chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// HandleDelete permanently removes an entry.
//
// HTTP: DELETE /api/entries/{id}
// RESPONSE: 200 {"message": "entry deleted"}
func (h *EntryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	if err := h.entries.Delete(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "entry deleted"})
}

// HandleCalendar returns per-day entry counts for one month.
//
// HTTP: GET /api/entries/calendar?month=2024-03&timezoneOffset=-330
// RESPONSE: {"month":"2024-03","days":[{"date":"2024-03-10","count":2}],"total":2}
//
// month defaults to the current month in the client's timezone.
func (h *EntryHandler) HandleCalendar(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	offset := r.URL.Query().Get("timezoneOffset")
	month := r.URL.Query().Get("month")
	if month == "" {
		minutes, err := query.ParseOffset(offset)
		if err != nil {
			writeError(h.logger, w, r, err)
			return
		}
		month = query.LocalDay(time.Now(), minutes)[:len(query.MonthLayout)]
	}

	cal, err := h.entries.Calendar(r.Context(), ownerID, month, offset)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, cal)
}

// HandleExport downloads the entries matching the list filters as a PDF.
//
// HTTP: GET /api/entries/export.pdf?search=&date=&timezoneOffset=
//
// The document is rendered into a buffer first. If rendering fails the client
// still gets a proper JSON error instead of a truncated file with a 200.
func (h *EntryHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	params := listParams(r)
	entries, err := h.entries.List(r.Context(), ownerID, params)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	// List already rejected a malformed offset, so this cannot fail here.
	offset, _ := query.ParseOffset(params.TimezoneOffset)

	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, entries, export.Options{TimezoneOffset: offset}); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	h.writeDocument(w, "my-journal.pdf", buf.Bytes())
}

// HandleExportEntry downloads a single entry as a PDF named after its title.
//
// HTTP: GET /api/entries/{id}/export.pdf?timezoneOffset=
func (h *EntryHandler) HandleExportEntry(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	offset, err := query.ParseOffset(r.URL.Query().Get("timezoneOffset"))
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	entry, err := h.entries.Get(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := h.renderer.RenderEntry(&buf, *entry, export.Options{TimezoneOffset: offset}); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	h.writeDocument(w, export.Filename(entry.Title), buf.Bytes())
}

func (h *EntryHandler) writeDocument(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", h.renderer.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("writing document failed", slog.String("error", err.Error()))
	}
}
