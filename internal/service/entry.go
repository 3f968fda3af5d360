// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes the database
//
// Services take repository interfaces, not *sqlite.DB or *postgres.DB, so the
// tests run against in-memory fakes and main.go picks the backend.
//
// Services accept primitives and return domain errors from apperror. They
// have no knowledge of HTTP status codes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/journal/internal/apperror"
	"github.com/sakif/journal/internal/model"
	"github.com/sakif/journal/internal/query"
	"github.com/sakif/journal/internal/repository"
)

// Validation limits. Lengths are counted in runes, so "日記" is two
// characters, not six bytes.
const (
	MaxTitleLength   = 100
	MaxContentLength = 5000
	MaxTags          = 3
	MaxTagLength     = 20
)

// EntryInput carries the client-editable fields of an entry.
//
// CreatedAt backdates a new entry, typically from the calendar view. It is
// ignored by Update: the creation instant never changes after creation.
type EntryInput struct {
	Title     string
	Content   string
	Tags      []string
	CreatedAt *time.Time
}

// ListParams are the raw query-string values of a list request.
type ListParams struct {
	Search         string
	Date           string
	TimezoneOffset string
}

// DayCount is the number of entries on one local calendar day.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// CalendarMonth summarises a local month for the calendar view.
type CalendarMonth struct {
	Month string     `json:"month"`
	Days  []DayCount `json:"days"`
	Total int        `json:"total"`
}

// EntryService handles the business logic for journal entries.
//
// Every method takes the owner's user ID first. The repository scopes every
// query with it, so nothing here can reach another user's entries.
type EntryService struct {
	repo     repository.EntryRepository
	logger   *slog.Logger
	recorder Recorder
}

// NewEntryService creates an EntryService. recorder may be nil.
func NewEntryService(repo repository.EntryRepository, logger *slog.Logger, recorder Recorder) *EntryService {
	return &EntryService{
		repo:     repo,
		logger:   logger,
		recorder: recorderOrNop(recorder),
	}
}

// Create validates and saves a new entry for ownerID.
func (s *EntryService) Create(ctx context.Context, ownerID string, in EntryInput) (*model.Entry, error) {
	entry, err := buildEntry(ownerID, in)
	if err != nil {
		return nil, err
	}
	if in.CreatedAt != nil && !in.CreatedAt.IsZero() {
		entry.CreatedAt = in.CreatedAt.UTC()
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error("failed to create entry",
			slog.String("ownerID", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.recorder.EntryOp("create")
	s.logger.Info("entry created",
		slog.String("id", entry.ID),
		slog.String("ownerID", ownerID),
	)
	return entry, nil
}

// Get returns one of the owner's entries.
func (s *EntryService) Get(ctx context.Context, ownerID, id string) (*model.Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "entry ID is required")
	}
	return s.repo.GetForOwner(ctx, ownerID, id)
}

// List returns the owner's entries matching the search text and date.
//
// The parameters are parsed into a query.Filter first. A malformed date
// fails with InvalidDateFormat here, before the repository is called.
func (s *EntryService) List(ctx context.Context, ownerID string, params ListParams) ([]model.Entry, error) {
	filter, err := query.New(params.Search, params.Date, params.TimezoneOffset)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.ListForOwner(ctx, ownerID, filter)
	if err != nil {
		s.logger.Error("failed to list entries",
			slog.String("ownerID", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.recorder.EntryOp("list")
	return entries, nil
}

// Update replaces the title, content and tags of one of the owner's entries.
//
// This is a full replacement: omitted tags clear the entry's tags. An entry
// that does not exist and one owned by someone else are the same NotFound.
// Concurrent updates are last-write-wins.
func (s *EntryService) Update(ctx context.Context, ownerID, id string, in EntryInput) (*model.Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "entry ID is required")
	}

	entry, err := buildEntry(ownerID, in)
	if err != nil {
		return nil, err
	}
	entry.ID = id

	// The repository fills in the stored createdAt, so a delete racing this
	// update cannot turn a successful write into a NotFound.
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, err
	}

	s.recorder.EntryOp("update")
	s.logger.Info("entry updated", slog.String("id", id), slog.String("ownerID", ownerID))
	return entry, nil
}

// Delete permanently removes one of the owner's entries.
func (s *EntryService) Delete(ctx context.Context, ownerID, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("id", "entry ID is required")
	}

	if err := s.repo.DeleteForOwner(ctx, ownerID, id); err != nil {
		return err
	}

	s.recorder.EntryOp("delete")
	s.logger.Info("entry deleted", slog.String("id", id), slog.String("ownerID", ownerID))
	return nil
}

// Calendar counts the owner's entries per local day of a month (YYYY-MM).
// Days without entries are omitted; Days is sorted by date.
func (s *EntryService) Calendar(ctx context.Context, ownerID, month, timezoneOffset string) (*CalendarMonth, error) {
	offset, err := query.ParseOffset(timezoneOffset)
	if err != nil {
		return nil, err
	}
	r, err := query.MonthRange(month, offset)
	if err != nil {
		return nil, err
	}

	entries, err := s.repo.ListForOwner(ctx, ownerID, query.Filter{Created: &r})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, e := range entries {
		counts[query.LocalDay(e.CreatedAt, offset)]++
	}

	cal := &CalendarMonth{
		Month: strings.TrimSpace(month),
		Days:  make([]DayCount, 0, len(counts)),
		Total: len(entries),
	}
	for day, n := range counts {
		cal.Days = append(cal.Days, DayCount{Date: day, Count: n})
	}
	sort.Slice(cal.Days, func(i, j int) bool { return cal.Days[i].Date < cal.Days[j].Date })

	return cal, nil
}

func buildEntry(ownerID string, in EntryInput) (*model.Entry, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)

	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if content == "" {
		return nil, apperror.ValidationFailed("content", "content is required")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("content must be %d characters or less", MaxContentLength))
	}

	tags, err := NormalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	return &model.Entry{
		OwnerID: ownerID,
		Title:   title,
		Content: content,
		Tags:    tags,
	}, nil
}

// NormalizeTags applies the tag rules in order: trim, lowercase, drop empty,
// drop duplicates keeping the first occurrence, keep the first MaxTags.
//
// Extra tags are dropped silently. A kept tag longer than MaxTagLength is a
// validation error. The result is never nil.
//
//	["Outdoors", "outdoors", " hiking ", "", "extra", "overflow"]
//	→ ["outdoors", "hiking", "extra"]
func NormalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, MaxTags)
	seen := make(map[string]bool, MaxTags)

	for _, tag := range tags {
		if len(out) == MaxTags {
			break
		}
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		if utf8.RuneCountInString(tag) > MaxTagLength {
			return nil, apperror.ValidationFailed("tags",
				fmt.Sprintf("tag %q must be %d characters or less", tag, MaxTagLength))
		}
		seen[tag] = true
		out = append(out, tag)
	}

	return out, nil
}
