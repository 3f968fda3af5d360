// Package query turns client-supplied search text and calendar selections
// into a storage-level predicate over journal entries.
//
// TWO INDEPENDENT AXES:
//   - Text: case-insensitive literal substring over title OR content OR any tag.
//   - Date: one calendar day in the client's local timezone, converted to an
//     inclusive UTC instant range before it reaches the store.
//
// When both are present they combine with AND. An empty Filter matches every
// entry.
//
// TIMEZONE OFFSETS:
// Offsets use the browser's Date.getTimezoneOffset() convention: the number
// of minutes to ADD to local time to reach UTC. A client in UTC+05:30 sends
// -330; a client in UTC-05:00 sends 300.
//
// Entries are stored with UTC creation instants, so a local day D maps to
//
//	[D 00:00 UTC + offset, D 00:00 UTC + offset + 24h - 1ms]
//
// Filtering by the UTC calendar day instead would put an entry written at
// 23:30 in New York on the following day.
package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/sakif/journal/internal/apperror"
	"github.com/sakif/journal/internal/model"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"

	// MaxOffsetMinutes bounds accepted offsets. Real zones range from
	// UTC-12:00 (+720) to UTC+14:00 (-840).
	MaxOffsetMinutes = 14 * 60

	// Resolution is the precision creation timestamps are stored at.
	Resolution = time.Millisecond
)

// Range is an inclusive UTC instant range.
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls within r, inclusive on both ends.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.From) && !t.After(r.To)
}

// Filter is the predicate handed to EntryRepository.ListForOwner.
type Filter struct {
	// Search is the trimmed search text. Empty means no text constraint.
	Search string
	// Created constrains the entry creation instant. Nil means no constraint.
	Created *Range
}

// New builds a Filter from raw request parameters.
//
// The date is validated before anything else so a malformed date fails with
// InvalidDateFormat without touching the store. The offset is only consulted
// when a date is present; an empty offset means UTC.
func New(search, date, offset string) (Filter, error) {
	f := Filter{Search: strings.TrimSpace(search)}

	date = strings.TrimSpace(date)
	if date == "" {
		return f, nil
	}

	day, err := ParseDate(date)
	if err != nil {
		return Filter{}, err
	}

	minutes, err := ParseOffset(offset)
	if err != nil {
		return Filter{}, err
	}

	r := DayRange(day, minutes)
	f.Created = &r
	return f, nil
}

// ParseDate parses a YYYY-MM-DD calendar date. The result is midnight UTC of
// that date and carries no timezone meaning on its own.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, apperror.InvalidDateFormat(s)
	}
	return t, nil
}

// ParseOffset parses a timezone offset in minutes. Empty input means UTC.
func ParseOffset(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperror.ValidationFailed("timezoneOffset", "timezoneOffset must be a whole number of minutes")
	}
	if n < -MaxOffsetMinutes || n > MaxOffsetMinutes {
		return 0, apperror.ValidationFailed("timezoneOffset", "timezoneOffset must be between -840 and 840")
	}
	return n, nil
}

// LocalMidnight returns the UTC instant at which calendar date day begins for
// a client with the given offset.
func LocalMidnight(day time.Time, offsetMinutes int) time.Time {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(time.Duration(offsetMinutes) * time.Minute)
}

// DayRange returns the inclusive UTC range covering one local calendar day.
func DayRange(day time.Time, offsetMinutes int) Range {
	from := LocalMidnight(day, offsetMinutes)
	return Range{From: from, To: from.Add(24*time.Hour - Resolution)}
}

// MonthRange returns the inclusive UTC range covering a local calendar month
// given as YYYY-MM.
func MonthRange(month string, offsetMinutes int) (Range, error) {
	t, err := time.Parse(MonthLayout, strings.TrimSpace(month))
	if err != nil {
		return Range{}, &apperror.AppError{
			Err:     apperror.ErrInvalidDate,
			Message: "invalid month " + strconv.Quote(month) + ", expected YYYY-MM",
			Field:   "month",
		}
	}
	from := LocalMidnight(t, offsetMinutes)
	next := LocalMidnight(t.AddDate(0, 1, 0), offsetMinutes)
	return Range{From: from, To: next.Add(-Resolution)}, nil
}

// LocalDay formats the client-local calendar date an instant falls on.
func LocalDay(t time.Time, offsetMinutes int) string {
	return t.UTC().Add(-time.Duration(offsetMinutes) * time.Minute).Format(DateLayout)
}

// Matches evaluates the filter against an entry in memory. Stores translate
// the same predicate to SQL; this is the reference semantics.
func (f Filter) Matches(e model.Entry) bool {
	if f.Created != nil && !f.Created.Contains(e.CreatedAt) {
		return false
	}
	if f.Search == "" {
		return true
	}

	needle := strings.ToLower(f.Search)
	if strings.Contains(strings.ToLower(e.Title), needle) ||
		strings.Contains(strings.ToLower(e.Content), needle) {
		return true
	}
	for _, tag := range e.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// LikePattern returns the search text as a lower-cased SQL LIKE pattern with
// the LIKE metacharacters escaped, for use with ESCAPE '\'.
func (f Filter) LikePattern() string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(f.Search)) + "%"
}
