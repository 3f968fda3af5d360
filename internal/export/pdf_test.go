package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sakif/journal/internal/model"
)

func sampleEntries(n int) []model.Entry {
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	entries := make([]model.Entry, n)
	for i := range entries {
		entries[i] = model.Entry{
			ID:        "e" + string(rune('a'+i%26)),
			Title:     "Entry title",
			Content:   strings.Repeat("Café notes about the day. ", 40),
			Tags:      []string{"daily", "notes"},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return entries
}

func TestRender_ProducesPDF(t *testing.T) {
	tests := []struct {
		name    string
		entries []model.Entry
	}{
		{"no entries", nil},
		{"one entry", sampleEntries(1)},
		{"spills onto several pages", sampleEntries(30)},
	}

	r := NewPDFRenderer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := r.Render(&buf, tt.entries, Options{GeneratedAt: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)})
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
				t.Errorf("output does not start with a PDF header: %q", buf.Bytes()[:min(16, buf.Len())])
			}
			if !bytes.Contains(buf.Bytes(), []byte("%%EOF")) {
				t.Error("output is missing the PDF trailer")
			}
		})
	}
}

func TestRender_MorePagesForMoreEntries(t *testing.T) {
	r := NewPDFRenderer()
	var small, large bytes.Buffer
	if err := r.Render(&small, sampleEntries(1), Options{}); err != nil {
		t.Fatalf("Render(small) error = %v", err)
	}
	if err := r.Render(&large, sampleEntries(30), Options{}); err != nil {
		t.Fatalf("Render(large) error = %v", err)
	}

	pages := func(b []byte) int { return bytes.Count(b, []byte("/Type /Page\n")) }
	if pages(large.Bytes()) <= pages(small.Bytes()) {
		t.Errorf("pages: large=%d small=%d, want large > small", pages(large.Bytes()), pages(small.Bytes()))
	}
}

func TestRenderEntry(t *testing.T) {
	var buf bytes.Buffer
	err := NewPDFRenderer().RenderEntry(&buf, sampleEntries(1)[0], Options{TimezoneOffset: -330})
	if err != nil {
		t.Fatalf("RenderEntry() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Error("output does not start with a PDF header")
	}
}

func TestFilename(t *testing.T) {
	tests := map[string]string{
		"Day One":            "Day_One.pdf",
		"  spaced   out  ":   "spaced_out.pdf",
		"":                   "entry.pdf",
		"a/b: c?":            "ab_c.pdf",
		"   ":                "entry.pdf",
		`"quoted" <title>|*`: "quoted_title.pdf",
	}
	for in, want := range tests {
		if got := Filename(in); got != want {
			t.Errorf("Filename(%q) = %q, want %q", in, got, want)
		}
	}
}
