// Package export renders journal entries into downloadable documents.
//
// PDF GENERATION WITH fpdf:
// fpdf builds a PDF in memory page by page. The core fonts (Helvetica,
// Times, Courier) are always available and need no font files, but they only
// cover the cp1252 code page. Text is passed through a unicode translator so
// accented characters render; characters outside cp1252 degrade instead of
// corrupting the document.
//
// The layout follows the journal's "download" button:
//
//	My Journal Entries
//	1. <title>
//	   <date> · tags
//	   <content, wrapped>
//	2. ...
//
// Automatic page breaks take care of long content.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/sakif/journal/internal/model"
	"github.com/sakif/journal/internal/query"
)

const (
	DocumentTitle = "My Journal Entries"

	pageMargin = 14.0
	lineHeight = 6.0
)

// Options control how dates are printed. Entries are stored in UTC; the
// offset shifts them into the reader's local day the same way the date
// filter does.
type Options struct {
	TimezoneOffset int
	// GeneratedAt pins the document creation date. Zero means now.
	GeneratedAt time.Time
}

// PDFRenderer writes entries as a PDF document.
type PDFRenderer struct {
	pageSize string
}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{pageSize: "A4"}
}

// ContentType is the MIME type of the rendered document.
func (r *PDFRenderer) ContentType() string {
	return "application/pdf"
}

// Render writes all entries, in the order given, to w.
//
// An empty slice still produces a valid one-page document with the heading
// and a short note, so a download never fails just because a filter matched
// nothing.
func (r *PDFRenderer) Render(w io.Writer, entries []model.Entry, opts Options) error {
	pdf := r.newDocument(opts)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, DocumentTitle, "", 1, "L", false, 0, "")
	pdf.Ln(4)

	if len(entries) == 0 {
		pdf.SetFont("Helvetica", "I", 12)
		pdf.CellFormat(0, lineHeight, "No entries.", "", 1, "L", false, 0, "")
	}

	for i, e := range entries {
		writeEntry(pdf, tr, fmt.Sprintf("%d. %s", i+1, e.Title), e, opts.TimezoneOffset)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("export: writing pdf: %w", err)
	}
	return nil
}

// RenderEntry writes a single entry with its title as the document heading.
func (r *PDFRenderer) RenderEntry(w io.Writer, entry model.Entry, opts Options) error {
	pdf := r.newDocument(opts)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	writeEntry(pdf, tr, entry.Title, entry, opts.TimezoneOffset)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("export: writing pdf: %w", err)
	}
	return nil
}

// Filename turns an entry title into a download name: whitespace becomes
// underscores, and an empty title falls back to "entry".
func Filename(title string) string {
	name := strings.Join(strings.Fields(title), "_")
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ':', '*', '?', '<', '>', '|':
			return -1
		}
		return r
	}, name)
	if name == "" {
		name = "entry"
	}
	return name + ".pdf"
}

func (r *PDFRenderer) newDocument(opts Options) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", r.pageSize, "")
	pdf.SetMargins(pageMargin, 20, pageMargin)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle(DocumentTitle, true)
	pdf.SetCreator("journal", true)

	generated := opts.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	pdf.SetCreationDate(generated)
	return pdf
}

func writeEntry(pdf *fpdf.Fpdf, tr func(string) string, heading string, e model.Entry, offset int) {
	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.MultiCell(0, 8, tr(heading), "", "L", false)

	meta := "Date: " + query.LocalDay(e.CreatedAt, offset)
	if len(e.Tags) > 0 {
		meta += "   Tags: " + strings.Join(e.Tags, ", ")
	}
	pdf.SetTextColor(100, 100, 100)
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, tr(meta), "", "L", false)
	pdf.Ln(1)

	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Helvetica", "", 12)
	pdf.MultiCell(0, lineHeight, tr(e.Content), "", "L", false)
	pdf.Ln(6)
}
