package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts a format name in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatPDF:
		return f, nil
	}
	return "", fmt.Errorf("unsupported report format %q", s)
}

// Write renders t to w in the given format.
func Write(w io.Writer, t Table, format Format) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatJSON:
		return WriteJSON(w, t)
	case FormatPDF:
		return WritePDF(w, t)
	}
	return fmt.Errorf("unsupported report format %q", format)
}

func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Values()); err != nil {
		return fmt.Errorf("error writing CSV report: %w", err)
	}
	return nil
}

func WriteJSON(w io.Writer, t Table) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("error writing JSON report: %w", err)
	}
	return nil
}

// WritePDF lays the table out on landscape A4 pages with the header
// repeated on every page. Group total lines are bold on a grey fill.
func WritePDF(w io.Writer, t Table) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	headerColor := [3]int{40, 40, 40}
	headerTextColor := [3]int{255, 255, 255}
	bodyTextColor := [3]int{50, 50, 50}

	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	usable := pageWidth - left - right
	cols := max(len(t.Header), 1)
	colWidth := usable / float64(cols)

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(usable/2, 10, tr(fmt.Sprintf("%s | %s", t.Title, time.Now().Format("2006-01-02"))), "", 0, "L", false, 0, "")
		pdf.CellFormat(usable/2, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
	})

	drawHeader := func() {
		pdf.SetFillColor(headerColor[0], headerColor[1], headerColor[2])
		pdf.SetTextColor(headerTextColor[0], headerTextColor[1], headerTextColor[2])
		pdf.SetFont("Arial", "B", 7)
		for _, h := range t.Header {
			pdf.CellFormat(colWidth, 8, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetTextColor(bodyTextColor[0], bodyTextColor[1], bodyTextColor[2])
	}

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(bodyTextColor[0], bodyTextColor[1], bodyTextColor[2])
	pdf.CellFormat(0, 12, tr(t.Title), "", 1, "L", false, 0, "")
	pdf.Ln(2)
	drawHeader()

	_, pageHeight := pdf.GetPageSize()
	for _, row := range t.Rows {
		if pdf.GetY() > pageHeight-25 {
			pdf.AddPage()
			drawHeader()
		}
		if row.Total {
			pdf.SetFont("Arial", "B", 7)
			pdf.SetFillColor(230, 230, 230)
		} else {
			pdf.SetFont("Arial", "", 7)
			pdf.SetFillColor(255, 255, 255)
		}
		for i, c := range row.Cells {
			align := "R"
			if i < keyColumns(t) {
				align = "L"
			}
			pdf.CellFormat(colWidth, 6, tr(c), "1", 0, align, true, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(t.Rows) == 0 {
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(0, 8, "No records", "", 1, "L", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("error writing PDF report: %w", err)
	}
	return nil
}

// keyColumns is the number of leading text columns.
func keyColumns(t Table) int {
	return len(t.Section.KeyColumns())
}
