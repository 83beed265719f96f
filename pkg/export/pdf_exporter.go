package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Sheet describes a labelled key/value document such as a printable
// enrollment sheet, grouped into sections.
type Sheet struct {
	Title       string
	Subtitle    string
	Sections    []SheetSection
	GeneratedAt time.Time
}

// SheetSection groups related fields under a heading.
type SheetSection struct {
	Heading string
	Fields  []SheetField
}

// SheetField is a single labelled value on a sheet.
type SheetField struct {
	Label string
	Value string
}

// PDFExporter renders datasets and sheets into PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderSheet creates a sectioned key/value PDF document.
func (e *PDFExporter) RenderSheet(sheet Sheet) ([]byte, error) {
	if len(sheet.Sections) == 0 {
		return nil, fmt.Errorf("pdf sheet requires at least one section")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	if sheet.Title != "" {
		pdf.SetFont("Arial", "B", 16)
		pdf.CellFormat(0, 10, strings.ToUpper(sheet.Title), "", 1, "C", false, 0, "")
	}
	if sheet.Subtitle != "" {
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 7, sheet.Subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	for _, section := range sheet.Sections {
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, section.Heading, "B", 1, "L", false, 0, "")
		pdf.Ln(1)

		pdf.SetFont("Arial", "", 10)
		for _, field := range section.Fields {
			pdf.CellFormat(55, 6, field.Label, "", 0, "L", false, 0, "")
			pdf.CellFormat(0, 6, field.Value, "", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	}

	if !sheet.GeneratedAt.IsZero() {
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s", sheet.GeneratedAt.Format("2006-01-02 15:04")), "", 1, "R", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf sheet: %w", err)
	}
	return buf.Bytes(), nil
}
