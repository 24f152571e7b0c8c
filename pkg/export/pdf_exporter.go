package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders a Dataset as a simple one-table PDF document.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF with a title line followed by the table body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetMargins(12, 14, 12)
	doc.AddPage()

	if title != "" {
		doc.SetFont("Helvetica", "B", 13)
		doc.CellFormat(0, 9, title, "", 1, "L", false, 0, "")
		doc.Ln(4)
	}

	pageWidth, _ := doc.GetPageSize()
	colWidth := (pageWidth - 24) / float64(len(data.Headers))

	doc.SetFont("Helvetica", "B", 10)
	for _, header := range data.Headers {
		doc.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	doc.Ln(-1)

	doc.SetFont("Helvetica", "", 9)
	for _, row := range data.Rows {
		for i := range data.Headers {
			var value string
			if i < len(row) {
				value = row[i]
			}
			doc.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		doc.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := doc.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
