package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// pdfPageTexts returns the embedded text of each page, one entry per page.
// Scanned PDFs typically yield empty strings; those pages go through OCR.
func pdfPageTexts(content []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	texts := make([]string, 0, numPages)
	for i := 0; i < numPages; i++ {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		texts = append(texts, text)
	}
	return texts, nil
}
