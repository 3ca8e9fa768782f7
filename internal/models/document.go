// Package models defines core data structures for documents, page
// submissions, and oracle judgments.
package models

import "strings"

// DocumentType is the closed set of document categories.
type DocumentType string

const (
	TypeLetter    DocumentType = "letter"
	TypeInvoice   DocumentType = "invoice"
	TypeTaxes     DocumentType = "taxes"
	TypeStatement DocumentType = "statement"
	TypeForm      DocumentType = "form"
	TypeReceipt   DocumentType = "receipt"
	TypeReport    DocumentType = "report"
	TypeOther     DocumentType = "other"
	// TypeError marks documents produced by the classification fallback;
	// it is never offered to the oracle as a valid choice.
	TypeError DocumentType = "error"
)

// DocumentTypes returns the categories the oracle may choose from.
// TypeError is excluded: it is reserved for fallback documents.
func DocumentTypes() []DocumentType {
	return []DocumentType{
		TypeLetter, TypeInvoice, TypeTaxes, TypeStatement,
		TypeForm, TypeReceipt, TypeReport, TypeOther,
	}
}

// Valid reports whether t is a known document type (including TypeError).
func (t DocumentType) Valid() bool {
	switch t {
	case TypeLetter, TypeInvoice, TypeTaxes, TypeStatement,
		TypeForm, TypeReceipt, TypeReport, TypeOther, TypeError:
		return true
	}
	return false
}

// Payment holds optional payment details extracted from a document.
// Each field is independently optional.
type Payment struct {
	IBAN    *string  `json:"iban,omitempty" yaml:"iban"`
	Amount  *float64 `json:"amount,omitempty" yaml:"amount"`
	DueDate *string  `json:"due_date,omitempty" yaml:"due_date"`
}

// Document is the unit of output: the accumulated state of one archived or
// still-open document. The ID is process-assigned and never taken from an
// oracle response; only the id of the page that opened the document survives
// as its permanent id.
type Document struct {
	ID                  string       `json:"id" yaml:"id"`
	Sender              string       `json:"sender" yaml:"sender"`
	DateSent            string       `json:"date_sent" yaml:"date_sent"`
	Subject             string       `json:"subject" yaml:"subject"`
	Type                DocumentType `json:"type" yaml:"type"`
	Content             string       `json:"content" yaml:"content"`
	Codes               []string     `json:"codes" yaml:"codes"`
	Payment             *Payment     `json:"payment,omitempty" yaml:"payment"`
	MultipageExplicit   bool         `json:"is_multipage_explicit" yaml:"is_multipage_explicit"`
	InformationComplete bool         `json:"is_information_complete" yaml:"is_information_complete"`
	ContinuationOf      string       `json:"continuation_of,omitempty" yaml:"continuation_of,omitempty"`
}

// Artifact is one page's raw material kept for archival: the original
// arrived file and, when the page was rasterized, the rendered image.
type Artifact struct {
	OriginalPath string
	RenderPath   string
}

// PageSubmission is one page's worth of extracted content, the unit the
// decision engine consumes. It is created by the extractor and consumed
// entirely within one engine step.
type PageSubmission struct {
	SourcePath string
	PageIndex  int
	Text       string
	Confidence float64
	Codes      []string
	RenderPath string
}

// Artifact returns the archival artifact for this page.
func (p PageSubmission) Artifact() Artifact {
	return Artifact{OriginalPath: p.SourcePath, RenderPath: p.RenderPath}
}

// Empty reports whether the page carries neither text nor codes. Empty pages
// are dropped before an id is assigned or the oracle is consulted.
func (p PageSubmission) Empty() bool {
	return strings.TrimSpace(p.Text) == "" && len(p.Codes) == 0
}
