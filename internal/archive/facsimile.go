package archive

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/margot-dms/margot/internal/models"
)

// Facsimile holds the fixed strings printed on every transmittal sheet.
type Facsimile struct {
	RecipientName    string
	RecipientAddress string
	RecipientCity    string
	SenderName       string
	SenderTitle      string
	SenderFax        string
	SenderPhone      string
	SubjectPrefix    string
	ClosingLine      string
	Flair            string
	NotesPlaceholder string
	Comment          string
}

// DefaultFacsimile returns the stock transmittal strings.
func DefaultFacsimile() Facsimile {
	return Facsimile{
		RecipientName:    "CENTRAL RECORDS",
		RecipientAddress: "123 ARCHIVE LANE",
		RecipientCity:    "DATAVILLE, ST 01010",
		SenderName:       "MARGOT - AI DOCUMENT SORTER",
		SenderTitle:      "CHIEF ARCHIVIST",
		SenderFax:        "N/A (DIGITAL)",
		SenderPhone:      "N/A (SYSTEM)",
		SubjectPrefix:    "DOCUMENT DIGEST",
		ClosingLine:      "END OF TRANSMISSION.",
		Flair:            "PROCESSED WITH PRECISION AND PANACHE.",
		NotesPlaceholder: "No specific action notes.",
		Comment:          "Content summarized by AI. Review original for full details.",
	}
}

var facsimileTemplate = template.Must(template.New("facsimile").Parse(
	`==========================================================
                 FACSIMILE TRANSMITTAL
==========================================================
TO:      {{.Fax.RecipientName}}
         {{.Fax.RecipientAddress}}
         {{.Fax.RecipientCity}}

FROM:    {{.Fax.SenderName}}
         {{.Fax.SenderTitle}}
FAX:     {{.Fax.SenderFax}}
PHONE:   {{.Fax.SenderPhone}}

DATE:    {{.Date}}
RE:      {{.Fax.SubjectPrefix}}: {{.Subject}}
PAGES:   {{.Pages}} (INCLUDING COVER)

----------------------------------------------------------
SENDER OF RECORD:  {{.Sender}}
DOCUMENT ID:       {{.ID}}
DOCUMENT TYPE:     {{.Type}}
DATE SENT:         {{.DateSent}}
NOTES:             {{.Fax.NotesPlaceholder}}
COMMENT:           {{.Fax.Comment}}

{{.Fax.ClosingLine}}
{{.Fax.Flair}}
==========================================================
`))

func (a *Archive) renderFacsimile(doc *models.Document, artifacts []models.Artifact) ([]byte, error) {
	data := struct {
		Fax      Facsimile
		Date     string
		Subject  string
		Pages    int
		Sender   string
		ID       string
		Type     string
		DateSent string
	}{
		Fax:      a.fax,
		Date:     a.now().Format("2006-01-02"),
		Subject:  strings.ToUpper(doc.Subject),
		Pages:    len(artifacts) + 1,
		Sender:   doc.Sender,
		ID:       doc.ID,
		Type:     strings.ToUpper(string(doc.Type)),
		DateSent: doc.DateSent,
	}
	var buf bytes.Buffer
	if err := facsimileTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
