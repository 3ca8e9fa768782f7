package classify

import (
	"fmt"
	"strings"

	"github.com/margot-dms/margot/internal/models"
)

func buildSystemPrompt(hasOpenDocs bool) string {
	typeNames := make([]string, 0, len(models.DocumentTypes()))
	for _, t := range models.DocumentTypes() {
		typeNames = append(typeNames, string(t))
	}
	parts := []string{
		"You are an AI assistant expert at extracting structured information from scanned documents. " +
			"Analyze the provided OCR text and scanned code payloads and return ONLY JSON matching the provided schema.",
		"For the 'sender' field, provide the sender's name in a simple, concise, folder-friendly format " +
			"(e.g. 'Belastingdienst' instead of 'Belasting-dienst Amersfoort'). Avoid characters that are problematic for directory names.",
		"The 'type' field must be one of: " + strings.Join(typeNames, ", ") + ".",
		"For the 'payment' field: if payment information (amount, IBAN, due date) is present, it MUST be an object " +
			"with 'amount', 'iban' and 'due_date' sub-fields. If no payment information is found, 'payment' MUST be null. " +
			"Never put a bare string or number directly into 'payment'.",
		"Return the document content corrected and cleaned of OCR artifacts, formatted as markdown. " +
			"Render labels, identifiers and tabular data as neatly formatted label/value lines.",
	}
	if hasOpenDocs {
		parts = append(parts,
			"Multi-page document considerations:",
			"- 'is_multipage_explicit': true only if the page explicitly states being part of a multi-page document "+
				"(e.g. 'page 1 of 2', 'continued on next page').",
			"- 'is_information_complete': false if the text seems obviously cut off or incomplete, true otherwise.",
			"- 'continuation_of': if this page belongs to one of the open documents listed in the user message, "+
				"set this to that document's id. Otherwise set it to null.",
		)
	}
	return strings.Join(parts, "\n")
}

func buildUserPrompt(req models.OracleRequest, existingSenders []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document ID for the current page: %s\n", req.CandidateID)
	fmt.Fprintf(&b, "OCR Text: \"\"\"\n%s\n\"\"\"\n", req.Text)
	fmt.Fprintf(&b, "Code payloads found on this page: %v\n", req.Codes)

	if len(req.OpenDocuments) > 0 {
		b.WriteString("\nCurrently open documents awaiting more pages:\n")
		for _, open := range req.OpenDocuments {
			fmt.Fprintf(&b, "  - ID: %s, Subject: %s, Snippet: %s\n", open.ID, open.Subject, open.ContentSnippet)
		}
	} else {
		b.WriteString("\nNo documents are currently open and awaiting more pages.\n")
	}

	if len(existingSenders) > 0 {
		b.WriteString("\nConsider these existing sender names when determining the sender (be consistent if a similar sender already exists):\n")
		for _, s := range existingSenders {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	} else {
		b.WriteString("\nNo existing sender names found to consider for consistency.\n")
	}
	return b.String()
}
