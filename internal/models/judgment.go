package models

// Judgment is the classification oracle's structured output for one page
// submission. It is kept distinct from Document so that oracle schema changes
// cannot silently corrupt internal state; the two are connected only through
// DocumentFromJudgment.
type Judgment struct {
	ID                  string       `json:"id"`
	Sender              string       `json:"sender"`
	DateSent            string       `json:"date_sent"`
	Subject             string       `json:"subject"`
	Type                DocumentType `json:"type"`
	Content             string       `json:"content"`
	Codes               []string     `json:"codes"`
	Payment             *Payment     `json:"payment,omitempty"`
	MultipageExplicit   bool         `json:"is_multipage_explicit"`
	InformationComplete *bool        `json:"is_information_complete"`
	ContinuationOf      string       `json:"continuation_of,omitempty"`
}

// Complete returns the judged completeness, defaulting to true when the
// oracle omitted the field.
func (j *Judgment) Complete() bool {
	if j.InformationComplete == nil {
		return true
	}
	return *j.InformationComplete
}

// DocumentFromJudgment maps an oracle judgment to an internal document.
// The mapping is total and applies the identity override: the document id is
// always candidateID, regardless of what the oracle returned. When the oracle
// dropped the scanned codes, pageCodes restores them.
func DocumentFromJudgment(j *Judgment, candidateID string, pageCodes []string) Document {
	codes := j.Codes
	if len(codes) == 0 {
		codes = append([]string(nil), pageCodes...)
	}
	typ := j.Type
	if !typ.Valid() {
		typ = TypeOther
	}
	return Document{
		ID:                  candidateID,
		Sender:              j.Sender,
		DateSent:            j.DateSent,
		Subject:             j.Subject,
		Type:                typ,
		Content:             j.Content,
		Codes:               codes,
		Payment:             j.Payment,
		MultipageExplicit:   j.MultipageExplicit,
		InformationComplete: j.Complete(),
		ContinuationOf:      j.ContinuationOf,
	}
}

// OpenSummary is the per-entry context handed to the oracle so it can match
// a new page to a still-open document.
type OpenSummary struct {
	ID             string `json:"id"`
	Subject        string `json:"subject"`
	ContentSnippet string `json:"content_snippet"`
}

// OpenStatus is the operator-facing view of one open document.
type OpenStatus struct {
	ID                  string       `json:"id"`
	Subject             string       `json:"subject"`
	Sender              string       `json:"sender"`
	Type                DocumentType `json:"type"`
	PageCount           int          `json:"page_count"`
	InformationComplete bool         `json:"is_information_complete"`
	MultipageExplicit   bool         `json:"is_multipage_explicit"`
}

// OracleRequest is the classification request for one page submission.
type OracleRequest struct {
	Text          string
	Codes         []string
	CandidateID   string
	OpenDocuments []OpenSummary
}
