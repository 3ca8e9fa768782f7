// Package ledger tracks open documents: documents that have received at
// least one page but have not yet been judged complete. The ledger is the
// sole container of open state; it is not safe for concurrent use and relies
// on its caller's single-writer discipline.
package ledger

import (
	"errors"
	"fmt"

	"github.com/margot-dms/margot/internal/models"
	"github.com/margot-dms/margot/pkg/utils"
)

// snippetLen bounds the content prefix included in oracle summaries.
const snippetLen = 200

var (
	// ErrNotFound is returned when no open entry exists for an id.
	ErrNotFound = errors.New("open document not found")
	// ErrDuplicateID is returned by Open when the id is already tracked.
	ErrDuplicateID = errors.New("document id already open")
)

// Entry is the accumulated state of one open document together with the
// ordered page artifacts contributed so far.
type Entry struct {
	Doc       models.Document
	Artifacts []models.Artifact
}

// Ledger is an in-memory map of document id to open entry. Summaries are
// produced in insertion order, though callers must not rely on ordering.
type Ledger struct {
	entries map[string]*Entry
	order   []string
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]*Entry)}
}

// Len returns the number of open entries.
func (l *Ledger) Len() int { return len(l.entries) }

// IDs returns the open document ids in insertion order.
func (l *Ledger) IDs() []string {
	return append([]string(nil), l.order...)
}

// Open inserts a new entry. It fails with ErrDuplicateID if the id is
// already tracked; callers must guarantee fresh ids.
func (l *Ledger) Open(id string, doc models.Document, artifacts []models.Artifact) error {
	if _, ok := l.entries[id]; ok {
		return fmt.Errorf("open %s: %w", id, ErrDuplicateID)
	}
	l.entries[id] = &Entry{
		Doc:       doc,
		Artifacts: append([]models.Artifact(nil), artifacts...),
	}
	l.order = append(l.order, id)
	return nil
}

// Get returns the entry for id, or ErrNotFound.
func (l *Ledger) Get(id string) (*Entry, error) {
	e, ok := l.entries[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return e, nil
}

// Summarize produces the oracle context for every open entry: id, subject,
// and a bounded prefix of the accumulated content.
func (l *Ledger) Summarize() []models.OpenSummary {
	summaries := make([]models.OpenSummary, 0, len(l.entries))
	for _, id := range l.order {
		e := l.entries[id]
		summaries = append(summaries, models.OpenSummary{
			ID:             id,
			Subject:        e.Doc.Subject,
			ContentSnippet: utils.Truncate(e.Doc.Content, snippetLen),
		})
	}
	return summaries
}

// Statuses produces the operator-facing view of every open entry.
func (l *Ledger) Statuses() []models.OpenStatus {
	statuses := make([]models.OpenStatus, 0, len(l.entries))
	for _, id := range l.order {
		e := l.entries[id]
		statuses = append(statuses, models.OpenStatus{
			ID:                  id,
			Subject:             e.Doc.Subject,
			Sender:              e.Doc.Sender,
			Type:                e.Doc.Type,
			PageCount:           len(e.Artifacts),
			InformationComplete: e.Doc.InformationComplete,
			MultipageExplicit:   e.Doc.MultipageExplicit,
		})
	}
	return statuses
}

// MergePage merges one classified page into the open entry id. The page's
// content is appended behind a page-break marker recording the page's own
// candidate id; its codes are unioned into the entry's code set; its
// artifacts are appended in arrival order.
//
// Completeness is ANDed: the merged entry is complete only when both the
// prior accumulated state and the incoming page report complete. That value
// is computed before the explicit-multipage flag is ORed in, and is returned
// so the caller can decide whether to close the entry.
func (l *Ledger) MergePage(id string, page models.Document, artifacts []models.Artifact) (bool, error) {
	e, ok := l.entries[id]
	if !ok {
		return false, fmt.Errorf("merge page into %s: %w", id, ErrNotFound)
	}
	e.Doc.Content += fmt.Sprintf("\n\n--- Page Break (Original Page ID: %s) ---\n\n%s", page.ID, page.Content)
	e.Doc.Codes = unionCodes(e.Doc.Codes, page.Codes)
	complete := e.Doc.InformationComplete && page.InformationComplete
	e.Doc.InformationComplete = complete
	e.Doc.MultipageExplicit = e.Doc.MultipageExplicit || page.MultipageExplicit
	if e.Doc.Payment == nil {
		e.Doc.Payment = page.Payment
	}
	e.Artifacts = append(e.Artifacts, artifacts...)
	return complete, nil
}

// MergeExternal merges an already-archived standalone document into the open
// entry id. Content and codes merge as in MergePage, behind a marker naming
// the archived source; completeness is not touched. The caller is
// responsible for deleting the archived source afterwards.
func (l *Ledger) MergeExternal(id string, source models.Document, artifacts []models.Artifact) error {
	e, ok := l.entries[id]
	if !ok {
		return fmt.Errorf("merge %s into %s: %w", source.ID, id, ErrNotFound)
	}
	e.Doc.Content += fmt.Sprintf("\n\n--- Merged Page (Original Source ID: %s, Sender: %s) ---\n\n%s",
		source.ID, source.Sender, source.Content)
	e.Doc.Codes = unionCodes(e.Doc.Codes, source.Codes)
	e.Artifacts = append(e.Artifacts, artifacts...)
	return nil
}

// Close removes and returns the entry for id. Closure is terminal: the id
// becomes unresolvable to later continuation claims.
func (l *Ledger) Close(id string) (*Entry, error) {
	e, ok := l.entries[id]
	if !ok {
		return nil, fmt.Errorf("close %s: %w", id, ErrNotFound)
	}
	delete(l.entries, id)
	for i, openID := range l.order {
		if openID == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return e, nil
}

// unionCodes appends the codes from add that are not already present,
// preserving insertion order.
func unionCodes(existing, add []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		seen[c] = struct{}{}
	}
	for _, c := range add {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		existing = append(existing, c)
	}
	return existing
}
