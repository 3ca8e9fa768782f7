// Package assembly implements the per-page decision engine: the state
// machine that decides whether an arriving page merges into an open
// document, opens a new one, or stands alone, and the operator transitions
// (flush, force-complete, merge-external) over the open-document ledger.
package assembly

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/margot-dms/margot/internal/ledger"
	"github.com/margot-dms/margot/internal/models"
	"go.uber.org/zap"
)

// Classifier is the classification oracle. A call either yields a judgment
// or fails outright; the engine substitutes a fallback document on failure
// and never propagates oracle faults.
type Classifier interface {
	Classify(ctx context.Context, req models.OracleRequest) (*models.Judgment, error)
}

// Archiver persists finished documents and exposes the read/delete surface
// the merge-external correction needs.
type Archiver interface {
	Write(doc *models.Document, artifacts []models.Artifact) error
	Load(sender, id string) (*models.Document, error)
	OriginalScans(sender, id string) ([]string, error)
	Delete(sender, id string) error
}

// Journal records page outcomes and persists the daily id sequence.
// Implementations must tolerate being called once per processed page.
type Journal interface {
	LastSequence(day string) (int, error)
	SetSequence(day string, n int) error
	RecordPage(candidateID, sourcePath, outcome, documentID, detail string) error
}

// Action is the outcome of one page submission.
type Action string

const (
	ActionDropped      Action = "dropped"
	ActionOpened       Action = "opened"
	ActionMerged       Action = "merged"
	ActionMergedClosed Action = "merged_closed"
	ActionArchived     Action = "archived"
	ActionErrored      Action = "errored"
)

// Outcome reports what became of one page submission. DocumentID is the id
// of the document the page ended up in (for merges, the open document's id,
// not the page's candidate id).
type Outcome struct {
	CandidateID string
	Action      Action
	DocumentID  string
}

// Engine owns the ledger and the id sequence. All mutation goes through its
// mutex so that the intake loop and the operator endpoints never race.
type Engine struct {
	mu      sync.Mutex
	ledger  *ledger.Ledger
	oracle  Classifier
	archive Archiver
	journal Journal
	logger  *zap.Logger
	now     func() time.Time
	seqDay  string
	seq     int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a logger for per-page decision logging.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the engine's notion of now. Used in tests to pin the
// day component of generated ids.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine. journal may be nil, in which case the id sequence
// lives only in memory and restarts on the same day can re-issue ids.
func New(led *ledger.Ledger, oracle Classifier, archive Archiver, journal Journal, opts ...Option) *Engine {
	e := &Engine{
		ledger:  led,
		oracle:  oracle,
		archive: archive,
		journal: journal,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// nextID issues the next candidate id, YYYYMMDD-NNNN, with the 4-digit
// sequence scoped to the current day. The sequence is resumed from the
// journal on day change so same-day restarts cannot collide.
func (e *Engine) nextID() string {
	day := e.now().Format("20060102")
	if day != e.seqDay {
		e.seqDay = day
		e.seq = 0
		if e.journal != nil {
			if last, err := e.journal.LastSequence(day); err == nil {
				e.seq = last
			} else {
				e.logger.Warn("sequence restore failed, starting at zero",
					zap.String("day", day), zap.Error(err))
			}
		}
	}
	e.seq++
	if e.journal != nil {
		if err := e.journal.SetSequence(day, e.seq); err != nil {
			e.logger.Warn("sequence persist failed", zap.String("day", day), zap.Error(err))
		}
	}
	return fmt.Sprintf("%s-%04d", day, e.seq)
}

// ProcessPage runs one page submission through the state machine. Exactly
// one outcome is produced for every page; failures local to the page are
// absorbed into the outcome and never abort the caller's loop. The returned
// error is non-nil only when an archive write failed and the document was
// parked for retry instead of being written.
func (e *Engine) ProcessPage(ctx context.Context, page models.PageSubmission) (Outcome, error) {
	if page.Empty() {
		e.logger.Info("page dropped: no text and no codes", zap.String("source", page.SourcePath))
		e.record("", page.SourcePath, string(ActionDropped), "", "no recognizable text or codes")
		return Outcome{Action: ActionDropped}, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	candidateID := e.nextID()
	summaries := e.ledger.Summarize()
	e.logger.Debug("classifying page",
		zap.String("candidate_id", candidateID),
		zap.String("source", page.SourcePath),
		zap.Int("open_documents", len(summaries)),
	)

	judgment, err := e.oracle.Classify(ctx, models.OracleRequest{
		Text:          page.Text,
		Codes:         page.Codes,
		CandidateID:   candidateID,
		OpenDocuments: summaries,
	})
	if err != nil {
		return e.archiveFallback(candidateID, page, err)
	}

	doc := models.DocumentFromJudgment(judgment, candidateID, page.Codes)
	artifacts := []models.Artifact{page.Artifact()}

	// Continuation of a live open entry wins over everything else. A claim
	// against a closed or unknown id falls through to the branches below.
	if doc.ContinuationOf != "" {
		if _, err := e.ledger.Get(doc.ContinuationOf); err == nil {
			return e.mergeIntoOpen(doc, artifacts, page.SourcePath)
		}
		e.logger.Warn("continuation target not open, treating page independently",
			zap.String("candidate_id", candidateID),
			zap.String("claimed_target", doc.ContinuationOf),
		)
	}

	// An incomplete page, or one explicitly flagged as part of a multi-page
	// set, opens a new document. The explicit flag wins even when the page
	// text is self-contained.
	if !doc.InformationComplete || doc.MultipageExplicit {
		if err := e.ledger.Open(candidateID, doc, artifacts); err != nil {
			return Outcome{CandidateID: candidateID}, fmt.Errorf("open document %s: %w", candidateID, err)
		}
		e.logger.Info("document opened, awaiting more pages",
			zap.String("id", candidateID),
			zap.Bool("multipage_explicit", doc.MultipageExplicit),
			zap.Bool("information_complete", doc.InformationComplete),
		)
		e.record(candidateID, page.SourcePath, string(ActionOpened), candidateID, "")
		return Outcome{CandidateID: candidateID, Action: ActionOpened, DocumentID: candidateID}, nil
	}

	// Complete standalone document: archived directly, never in the ledger.
	if err := e.archive.Write(&doc, artifacts); err != nil {
		// Park the document in the ledger so it stays retryable via
		// force-complete instead of disappearing.
		e.logger.Error("archive write failed, parking document",
			zap.String("id", candidateID), zap.Error(err))
		if openErr := e.ledger.Open(candidateID, doc, artifacts); openErr != nil {
			e.logger.Error("parking failed", zap.String("id", candidateID), zap.Error(openErr))
		}
		return Outcome{CandidateID: candidateID, Action: ActionOpened, DocumentID: candidateID},
			fmt.Errorf("archive %s: %w", candidateID, err)
	}
	e.logger.Info("standalone document archived", zap.String("id", candidateID), zap.String("sender", doc.Sender))
	e.record(candidateID, page.SourcePath, string(ActionArchived), candidateID, "")
	return Outcome{CandidateID: candidateID, Action: ActionArchived, DocumentID: candidateID}, nil
}

// mergeIntoOpen merges the page's mapped document into its continuation
// target, closing and archiving the target when the merged state is judged
// complete. The entry is removed from the ledger only after the archive
// write is confirmed.
func (e *Engine) mergeIntoOpen(doc models.Document, artifacts []models.Artifact, sourcePath string) (Outcome, error) {
	targetID := doc.ContinuationOf
	complete, err := e.ledger.MergePage(targetID, doc, artifacts)
	if err != nil {
		// Not expected under the single-writer model; checked anyway.
		return Outcome{CandidateID: doc.ID}, fmt.Errorf("merge page %s: %w", doc.ID, err)
	}
	if !complete {
		e.logger.Info("page merged, document still open",
			zap.String("page_id", doc.ID), zap.String("document_id", targetID))
		e.record(doc.ID, sourcePath, string(ActionMerged), targetID, "")
		return Outcome{CandidateID: doc.ID, Action: ActionMerged, DocumentID: targetID}, nil
	}
	entry, err := e.ledger.Get(targetID)
	if err != nil {
		return Outcome{CandidateID: doc.ID}, fmt.Errorf("reload merged entry %s: %w", targetID, err)
	}
	if err := e.archive.Write(&entry.Doc, entry.Artifacts); err != nil {
		e.logger.Error("archive write failed, document stays open",
			zap.String("document_id", targetID), zap.Error(err))
		e.record(doc.ID, sourcePath, string(ActionMerged), targetID, "archive failed: "+err.Error())
		return Outcome{CandidateID: doc.ID, Action: ActionMerged, DocumentID: targetID},
			fmt.Errorf("archive %s: %w", targetID, err)
	}
	if _, err := e.ledger.Close(targetID); err != nil {
		return Outcome{CandidateID: doc.ID}, fmt.Errorf("close %s: %w", targetID, err)
	}
	e.logger.Info("multi-page document completed and archived",
		zap.String("document_id", targetID), zap.String("closing_page_id", doc.ID))
	e.record(doc.ID, sourcePath, string(ActionMergedClosed), targetID, "")
	return Outcome{CandidateID: doc.ID, Action: ActionMergedClosed, DocumentID: targetID}, nil
}

// archiveFallback writes the synthetic error-typed document produced when
// the oracle call failed. The fallback never enters the ledger.
func (e *Engine) archiveFallback(candidateID string, page models.PageSubmission, cause error) (Outcome, error) {
	doc := FallbackDocument(candidateID, page, cause)
	if err := e.archive.Write(&doc, []models.Artifact{page.Artifact()}); err != nil {
		e.logger.Error("fallback archive write failed",
			zap.String("id", candidateID), zap.Error(err))
		e.record(candidateID, page.SourcePath, string(ActionErrored), candidateID, "archive failed: "+err.Error())
		return Outcome{CandidateID: candidateID, Action: ActionErrored, DocumentID: candidateID},
			fmt.Errorf("archive fallback %s: %w", candidateID, err)
	}
	e.logger.Warn("classification failed, error document archived for review",
		zap.String("id", candidateID), zap.Error(cause))
	e.record(candidateID, page.SourcePath, string(ActionErrored), candidateID, cause.Error())
	return Outcome{CandidateID: candidateID, Action: ActionErrored, DocumentID: candidateID}, nil
}

// FallbackDocument builds the error-typed standalone document substituted
// when classification fails: sentinel sender, error type, and the page's
// extracted text preserved verbatim.
func FallbackDocument(candidateID string, page models.PageSubmission, cause error) models.Document {
	return models.Document{
		ID:                  candidateID,
		Sender:              "Unknown",
		DateSent:            "Unknown",
		Subject:             fmt.Sprintf("Classification error: %v", cause),
		Type:                models.TypeError,
		Content:             page.Text,
		Codes:               append([]string(nil), page.Codes...),
		InformationComplete: true,
	}
}

// OpenDocuments returns the operator-facing listing of open documents.
func (e *Engine) OpenDocuments() []models.OpenStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Statuses()
}

// FlushAll forces every open entry complete and archives it, in ledger
// order. Entries whose archive write fails stay open; their errors are
// joined into the returned error. Returns the ids archived.
func (e *Engine) FlushAll() ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var archived []string
	var errs []error
	for _, id := range e.ledger.IDs() {
		if err := e.flushOneLocked(id); err != nil {
			errs = append(errs, err)
			continue
		}
		archived = append(archived, id)
	}
	e.logger.Info("flush complete", zap.Int("archived", len(archived)), zap.Int("failed", len(errs)))
	return archived, errors.Join(errs...)
}

// ForceComplete forces one open document complete and archives it. Returns
// ledger.ErrNotFound when the id is not open.
func (e *Engine) ForceComplete(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.ledger.Get(id); err != nil {
		return err
	}
	return e.flushOneLocked(id)
}

func (e *Engine) flushOneLocked(id string) error {
	entry, err := e.ledger.Get(id)
	if err != nil {
		return err
	}
	entry.Doc.InformationComplete = true
	if err := e.archive.Write(&entry.Doc, entry.Artifacts); err != nil {
		e.logger.Error("flush archive write failed, document stays open",
			zap.String("id", id), zap.Error(err))
		return fmt.Errorf("archive %s: %w", id, err)
	}
	if _, err := e.ledger.Close(id); err != nil {
		return fmt.Errorf("close %s: %w", id, err)
	}
	e.record(id, "", "flushed", id, "")
	return nil
}

// MergeExternal pulls an already-archived standalone document into the open
// entry targetID, then deletes the archived source. The operation is atomic
// from the caller's view: the source is deleted before the in-memory merge
// (its content is already loaded), and the merge itself cannot fail once
// the target has been verified under the lock; any earlier failure leaves
// the archived source untouched.
func (e *Engine) MergeExternal(targetID, sourceSender, sourceID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.ledger.Get(targetID); err != nil {
		return err
	}
	source, err := e.archive.Load(sourceSender, sourceID)
	if err != nil {
		return fmt.Errorf("load archived source %s/%s: %w", sourceSender, sourceID, err)
	}
	scans, err := e.archive.OriginalScans(sourceSender, sourceID)
	if err != nil {
		return fmt.Errorf("list source scans %s/%s: %w", sourceSender, sourceID, err)
	}
	if err := e.archive.Delete(sourceSender, sourceID); err != nil {
		return fmt.Errorf("delete archived source %s/%s: %w", sourceSender, sourceID, err)
	}
	artifacts := make([]models.Artifact, 0, len(scans))
	for _, s := range scans {
		artifacts = append(artifacts, models.Artifact{OriginalPath: s})
	}
	if err := e.ledger.MergeExternal(targetID, *source, artifacts); err != nil {
		// Cannot happen: target verified above under the same lock.
		e.logger.Error("merge after delete failed", zap.String("target", targetID), zap.Error(err))
		return err
	}
	e.logger.Info("archived document merged into open document",
		zap.String("target", targetID),
		zap.String("source_sender", sourceSender),
		zap.String("source_id", sourceID),
	)
	return nil
}

func (e *Engine) record(candidateID, sourcePath, outcome, documentID, detail string) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordPage(candidateID, sourcePath, outcome, documentID, detail); err != nil {
		e.logger.Warn("journal record failed", zap.String("candidate_id", candidateID), zap.Error(err))
	}
}
