// Package integration provides end-to-end tests (requires real storage on disk).
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/margot-dms/margot/internal/archive"
	"github.com/margot-dms/margot/internal/assembly"
	"github.com/margot-dms/margot/internal/journal"
	"github.com/margot-dms/margot/internal/ledger"
	"github.com/margot-dms/margot/internal/models"
)

// cannedOracle replies per page text, echoing the candidate id.
type cannedOracle struct {
	replies map[string]models.Judgment
}

func (o *cannedOracle) Classify(_ context.Context, req models.OracleRequest) (*models.Judgment, error) {
	j, ok := o.replies[req.Text]
	if !ok {
		j = models.Judgment{Sender: "Unknown", Type: models.TypeOther, Content: req.Text}
	}
	j.ID = req.CandidateID
	return &j, nil
}

func boolp(b bool) *bool { return &b }

func TestIntegration_MultiPageAssembly(t *testing.T) {
	dir := t.TempDir()

	jrnl, err := journal.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer jrnl.Close()

	arc := archive.New(filepath.Join(dir, "archive"))

	firstID := "" // filled after page one
	oracle := &cannedOracle{replies: map[string]models.Judgment{
		"tax letter page one": {
			Sender: "Belastingdienst", DateSent: "2024-03-01",
			Subject: "Assessment 2023", Type: models.TypeTaxes,
			Content:             "page one body",
			MultipageExplicit:   true,
			InformationComplete: boolp(true),
		},
	}}

	clock := func() time.Time {
		return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	}
	engine := assembly.New(ledger.New(), oracle, arc, jrnl, assembly.WithClock(clock))
	ctx := context.Background()

	scan1 := filepath.Join(dir, "scan1.png")
	scan2 := filepath.Join(dir, "scan2.png")
	for _, p := range []string{scan1, scan2} {
		if err := os.WriteFile(p, []byte("png"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := engine.ProcessPage(ctx, models.PageSubmission{
		SourcePath: scan1, PageIndex: 1, Text: "tax letter page one",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Action != assembly.ActionOpened {
		t.Fatalf("page one action = %s", out.Action)
	}
	firstID = out.DocumentID

	// Page two continues and completes the document.
	oracle.replies["tax letter page two"] = models.Judgment{
		Sender: "Belastingdienst", Type: models.TypeTaxes,
		Content:             "page two body",
		ContinuationOf:      firstID,
		InformationComplete: boolp(true),
	}
	out, err = engine.ProcessPage(ctx, models.PageSubmission{
		SourcePath: scan2, PageIndex: 1, Text: "tax letter page two",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Action != assembly.ActionMergedClosed || out.DocumentID != firstID {
		t.Fatalf("page two outcome = %+v", out)
	}
	if len(engine.OpenDocuments()) != 0 {
		t.Errorf("ledger not empty after closure")
	}

	// The archived document carries both pages under the first page's id.
	doc, err := arc.Load("Belastingdienst", firstID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Content == "" || doc.Type != models.TypeTaxes {
		t.Errorf("archived doc = %+v", doc)
	}
	scans, err := arc.OriginalScans("Belastingdienst", firstID)
	if err != nil {
		t.Fatal(err)
	}
	if len(scans) != 2 {
		t.Errorf("original scans = %v", scans)
	}

	// The journal holds the per-page trail and the day sequence.
	records, err := jrnl.PagesForDocument(firstID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("journal records = %d", len(records))
	}
	if records[0].Outcome != string(assembly.ActionOpened) || records[1].Outcome != string(assembly.ActionMergedClosed) {
		t.Errorf("outcomes = %s, %s", records[0].Outcome, records[1].Outcome)
	}
	// Both pages consumed a candidate id, merge or not.
	last, err := jrnl.LastSequence("20240315")
	if err != nil {
		t.Fatal(err)
	}
	if last != 2 {
		t.Errorf("day sequence = %d, want 2", last)
	}
}

func TestIntegration_SequenceSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "journal.db")
	oracle := &cannedOracle{}
	clock := func() time.Time {
		return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	}

	jrnl, err := journal.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	arc := archive.New(filepath.Join(dir, "archive"))
	engine := assembly.New(ledger.New(), oracle, arc, jrnl, assembly.WithClock(clock))

	scanA := filepath.Join(dir, "a.png")
	scanB := filepath.Join(dir, "b.png")
	for _, p := range []string{scanA, scanB} {
		if err := os.WriteFile(p, []byte("png"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := engine.ProcessPage(context.Background(), models.PageSubmission{
		SourcePath: scanA, Text: "anything",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.CandidateID != "20240315-0001" {
		t.Fatalf("first id = %s", out.CandidateID)
	}
	jrnl.Close()

	// A fresh process on the same journal continues the day's numbering.
	jrnl2, err := journal.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer jrnl2.Close()
	engine2 := assembly.New(ledger.New(), oracle, arc, jrnl2, assembly.WithClock(clock))
	out, err = engine2.ProcessPage(context.Background(), models.PageSubmission{
		SourcePath: scanB, Text: "anything else",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.CandidateID != "20240315-0002" {
		t.Errorf("id after restart = %s", out.CandidateID)
	}
}
