package journal

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSequenceRoundTrip(t *testing.T) {
	s := openTestStore(t)

	last, err := s.LastSequence("20240315")
	if err != nil {
		t.Fatalf("LastSequence: %v", err)
	}
	if last != 0 {
		t.Fatalf("fresh day last = %d, want 0", last)
	}

	for n := 1; n <= 3; n++ {
		if err := s.SetSequence("20240315", n); err != nil {
			t.Fatalf("SetSequence(%d): %v", n, err)
		}
	}
	last, err = s.LastSequence("20240315")
	if err != nil {
		t.Fatal(err)
	}
	if last != 3 {
		t.Errorf("last = %d, want 3", last)
	}

	// Days are independent.
	last, err = s.LastSequence("20240316")
	if err != nil {
		t.Fatal(err)
	}
	if last != 0 {
		t.Errorf("next day last = %d, want 0", last)
	}
}

func TestSequenceSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetSequence("20240315", 7); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	last, err := reopened.LastSequence("20240315")
	if err != nil {
		t.Fatal(err)
	}
	if last != 7 {
		t.Errorf("last = %d, want 7 after reopen", last)
	}
}

func TestRecordPageTrail(t *testing.T) {
	s := openTestStore(t)

	pages := []struct {
		candidate, source, outcome, doc, detail string
	}{
		{"20240315-0001", "/scans/a.png", "opened", "20240315-0001", ""},
		{"20240315-0002", "/scans/b.png", "merged_closed", "20240315-0001", ""},
		{"20240315-0003", "/scans/c.png", "errored", "20240315-0003", "upstream timeout"},
	}
	for _, p := range pages {
		if err := s.RecordPage(p.candidate, p.source, p.outcome, p.doc, p.detail); err != nil {
			t.Fatalf("RecordPage: %v", err)
		}
	}

	trail, err := s.PagesForDocument("20240315-0001")
	if err != nil {
		t.Fatalf("PagesForDocument: %v", err)
	}
	if len(trail) != 2 {
		t.Fatalf("trail = %d records, want 2", len(trail))
	}
	if trail[0].Outcome != "opened" || trail[1].Outcome != "merged_closed" {
		t.Errorf("trail order = %q, %q", trail[0].Outcome, trail[1].Outcome)
	}
	if trail[1].CandidateID != "20240315-0002" {
		t.Errorf("candidate = %q", trail[1].CandidateID)
	}

	trail, err = s.PagesForDocument("20240315-0003")
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 1 || trail[0].Detail != "upstream timeout" {
		t.Errorf("error trail = %+v", trail)
	}
}

func TestPagesForUnknownDocument(t *testing.T) {
	s := openTestStore(t)
	trail, err := s.PagesForDocument("nope")
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 0 {
		t.Errorf("trail = %+v, want empty", trail)
	}
}
