package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/margot-dms/margot/internal/models"
)

func completionReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

const validJudgment = `{
	"id": "20240315-0001",
	"sender": "Belastingdienst",
	"date_sent": "2024-03-01",
	"subject": "Aanslag 2023",
	"type": "taxes",
	"content": "# Aanslag\nBedrag: 120.00",
	"codes": ["QR-1"],
	"payment": {"iban": "NL00ABCD1234567890", "amount": 120.0, "due_date": "2024-04-01"},
	"is_multipage_explicit": false,
	"is_information_complete": true,
	"continuation_of": null
}`

func TestClassifyParsesValidReply(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(completionReply(validJudgment))); err != nil {
			t.Errorf("write reply: %v", err)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "gpt-4o"}, t.TempDir())
	judgment, err := c.Classify(context.Background(), models.OracleRequest{
		Text:        "aanslag inkomstenbelasting 2023",
		Codes:       []string{"QR-1"},
		CandidateID: "20240315-0001",
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o" {
		t.Errorf("model = %v", gotBody["model"])
	}
	if judgment.Sender != "Belastingdienst" {
		t.Errorf("sender = %q", judgment.Sender)
	}
	if judgment.Type != models.TypeTaxes {
		t.Errorf("type = %q", judgment.Type)
	}
	if judgment.Payment == nil || judgment.Payment.Amount == nil || *judgment.Payment.Amount != 120.0 {
		t.Errorf("payment = %+v", judgment.Payment)
	}
	if !judgment.Complete() {
		t.Errorf("judgment not complete")
	}
}

func TestClassifyOpenDocumentsInPrompt(t *testing.T) {
	var userPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		for _, m := range body.Messages {
			if m.Role == "user" {
				userPrompt = m.Content
			}
		}
		w.Write([]byte(completionReply(validJudgment)))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "m"}, t.TempDir())
	_, err := c.Classify(context.Background(), models.OracleRequest{
		Text:        "page two",
		CandidateID: "20240315-0002",
		OpenDocuments: []models.OpenSummary{
			{ID: "20240315-0001", Subject: "Aanslag 2023", ContentSnippet: "Bedrag..."},
		},
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !strings.Contains(userPrompt, "20240315-0001") {
		t.Errorf("open document id missing from prompt:\n%s", userPrompt)
	}
	if !strings.Contains(userPrompt, "Aanslag 2023") {
		t.Errorf("open document subject missing from prompt")
	}
}

func TestClassifyRejectsSchemaViolation(t *testing.T) {
	// "payment" as a bare string is the classic failure mode.
	bad := `{"id":"x","sender":"A","date_sent":"d","subject":"s","type":"invoice","content":"c","codes":[],"payment":"120 euro"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionReply(bad)))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "m"}, t.TempDir())
	if _, err := c.Classify(context.Background(), models.OracleRequest{Text: "t", CandidateID: "x"}); err == nil {
		t.Fatal("expected schema validation error")
	}
}

func TestClassifyRejectsUnknownType(t *testing.T) {
	bad := `{"id":"x","sender":"A","date_sent":"d","subject":"s","type":"postcard","content":"c","codes":[]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionReply(bad)))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "m"}, t.TempDir())
	if _, err := c.Classify(context.Background(), models.OracleRequest{Text: "t", CandidateID: "x"}); err == nil {
		t.Fatal("expected schema validation error for unknown type")
	}
}

func TestClassifyUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "m"}, t.TempDir())
	_, err := c.Classify(context.Background(), models.OracleRequest{Text: "t", CandidateID: "x"})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("err = %v, want status 429", err)
	}
}

func TestClassifyRefusal(t *testing.T) {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": "", "refusal": "cannot process"}},
		},
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(b)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "m"}, t.TempDir())
	_, err := c.Classify(context.Background(), models.OracleRequest{Text: "t", CandidateID: "x"})
	if err == nil || !strings.Contains(err.Error(), "refused") {
		t.Fatalf("err = %v, want refusal error", err)
	}
}

func TestClassifyWritesInteractionLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionReply(validJudgment)))
	}))
	defer srv.Close()

	archiveDir := t.TempDir()
	c := NewClient(Config{BaseURL: srv.URL, Model: "m"}, archiveDir)
	if _, err := c.Classify(context.Background(), models.OracleRequest{Text: "t", CandidateID: "20240315-0001"}); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	logDir := filepath.Join(archiveDir, "Belastingdienst", "20240315-0001", "llm_interaction_logs")
	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("log dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("log files = %d, want 1", len(entries))
	}
	raw, err := os.ReadFile(filepath.Join(logDir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	var logged map[string]any
	if err := json.Unmarshal(raw, &logged); err != nil {
		t.Fatalf("log not valid json: %v", err)
	}
	if logged["doc_id"] != "20240315-0001" {
		t.Errorf("doc_id = %v", logged["doc_id"])
	}
	if _, ok := logged["request"]; !ok {
		t.Errorf("request missing from log")
	}
	if _, ok := logged["response"]; !ok {
		t.Errorf("response missing from log")
	}
}

func TestExistingSendersListed(t *testing.T) {
	archiveDir := t.TempDir()
	for _, d := range []string{"Acme_Corp", "Belastingdienst"} {
		if err := os.MkdirAll(filepath.Join(archiveDir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "stray.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewClient(Config{BaseURL: "http://unused", Model: "m"}, archiveDir)
	senders := c.existingSenders()
	if len(senders) != 2 {
		t.Fatalf("senders = %v, want the two folders", senders)
	}
}
