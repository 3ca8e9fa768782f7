// Package classify calls an OpenAI-compatible chat completion endpoint to
// turn one page's extracted text and code payloads into a structured
// judgment. Replies are validated against a local JSON schema before they
// are trusted, and every interaction is logged next to the document it
// concerns for later review.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/margot-dms/margot/internal/models"
	"github.com/margot-dms/margot/pkg/utils"
	"go.uber.org/zap"
)

// Config holds the oracle endpoint settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client is a classification oracle backed by a chat completion API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	schema     map[string]any
	archiveDir string
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient overrides the HTTP client. Used in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an oracle client. archiveDir is scanned for existing
// sender folders to keep sender naming consistent, and receives the
// per-document interaction logs.
func NewClient(cfg Config, archiveDir string, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		schema:     BuildJudgmentSchema(),
		archiveDir: archiveDir,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify sends one page to the oracle and returns the validated judgment.
// Any failure (transport, bad status, malformed or schema-violating reply)
// is returned as an error; the caller decides the fallback.
func (c *Client) Classify(ctx context.Context, req models.OracleRequest) (*models.Judgment, error) {
	rid := uuid.New().String()
	start := time.Now()

	sys := buildSystemPrompt(len(req.OpenDocuments) > 0)
	user := buildUserPrompt(req, c.existingSenders())

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     0,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": sys},
			{"role": "user", "content": user + "\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(c.schema)},
		},
	}
	requestLog := map[string]any{
		"model":         c.cfg.Model,
		"system_prompt": sys,
		"user_prompt":   user,
	}

	c.logger.Debug("classification request",
		zap.String("req_id", rid),
		zap.String("candidate_id", req.CandidateID),
		zap.String("model", c.cfg.Model),
		zap.Int("text_len", len(req.Text)),
		zap.Int("open_documents", len(req.OpenDocuments)),
	)

	raw, err := c.post(ctx, body)
	if err != nil {
		c.logInteraction(req.CandidateID, "Unknown", requestLog, nil, err)
		c.logger.Error("classification transport error",
			zap.String("req_id", rid),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
				Refusal string `json:"refusal"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		err = fmt.Errorf("decode completion response: %w", err)
		c.logInteraction(req.CandidateID, "Unknown", requestLog, raw, err)
		return nil, err
	}
	if len(cc.Choices) == 0 {
		err = fmt.Errorf("no choices in completion response")
		c.logInteraction(req.CandidateID, "Unknown", requestLog, raw, err)
		return nil, err
	}
	if refusal := cc.Choices[0].Message.Refusal; refusal != "" {
		err = fmt.Errorf("model refused request: %s", refusal)
		c.logInteraction(req.CandidateID, "Unknown", requestLog, raw, err)
		return nil, err
	}

	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))
	if err := ValidateAgainstSchema(c.schema, content); err != nil {
		c.logInteraction(req.CandidateID, "Unknown", requestLog, content, err)
		c.logger.Error("classification reply failed schema validation",
			zap.String("req_id", rid),
			zap.ByteString("content", content),
			zap.Error(err),
		)
		return nil, err
	}

	var judgment models.Judgment
	if err := json.Unmarshal(content, &judgment); err != nil {
		err = fmt.Errorf("unmarshal judgment: %w", err)
		c.logInteraction(req.CandidateID, "Unknown", requestLog, content, err)
		return nil, err
	}

	c.logInteraction(req.CandidateID, judgment.Sender, requestLog, content, nil)
	c.logger.Info("page classified",
		zap.String("req_id", rid),
		zap.String("candidate_id", req.CandidateID),
		zap.String("sender", judgment.Sender),
		zap.String("type", string(judgment.Type)),
		zap.Bool("multipage_explicit", judgment.MultipageExplicit),
		zap.String("continuation_of", judgment.ContinuationOf),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &judgment, nil
}

func (c *Client) post(ctx context.Context, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("completion status %d: %s", resp.StatusCode, raw)
	}
	return raw, nil
}

// existingSenders lists the sender folders already present in the archive
// so the oracle can reuse established names. Failures only cost the hint.
func (c *Client) existingSenders() []string {
	if c.archiveDir == "" {
		return nil
	}
	entries, err := os.ReadDir(c.archiveDir)
	if err != nil {
		return nil
	}
	var senders []string
	for _, e := range entries {
		if e.IsDir() {
			senders = append(senders, e.Name())
		}
	}
	return senders
}

// logInteraction writes one request/response pair as a JSON file under the
// document's llm_interaction_logs folder. Logging failures are reported but
// never fail the classification.
func (c *Client) logInteraction(docID, sender string, request map[string]any, response []byte, cause error) {
	if c.archiveDir == "" {
		return
	}
	dir := filepath.Join(c.archiveDir, utils.SanitizeFolderName(sender), docID, "llm_interaction_logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.logger.Warn("interaction log dir", zap.String("dir", dir), zap.Error(err))
		return
	}
	entry := map[string]any{
		"doc_id":        docID,
		"timestamp_utc": time.Now().UTC().Format(time.RFC3339Nano),
		"request":       request,
	}
	if len(response) > 0 {
		var parsed any
		if err := json.Unmarshal(response, &parsed); err == nil {
			entry["response"] = parsed
		} else {
			entry["response_raw"] = string(response)
		}
	}
	if cause != nil {
		entry["error"] = cause.Error()
	}
	b, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return
	}
	now := time.Now().UTC()
	name := fmt.Sprintf("llm_interaction_%s_%06d.json", now.Format("20060102_150405"), now.Nanosecond()/1000)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		c.logger.Warn("interaction log write", zap.String("path", path), zap.Error(err))
	}
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
