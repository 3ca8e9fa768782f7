// Package archive persists finished documents to the filesystem and reads
// them back. Each document lives under <dir>/<sanitized-sender>/<doc-id>/
// with a YAML record, a markdown rendition, copies of the contributing
// scans, page previews, oracle interaction logs, and a facsimile sheet.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/margot-dms/margot/internal/models"
	"github.com/margot-dms/margot/pkg/utils"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	subfolderScans    = "original_scans"
	subfolderPreviews = "previews"
	subfolderLogs     = "llm_interaction_logs"
)

// Archive reads and writes the document store rooted at one directory.
type Archive struct {
	dir    string
	fax    Facsimile
	logger *zap.Logger
	now    func() time.Time
}

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Archive) { a.logger = l }
}

// WithFacsimile sets the transmittal sheet strings.
func WithFacsimile(f Facsimile) Option {
	return func(a *Archive) { a.fax = f }
}

// WithClock overrides the facsimile date source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(a *Archive) { a.now = now }
}

// New creates an archive rooted at dir.
func New(dir string, opts ...Option) *Archive {
	a := &Archive{
		dir:    dir,
		fax:    DefaultFacsimile(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dir returns the archive root.
func (a *Archive) Dir() string { return a.dir }

func (a *Archive) docDir(sender, id string) string {
	return filepath.Join(a.dir, utils.SanitizeFolderName(sender), id)
}

// record is the on-disk YAML shape. Payment is a value so the iban, amount
// and due_date keys are always present, null when absent.
type record struct {
	ID                  string              `yaml:"id"`
	Sender              string              `yaml:"sender"`
	DateSent            string              `yaml:"date_sent"`
	Subject             string              `yaml:"subject"`
	Type                models.DocumentType `yaml:"type"`
	Codes               []string            `yaml:"codes"`
	Payment             models.Payment      `yaml:"payment"`
	MultipageExplicit   bool                `yaml:"is_multipage_explicit"`
	InformationComplete bool                `yaml:"is_information_complete"`
	ContinuationOf      *string             `yaml:"continuation_of"`
}

func newRecord(doc *models.Document) record {
	r := record{
		ID:                  doc.ID,
		Sender:              doc.Sender,
		DateSent:            doc.DateSent,
		Subject:             doc.Subject,
		Type:                doc.Type,
		Codes:               doc.Codes,
		MultipageExplicit:   doc.MultipageExplicit,
		InformationComplete: doc.InformationComplete,
	}
	if doc.Payment != nil {
		r.Payment = *doc.Payment
	}
	if doc.ContinuationOf != "" {
		c := doc.ContinuationOf
		r.ContinuationOf = &c
	}
	return r
}

func (r record) document(content string) *models.Document {
	doc := &models.Document{
		ID:                  r.ID,
		Sender:              r.Sender,
		DateSent:            r.DateSent,
		Subject:             r.Subject,
		Type:                r.Type,
		Content:             content,
		Codes:               r.Codes,
		MultipageExplicit:   r.MultipageExplicit,
		InformationComplete: r.InformationComplete,
	}
	if r.Payment.IBAN != nil || r.Payment.Amount != nil || r.Payment.DueDate != nil {
		p := r.Payment
		doc.Payment = &p
	}
	if r.ContinuationOf != nil {
		doc.ContinuationOf = *r.ContinuationOf
	}
	return doc
}

// recordWithContent is the full YAML file: record fields plus the content.
type recordWithContent struct {
	record  `yaml:",inline"`
	Content string `yaml:"content"`
}

// Write persists one finished document with its page artifacts. Originals
// are copied in arrival order, de-duplicated by source path; previews keep
// their render order.
func (a *Archive) Write(doc *models.Document, artifacts []models.Artifact) error {
	dir := a.docDir(doc.Sender, doc.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}

	full := recordWithContent{record: newRecord(doc), Content: doc.Content}
	yamlBytes, err := yaml.Marshal(full)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, doc.ID+".yaml"), yamlBytes, 0o644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	md, err := renderMarkdown(doc)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, doc.ID+".md"), md, 0o644); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}

	fax, err := a.renderFacsimile(doc, artifacts)
	if err != nil {
		return fmt.Errorf("render facsimile: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, doc.ID+"_facsimile.txt"), fax, 0o644); err != nil {
		return fmt.Errorf("write facsimile: %w", err)
	}

	if err := a.copyArtifacts(dir, artifacts); err != nil {
		return err
	}
	a.logger.Info("document archived",
		zap.String("id", doc.ID),
		zap.String("sender", doc.Sender),
		zap.String("type", string(doc.Type)),
		zap.Int("artifacts", len(artifacts)),
	)
	return nil
}

func (a *Archive) copyArtifacts(dir string, artifacts []models.Artifact) error {
	seen := make(map[string]struct{})
	scanIdx, previewIdx := 0, 0
	for _, art := range artifacts {
		if art.OriginalPath != "" {
			if _, dup := seen[art.OriginalPath]; !dup {
				seen[art.OriginalPath] = struct{}{}
				scanIdx++
				dst := filepath.Join(dir, subfolderScans,
					fmt.Sprintf("%02d_%s", scanIdx, filepath.Base(art.OriginalPath)))
				if err := copyFile(art.OriginalPath, dst); err != nil {
					return fmt.Errorf("copy original: %w", err)
				}
			}
		}
		if art.RenderPath != "" {
			previewIdx++
			dst := filepath.Join(dir, subfolderPreviews,
				fmt.Sprintf("%02d_%s", previewIdx, filepath.Base(art.RenderPath)))
			if err := copyFile(art.RenderPath, dst); err != nil {
				return fmt.Errorf("copy preview: %w", err)
			}
		}
	}
	return nil
}

// renderMarkdown builds the front-matter rendition: the metadata block as
// YAML between fences, then the markdown content.
func renderMarkdown(doc *models.Document) ([]byte, error) {
	meta, err := yaml.Marshal(newRecord(doc))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(meta)+len(doc.Content)+16)
	out = append(out, "---\n"...)
	out = append(out, meta...)
	out = append(out, "---\n\n"...)
	out = append(out, doc.Content...)
	out = append(out, '\n')
	return out, nil
}

// Load reads one archived document back, content included.
func (a *Archive) Load(sender, id string) (*models.Document, error) {
	path := filepath.Join(a.docDir(sender, id), id+".yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	var full recordWithContent
	if err := yaml.Unmarshal(raw, &full); err != nil {
		return nil, fmt.Errorf("parse record %s: %w", path, err)
	}
	return full.record.document(full.Content), nil
}

// Delete removes one archived document and all its artifacts.
func (a *Archive) Delete(sender, id string) error {
	dir := a.docDir(sender, id)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("document %s/%s: %w", sender, id, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete %s: %w", dir, err)
	}
	a.logger.Info("archived document deleted", zap.String("sender", sender), zap.String("id", id))
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
