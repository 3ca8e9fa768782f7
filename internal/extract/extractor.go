// Package extract turns scanned files into page payloads: one per image,
// one per PDF page. Text comes from embedded PDF text where available and
// from tesseract OCR otherwise; QR payloads are decoded from the page
// image. External tools run through a Runner so tests can stub them.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/margot-dms/margot/internal/models"
	"go.uber.org/zap"
)

// Config holds the external tool settings.
type Config struct {
	Tesseract string
	Pdftoppm  string
	Language  string
	DPI       int
	WorkDir   string
}

func (c *Config) applyDefaults() {
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Language == "" {
		c.Language = "eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
}

var supportedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".pdf":  true,
}

// Extractor produces page submissions from scanned files.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithRunner overrides the command runner. Used in tests.
func WithRunner(r Runner) Option {
	return func(e *Extractor) { e.runner = r }
}

// New creates an extractor.
func New(cfg Config, opts ...Option) *Extractor {
	cfg.applyDefaults()
	e := &Extractor{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.runner == nil {
		e.runner = execRunner{logger: e.logger}
	}
	return e
}

// Supported reports whether the file extension is one the extractor accepts.
func Supported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// ExtractPages turns one scanned file into its page submissions. Images
// yield exactly one; PDFs yield one per page, in page order.
func (e *Extractor) ExtractPages(ctx context.Context, path string) ([]models.PageSubmission, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedExtensions[ext] {
		return nil, fmt.Errorf("unsupported file type %q", ext)
	}
	if ext == ".pdf" {
		return e.extractPDF(ctx, path)
	}
	return e.extractImage(ctx, path)
}

func (e *Extractor) extractImage(ctx context.Context, path string) ([]models.PageSubmission, error) {
	text, conf, err := e.ocrImage(ctx, path)
	if err != nil {
		return nil, err
	}
	codes, err := decodeCodes(path)
	if err != nil {
		e.logger.Warn("code scan failed, continuing without codes",
			zap.String("path", path), zap.Error(err))
	}
	return []models.PageSubmission{{
		SourcePath: path,
		PageIndex:  1,
		Text:       text,
		Confidence: conf,
		Codes:      codes,
	}}, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) ([]models.PageSubmission, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	texts, err := pdfPageTexts(content)
	if err != nil {
		e.logger.Warn("embedded text extraction failed, relying on OCR",
			zap.String("path", path), zap.Error(err))
		texts = nil
	}

	renders, renderErr := e.rasterize(ctx, path)
	if renderErr != nil {
		if !hasText(texts) {
			return nil, fmt.Errorf("rasterize %s: %w", path, renderErr)
		}
		e.logger.Warn("rasterization failed, pages limited to embedded text",
			zap.String("path", path), zap.Error(renderErr))
	}

	pageCount := len(texts)
	if len(renders) > pageCount {
		pageCount = len(renders)
	}
	pages := make([]models.PageSubmission, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		sub := models.PageSubmission{
			SourcePath: path,
			PageIndex:  i + 1,
		}
		if i < len(renders) {
			sub.RenderPath = renders[i]
		}
		if i < len(texts) && strings.TrimSpace(texts[i]) != "" {
			// Embedded text is exact; OCR confidence does not apply.
			sub.Text = texts[i]
			sub.Confidence = 1.0
		} else if sub.RenderPath != "" {
			text, conf, err := e.ocrImage(ctx, sub.RenderPath)
			if err != nil {
				return nil, fmt.Errorf("ocr page %d of %s: %w", i+1, path, err)
			}
			sub.Text = text
			sub.Confidence = conf
		}
		if sub.RenderPath != "" {
			codes, err := decodeCodes(sub.RenderPath)
			if err != nil {
				e.logger.Warn("code scan failed, continuing without codes",
					zap.String("path", sub.RenderPath), zap.Error(err))
			}
			sub.Codes = codes
		}
		pages = append(pages, sub)
	}
	return pages, nil
}

// rasterize renders each PDF page to a PNG under the work directory and
// returns the paths in page order. The renders outlive extraction so the
// archive can keep them as previews.
func (e *Extractor) rasterize(ctx context.Context, path string) ([]string, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dir, err := os.MkdirTemp(e.cfg.WorkDir, base+"-*")
	if err != nil {
		return nil, fmt.Errorf("render dir: %w", err)
	}
	prefix := filepath.Join(dir, "page")
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w (%s)", err, strings.TrimSpace(string(errb)))
	}
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}
	return matches, nil
}

func hasText(texts []string) bool {
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			return true
		}
	}
	return false
}
