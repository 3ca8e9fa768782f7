package extract

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// tesseractText runs tesseract on one image and returns the recognized text.
func (e *Extractor) tesseractText(ctx context.Context, path string) (string, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, path, "stdout", "-l", e.cfg.Language)
	if err != nil {
		return "", fmt.Errorf("tesseract %s: %w (%s)", path, err, strings.TrimSpace(string(errb)))
	}
	return string(out), nil
}

// tesseractConfidence runs tesseract in TSV mode and returns the mean word
// confidence scaled to 0..1. Returns 0 when no words were recognized.
func (e *Extractor) tesseractConfidence(ctx context.Context, path string) (float64, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, path, "stdout", "-l", e.cfg.Language, "tsv")
	if err != nil {
		return 0, fmt.Errorf("tesseract tsv %s: %w (%s)", path, err, strings.TrimSpace(string(errb)))
	}
	var sum, n float64
	for i, line := range strings.Split(string(out), "\n") {
		if i == 0 || line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		// Column 10 is conf; the text column follows and may itself be numeric.
		conf := cols[10]
		if conf == "" || conf == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(conf, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / n / 100.0, nil
}

// ocrImage returns text and mean confidence for one image. A confidence
// failure only costs the score, not the text.
func (e *Extractor) ocrImage(ctx context.Context, path string) (string, float64, error) {
	text, err := e.tesseractText(ctx, path)
	if err != nil {
		return "", 0, err
	}
	conf, err := e.tesseractConfidence(ctx, path)
	if err != nil {
		e.logger.Warn("confidence scoring failed, keeping text without score", zap.Error(err))
		conf = 0
	}
	return text, conf, nil
}
