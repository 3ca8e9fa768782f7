package extract

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// fakeRunner serves canned tesseract output and materializes pdftoppm pages.
type fakeRunner struct {
	text      string
	tsv       string
	pageCount int
	calls     [][]string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	switch name {
	case "tesseract":
		if args[len(args)-1] == "tsv" {
			return []byte(f.tsv), nil, nil
		}
		return []byte(f.text), nil, nil
	case "pdftoppm":
		prefix := args[len(args)-1]
		for i := 1; i <= f.pageCount; i++ {
			if err := writePNGFile(fmt.Sprintf("%s-%d.png", prefix, i), whiteImage(64, 64)); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("unexpected command %s", name)
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t90\tHello\n" +
	"5\t1\t1\t1\t1\t2\t70\t10\t50\t20\t80\t2024\n" +
	"5\t1\t1\t1\t1\t3\t0\t0\t0\t0\t-1\t\n"

func TestSupported(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/in/scan.png", true},
		{"/in/SCAN.PNG", true},
		{"/in/photo.jpeg", true},
		{"/in/photo.jpg", true},
		{"/in/fax.tif", true},
		{"/in/fax.tiff", true},
		{"/in/letter.pdf", true},
		{"/in/notes.txt", false},
		{"/in/archive.zip", false},
		{"/in/noext", false},
	}
	for _, tc := range cases {
		if got := Supported(tc.path); got != tc.want {
			t.Errorf("Supported(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestTesseractConfidence(t *testing.T) {
	runner := &fakeRunner{tsv: sampleTSV}
	e := New(Config{}, WithRunner(runner))

	conf, err := e.tesseractConfidence(context.Background(), "/in/scan.png")
	if err != nil {
		t.Fatalf("tesseractConfidence: %v", err)
	}
	// (90 + 80) / 2 / 100; the -1 row is skipped and the numeric word
	// "2024" must not be read as a confidence.
	if conf < 0.849 || conf > 0.851 {
		t.Errorf("conf = %f, want 0.85", conf)
	}
}

func TestTesseractConfidenceNoWords(t *testing.T) {
	runner := &fakeRunner{tsv: "level\tconf\n"}
	e := New(Config{}, WithRunner(runner))
	conf, err := e.tesseractConfidence(context.Background(), "/in/scan.png")
	if err != nil {
		t.Fatalf("tesseractConfidence: %v", err)
	}
	if conf != 0 {
		t.Errorf("conf = %f, want 0", conf)
	}
}

func TestExtractImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.png")
	writeQRPNG(t, path, "PAY-REF-001")

	runner := &fakeRunner{text: "Dear customer,\nyour invoice...", tsv: sampleTSV}
	e := New(Config{}, WithRunner(runner))

	pages, err := e.ExtractPages(context.Background(), path)
	if err != nil {
		t.Fatalf("ExtractPages: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(pages))
	}
	p := pages[0]
	if p.SourcePath != path || p.PageIndex != 1 {
		t.Errorf("page identity = %q #%d", p.SourcePath, p.PageIndex)
	}
	if !strings.Contains(p.Text, "your invoice") {
		t.Errorf("text = %q", p.Text)
	}
	if p.Confidence < 0.8 {
		t.Errorf("confidence = %f", p.Confidence)
	}
	if len(p.Codes) != 1 || p.Codes[0] != "PAY-REF-001" {
		t.Errorf("codes = %v, want the QR payload", p.Codes)
	}
}

func TestExtractPagesUnsupported(t *testing.T) {
	e := New(Config{}, WithRunner(&fakeRunner{}))
	if _, err := e.ExtractPages(context.Background(), "/in/notes.txt"); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestRasterize(t *testing.T) {
	runner := &fakeRunner{pageCount: 2}
	e := New(Config{WorkDir: t.TempDir(), DPI: 150}, WithRunner(runner))

	renders, err := e.rasterize(context.Background(), "/in/doc.pdf")
	if err != nil {
		t.Fatalf("rasterize: %v", err)
	}
	if len(renders) != 2 {
		t.Fatalf("renders = %v, want 2 pages", renders)
	}
	for i, r := range renders {
		if _, err := os.Stat(r); err != nil {
			t.Errorf("render %d missing: %v", i, err)
		}
	}
	last := runner.calls[len(runner.calls)-1]
	if last[0] != "pdftoppm" {
		t.Fatalf("command = %v", last)
	}
	found := false
	for _, a := range last {
		if a == "150" {
			found = true
		}
	}
	if !found {
		t.Errorf("dpi not passed: %v", last)
	}
}

func TestDecodeCodesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qr.png")
	writeQRPNG(t, path, "NL00ABCD1234567890|120.00")

	codes, err := decodeCodes(path)
	if err != nil {
		t.Fatalf("decodeCodes: %v", err)
	}
	if len(codes) != 1 || codes[0] != "NL00ABCD1234567890|120.00" {
		t.Fatalf("codes = %v", codes)
	}
}

func TestDecodeCodesNoCodes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blank.png")
	if err := writePNGFile(path, whiteImage(64, 64)); err != nil {
		t.Fatal(err)
	}

	codes, err := decodeCodes(path)
	if err != nil {
		t.Fatalf("decodeCodes: %v", err)
	}
	if len(codes) != 0 {
		t.Fatalf("codes = %v, want none", codes)
	}
}

// writeQRPNG encodes payload as a QR code image at path.
func writeQRPNG(t *testing.T, path, payload string) {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(payload, gozxing.BarcodeFormat_QR_CODE, 256, 256, nil)
	if err != nil {
		t.Fatalf("encode qr: %v", err)
	}
	if err := writePNGFile(path, matrix); err != nil {
		t.Fatalf("write png: %v", err)
	}
}

func writePNGFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func whiteImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}
