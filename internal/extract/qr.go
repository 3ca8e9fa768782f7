package extract

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/multi/qrcode"
	_ "golang.org/x/image/tiff"
)

// decodeCodes reads every QR code on the image at path, de-duplicated with
// first-seen order preserved. A page without codes returns an empty slice,
// not an error.
func decodeCodes(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("binarize image %s: %w", path, err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	results, err := qrcode.NewQRCodeMultiReader().DecodeMultiple(bmp, hints)
	if err != nil {
		// The reader reports NotFound when the page has no codes at all.
		if _, ok := err.(gozxing.NotFoundException); ok {
			return nil, nil
		}
		return nil, fmt.Errorf("scan codes %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(results))
	var codes []string
	for _, r := range results {
		text := r.GetText()
		if text == "" {
			continue
		}
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		codes = append(codes, text)
	}
	return codes, nil
}
