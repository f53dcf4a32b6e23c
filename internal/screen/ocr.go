// File: internal/screen/ocr.go
package screen

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"github.com/screenpilot/screenpilot-cli/api/schemas"
	"github.com/screenpilot/screenpilot-cli/internal/config"
)

// TesseractOCR implements schemas.OCRProvider with a local Tesseract engine.
// A fresh engine client is created per recognition pass; gosseract clients
// are not safe for concurrent reuse and a pass is cheap relative to the
// pipeline around it.
type TesseractOCR struct {
	languages []string
	logger    *zap.Logger
}

// NewTesseractOCR creates the provider. Languages follow Tesseract naming
// ("eng", "chi_sim").
func NewTesseractOCR(cfg config.OCRConfig, logger *zap.Logger) *TesseractOCR {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &TesseractOCR{
		languages: langs,
		logger:    logger.Named("screen.ocr"),
	}
}

// Recognize runs word-level recognition over the screenshot. The result is
// read-only for callers: target resolution searches it but never mutates it.
func (t *TesseractOCR) Recognize(ctx context.Context, shot schemas.Screenshot) (schemas.OCRResult, error) {
	if len(shot.PNG) == 0 {
		return schemas.OCRResult{}, fmt.Errorf("%w: empty screenshot payload", schemas.ErrOCR)
	}
	if err := ctx.Err(); err != nil {
		return schemas.OCRResult{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return schemas.OCRResult{}, fmt.Errorf("%w: failed to set languages: %w", schemas.ErrOCR, err)
	}
	if err := client.SetImageFromBytes(shot.PNG); err != nil {
		return schemas.OCRResult{}, fmt.Errorf("%w: failed to load image: %w", schemas.ErrOCR, err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return schemas.OCRResult{}, fmt.Errorf("%w: recognition failed: %w", schemas.ErrOCR, err)
	}

	result := schemas.OCRResult{
		Fragments: make([]schemas.OCRFragment, 0, len(boxes)),
		Languages: t.languages,
	}
	var words []string
	var confSum float64
	for _, box := range boxes {
		word := strings.TrimSpace(box.Word)
		if word == "" {
			continue
		}
		words = append(words, word)
		confSum += box.Confidence
		result.Fragments = append(result.Fragments, schemas.OCRFragment{
			Text: word,
			Region: schemas.Rect{
				X: box.Box.Min.X,
				Y: box.Box.Min.Y,
				W: box.Box.Dx(),
				H: box.Box.Dy(),
			},
			// Tesseract reports confidence in 0..100.
			Confidence: box.Confidence / 100,
		})
	}

	result.Text = strings.Join(words, " ")
	if n := len(result.Fragments); n > 0 {
		result.Confidence = confSum / float64(n) / 100
	}

	t.logger.Debug("OCR pass complete",
		zap.Int("fragments", len(result.Fragments)),
		zap.Float64("confidence", result.Confidence),
	)
	return result, nil
}
