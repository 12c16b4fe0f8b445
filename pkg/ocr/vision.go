package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// Vision sends images to Google Cloud Vision document text detection.
type Vision struct {
	client *vision.ImageAnnotatorClient
}

// NewVision dials the Vision API. Credentials come from opts or the
// GOOGLE_APPLICATION_CREDENTIALS environment.
func NewVision(ctx context.Context, opts ...option.ClientOption) (*Vision, error) {
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &Vision{client: client}, nil
}

func (v *Vision) Recognize(ctx context.Context, path, lang string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	img, err := vision.NewImageFromReader(f)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	ictx := &visionpb.ImageContext{LanguageHints: languageHints(lang)}
	ann, err := v.client.DetectDocumentText(ctx, img, ictx)
	if err != nil {
		return "", fmt.Errorf("vision detect: %w", err)
	}
	if ann == nil {
		return "", nil
	}
	return ann.GetText(), nil
}

func (v *Vision) Close() error { return v.client.Close() }

// tesseract traineddata names -> BCP-47 hints understood by Vision
var visionLangs = map[string]string{
	"eng":          "en",
	"rus":          "ru",
	"uzb":          "uz",
	"uzb_cyrl":     "uz-Cyrl",
	"kaz":          "kk",
	"tur":          "tr",
	"osd":          "",
	"script/latin": "",
}

func languageHints(lang string) []string {
	var out []string
	for _, l := range splitLanguages(lang) {
		hint, ok := visionLangs[strings.ToLower(l)]
		if !ok {
			hint = l
		}
		if hint != "" {
			out = append(out, hint)
		}
	}
	return out
}
