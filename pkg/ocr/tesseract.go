package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract runs the local tesseract library through gosseract.
// A fresh client is created per call since a gosseract client is not safe for concurrent use.
type Tesseract struct {
	TessdataPrefix string
	PageSegMode    int
}

// Recognize returns the text tesseract reads from the image at path. The cgo
// call itself cannot be interrupted; on cancellation the result is dropped.
func (t *Tesseract) Recognize(ctx context.Context, path, lang string) (string, error) {
	type out struct {
		text string
		err  error
	}
	ch := make(chan out, 1)
	go func() {
		text, err := t.recognize(path, lang)
		ch <- out{text, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case o := <-ch:
		return o.text, o.err
	}
}

func (t *Tesseract) recognize(path, lang string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()
	if t.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.TessdataPrefix); err != nil {
			return "", fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(splitLanguages(lang)...); err != nil {
		return "", fmt.Errorf("set language %q: %w", lang, err)
	}
	if t.PageSegMode > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(t.PageSegMode)); err != nil {
			return "", fmt.Errorf("set psm %d: %w", t.PageSegMode, err)
		}
	}
	if err := client.SetImage(path); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr error: %w", err)
	}
	return text, nil
}

func (t *Tesseract) Close() error { return nil }
