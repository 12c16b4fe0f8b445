// Package scan runs one document image through preprocessing, OCR and field
// extraction and produces the chat reply.
package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"guvohbot/pkg/extract"
	"guvohbot/pkg/ocr"
)

// ErrorPrefix starts the reply sent when OCR or preprocessing fails.
const ErrorPrefix = "Xatolik yuz berdi: "

// ErrNoImage is returned when Scan is called without an image path.
var ErrNoImage = errors.New("no image")

// Result is the outcome of scanning one image.
type Result struct {
	Text   string         `json:"text"`
	Record extract.Record `json:"record"`
	Empty  bool           `json:"empty"`
	Reply  string         `json:"reply"`
}

// Scanner ties an OCR engine to the extraction rules.
type Scanner struct {
	Engine     ocr.Engine
	Language   string
	Preprocess ocr.PreprocessOptions
	Timeout    time.Duration
	Logger     zerolog.Logger
}

// Scan OCRs the image at path and extracts the document fields.
func (s *Scanner) Scan(ctx context.Context, path string) (Result, error) {
	if path == "" {
		return Result{}, ErrNoImage
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	src, cleanup, err := ocr.Preprocess(path, s.Preprocess)
	if err != nil {
		return Result{}, fmt.Errorf("preprocess: %w", err)
	}
	defer cleanup()

	start := time.Now()
	text, err := s.Engine.Recognize(ctx, src, s.Language)
	if err != nil {
		return Result{}, fmt.Errorf("ocr: %w", err)
	}
	s.Logger.Info().
		Str("path", path).
		Dur("took", time.Since(start)).
		Str("snippet", ocr.Snippet(text, 200)).
		Msg("OCR text")
	return FromText(text), nil
}

// FromText extracts fields from already recognized text.
func FromText(text string) Result {
	rec := extract.ExtractAll(text)
	return Result{
		Text:   text,
		Record: rec,
		Empty:  rec.Empty(),
		Reply:  extract.FormatReply(rec, text),
	}
}

// Reply scans the image and always returns something to send back: the field
// line, the diagnostic dump, or an error message.
func (s *Scanner) Reply(ctx context.Context, path string) string {
	res, err := s.Scan(ctx, path)
	if err != nil {
		s.Logger.Error().Err(err).Str("path", path).Msg("scan failed")
		return ErrorPrefix + err.Error()
	}
	if res.Empty {
		s.Logger.Warn().Str("path", path).Msg("no fields found")
	}
	return res.Reply
}

// Remove deletes a temp file, ignoring failures.
func Remove(log zerolog.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug().Err(err).Str("path", path).Msg("cleanup failed")
	}
}
