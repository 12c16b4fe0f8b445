package ocr

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
)

// Engine turns an image file into raw text. lang is an engine-specific
// language hint such as "eng" or "eng+uzb".
type Engine interface {
	Recognize(ctx context.Context, path, lang string) (string, error)
	Close() error
}

// Options selects and configures an Engine.
type Options struct {
	Engine            string // tesseract or vision
	TessdataPrefix    string
	PageSegMode       int // 0 keeps the tesseract default
	VisionCredentials string
}

// New builds the engine named in opts.
func New(ctx context.Context, opts Options) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Engine)) {
	case "", "tesseract":
		return &Tesseract{TessdataPrefix: opts.TessdataPrefix, PageSegMode: opts.PageSegMode}, nil
	case "vision":
		var copts []option.ClientOption
		if opts.VisionCredentials != "" {
			copts = append(copts, option.WithCredentialsFile(opts.VisionCredentials))
		}
		return NewVision(ctx, copts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, opts.Engine)
	}
}

// splitLanguages splits a "eng+uzb" style hint into its parts.
func splitLanguages(lang string) []string {
	var out []string
	for _, l := range strings.Split(lang, "+") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		out = []string{"eng"}
	}
	return out
}
