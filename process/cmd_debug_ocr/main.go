// Command cmd_debug_ocr runs one image through every preprocessing mode and
// prints what each pass recognized, to help tune OCR_PREPROCESS and OCR_THRESHOLD.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"guvohbot/pkg/logging"
	"guvohbot/pkg/ocr"
	"guvohbot/pkg/scan"
)

func main() {
	f := flag.String("file", "", "image file to OCR")
	lang := flag.String("lang", "eng", "OCR language(s), e.g. eng+uzb")
	engine := flag.String("engine", "tesseract", "tesseract or vision")
	threshold := flag.Int("threshold", 150, "binarize threshold")
	minHeight := flag.Int("min-height", 0, "upscale images shorter than this")
	keep := flag.Bool("keep", false, "keep preprocessed images for inspection")
	raw := flag.Bool("raw", false, "print the full OCR text of each pass")
	flag.Parse()
	log := logging.New(logging.Config{Level: "warn", Format: "console"})
	if *f == "" {
		log.Fatal().Msg("-file required")
	}

	ctx := context.Background()
	eng, err := ocr.New(ctx, ocr.Options{Engine: *engine, TessdataPrefix: os.Getenv("TESSDATA_PREFIX")})
	if err != nil {
		log.Fatal().Err(err).Msg("ocr engine")
	}
	defer eng.Close()

	for _, mode := range []string{ocr.ModeNone, ocr.ModeBinarize, ocr.ModeAdaptive} {
		opt := ocr.PreprocessOptions{Mode: mode, Threshold: uint8(*threshold), MinHeight: *minHeight}
		src, cleanup, err := ocr.Preprocess(*f, opt)
		if err != nil {
			fmt.Printf("[%s] preprocess error: %v\n", mode, err)
			continue
		}
		start := time.Now()
		text, err := eng.Recognize(ctx, src, *lang)
		took := time.Since(start)
		if *keep && src != *f {
			fmt.Printf("[%s] preprocessed image: %s\n", mode, src)
		} else {
			cleanup()
		}
		if err != nil {
			fmt.Printf("[%s] ocr error: %v\n", mode, err)
			continue
		}
		res := scan.FromText(text)
		fmt.Printf("[%s] took=%s empty=%v\n", mode, took.Round(time.Millisecond), res.Empty)
		for _, fl := range res.Record.Fields() {
			fmt.Printf("  %-16s %q\n", fl.Label, fl.Value)
		}
		if *raw {
			fmt.Printf("  text=%q\n", text)
		} else {
			fmt.Printf("  snippet=%q\n", ocr.Snippet(text, 200))
		}
	}
}
