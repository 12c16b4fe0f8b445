package ocr

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	"github.com/disintegration/imaging"
)

// Preprocess modes.
const (
	ModeNone     = "none"
	ModeBinarize = "binarize"
	ModeAdaptive = "adaptive"
)

// PreprocessOptions controls the cleanup applied before OCR.
type PreprocessOptions struct {
	Mode      string
	Threshold uint8 // binarize: pixels darker than this become black
	MinHeight int   // upscale shorter images to this height; 0 disables
}

// Preprocess converts the image at path to grayscale and thresholds it, writing
// the result to a temp PNG. The returned cleanup removes that file. With
// ModeNone the original path is returned unchanged.
func Preprocess(path string, opt PreprocessOptions) (string, func(), error) {
	noop := func() {}
	mode := strings.ToLower(strings.TrimSpace(opt.Mode))
	if mode == "" || mode == ModeNone {
		return path, noop, nil
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", noop, fmt.Errorf("open image: %w", err)
	}
	gray := imaging.Grayscale(img)
	if opt.MinHeight > 0 && gray.Bounds().Dy() < opt.MinHeight {
		gray = imaging.Resize(gray, 0, opt.MinHeight, imaging.Lanczos)
	}
	var out *image.NRGBA
	switch mode {
	case ModeBinarize:
		out = binarize(gray, opt.Threshold)
	case ModeAdaptive:
		out = dilate(adaptiveThreshold(gray, 15, 7), 1)
	default:
		return "", noop, fmt.Errorf("unknown preprocess mode %q", opt.Mode)
	}
	tmp, err := os.CreateTemp("", "ocr-pre-*.png")
	if err != nil {
		return "", noop, fmt.Errorf("temp file: %w", err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	cleanup := func() { _ = os.Remove(name) }
	if err := imaging.Save(out, name); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("save preprocessed: %w", err)
	}
	return name, cleanup, nil
}

// luma of an NRGBA pixel, averaged like the grayscale pass leaves it.
func luma(c color.NRGBA) uint8 {
	return uint8((int(c.R) + int(c.G) + int(c.B)) / 3)
}

// binarize performs a global threshold on a grayscale image.
func binarize(img image.Image, threshold uint8) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		var v uint8 = 255
		if luma(c) < threshold {
			v = 0
		}
		return color.NRGBA{R: v, G: v, B: v, A: 255}
	})
}

// adaptiveThreshold performs a mean adaptive threshold over a window x window
// neighbourhood using an integral image.
func adaptiveThreshold(img *image.NRGBA, window int, bias int) *image.NRGBA {
	if window < 3 {
		window = 3
	}
	if window%2 == 0 {
		window++
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := imaging.New(w, h, color.NRGBA{255, 255, 255, 255})
	half := window / 2
	// integral has an extra zero row and column so lookups need no edge checks
	integral := make([]int, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		rowSum := 0
		for x := 0; x < w; x++ {
			rowSum += int(luma(img.NRGBAAt(x, y)))
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + rowSum
		}
	}
	for y := 0; y < h; y++ {
		y0, y1 := max(y-half, 0), min(y+half, h-1)
		for x := 0; x < w; x++ {
			x0, x1 := max(x-half, 0), min(x+half, w-1)
			sum := integral[(y1+1)*(w+1)+x1+1] - integral[y0*(w+1)+x1+1] - integral[(y1+1)*(w+1)+x0] + integral[y0*(w+1)+x0]
			mean := sum / ((x1 - x0 + 1) * (y1 - y0 + 1))
			th := max(mean-bias, 0)
			if int(luma(img.NRGBAAt(x, y))) < th {
				out.SetNRGBA(x, y, color.NRGBA{0, 0, 0, 255})
			}
		}
	}
	return out
}

// dilate grows black pixels into their 4-neighbourhood, radius times.
func dilate(img *image.NRGBA, radius int) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	cur := img
	for r := 0; r < radius; r++ {
		next := imaging.New(w, h, color.NRGBA{255, 255, 255, 255})
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				for _, d := range [][2]int{{0, 0}, {1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
					x2, y2 := x+d[0], y+d[1]
					if x2 < 0 || y2 < 0 || x2 >= w || y2 >= h {
						continue
					}
					if luma(cur.NRGBAAt(x2, y2)) == 0 {
						next.SetNRGBA(x, y, color.NRGBA{0, 0, 0, 255})
						break
					}
				}
			}
		}
		cur = next
	}
	return cur
}
