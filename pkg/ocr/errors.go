package ocr

import "errors"

// ErrUnknownEngine is returned by New for an engine name it does not know.
var ErrUnknownEngine = errors.New("unknown ocr engine")
