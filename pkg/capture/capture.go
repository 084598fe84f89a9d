// Package capture supplies the image bytes sent as stream frames.
package capture

import (
	"context"
	"errors"
	"os"
)

// ErrEmpty is returned when a source produced no bytes.
var ErrEmpty = errors.New("capture: empty image")

// Source yields one encoded image per call.
type Source interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context) ([]byte, error)

func (f Func) Capture(ctx context.Context) ([]byte, error) { return f(ctx) }

// FileSource re-reads an image file on every capture, so an external tool
// that keeps overwriting the file drives the stream.
type FileSource struct {
	Path string
}

func (f FileSource) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, ErrEmpty
	}
	return b, nil
}
