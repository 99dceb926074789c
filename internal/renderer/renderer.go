// Package renderer turns an HTML document into PDF bytes.
package renderer

//go:generate mockgen -source=renderer.go -destination=mock/renderer_mock.go -package=mock

import (
	"context"
	"errors"
)

// ErrRenderFailed covers every engine fault: launch, load timeout, crash, cancellation.
var ErrRenderFailed = errors.New("render_failed")

type Renderer interface {
	Render(ctx context.Context, html string, opts Options) ([]byte, error)
}
