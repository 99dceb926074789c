package renderer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/smallbiznis/htmlpdf/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

type ChromeConfig struct {
	// RemoteURL points at a running Chrome DevTools endpoint. Empty launches a
	// browser process per render.
	RemoteURL string
	ExecPath  string
	Timeout   time.Duration
	NoSandbox bool
}

func ChromeConfigFrom(cfg config.Config) ChromeConfig {
	return ChromeConfig{
		RemoteURL: cfg.Renderer.RemoteURL,
		ExecPath:  cfg.Renderer.ExecPath,
		Timeout:   cfg.Renderer.Timeout,
		NoSandbox: cfg.Renderer.NoSandbox,
	}
}

// ChromeRenderer prints PDFs through the Chrome DevTools Protocol. Each render
// gets its own allocator and browser context, torn down before Render returns.
type ChromeRenderer struct {
	cfg ChromeConfig
	log *zap.Logger
}

func NewChromeRenderer(cfg ChromeConfig, log *zap.Logger) *ChromeRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ChromeRenderer{cfg: cfg, log: log.Named("renderer.chrome")}
}

func (r *ChromeRenderer) Render(ctx context.Context, html string, opts Options) ([]byte, error) {
	ctx, span := otel.Tracer("htmlpdf/renderer").Start(ctx, "renderer.render")
	defer span.End()

	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	params, err := buildPrintParams(opts)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("format", string(opts.Format)),
		attribute.Int("html_bytes", len(html)),
	)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	allocCtx, allocCancel := r.allocator(ctx)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			r.log.Debug(fmt.Sprintf(format, args...))
		}),
	)
	defer browserCancel()

	started := time.Now()
	var pdf []byte
	err = chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(params.printBackground).
				WithPaperWidth(params.paperWidth).
				WithPaperHeight(params.paperHeight).
				WithMarginTop(params.marginTop).
				WithMarginRight(params.marginRight).
				WithMarginBottom(params.marginBottom).
				WithMarginLeft(params.marginLeft).
				WithScale(params.scale).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	)
	if err != nil {
		span.RecordError(err)
		r.log.Warn("chrome render failed",
			zap.Duration("elapsed", time.Since(started)),
			zap.Bool("deadline_exceeded", ctx.Err() == context.DeadlineExceeded),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrRenderFailed)
	}

	r.log.Debug("chrome render done",
		zap.Int("bytes", len(pdf)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return pdf, nil
}

func (r *ChromeRenderer) allocator(ctx context.Context) (context.Context, context.CancelFunc) {
	if remote := strings.TrimSpace(r.cfg.RemoteURL); remote != "" {
		return chromedp.NewRemoteAllocator(ctx, remote)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if r.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if path := strings.TrimSpace(r.cfg.ExecPath); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	return chromedp.NewExecAllocator(ctx, opts...)
}

type printParams struct {
	paperWidth      float64
	paperHeight     float64
	marginTop       float64
	marginRight     float64
	marginBottom    float64
	marginLeft      float64
	scale           float64
	printBackground bool
}

// buildPrintParams expects options that already passed Validate.
func buildPrintParams(opts Options) (printParams, error) {
	width, height := opts.Format.Dimensions()
	params := printParams{
		paperWidth:      width,
		paperHeight:     height,
		scale:           opts.Scale,
		printBackground: opts.PrintBackground,
	}

	var err error
	if params.marginTop, err = ParseLength(opts.Margin.Top); err != nil {
		return params, err
	}
	if params.marginRight, err = ParseLength(opts.Margin.Right); err != nil {
		return params, err
	}
	if params.marginBottom, err = ParseLength(opts.Margin.Bottom); err != nil {
		return params, err
	}
	if params.marginLeft, err = ParseLength(opts.Margin.Left); err != nil {
		return params, err
	}
	return params, nil
}
