package render

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

const (
	// renderTimeout bounds one browser session end to end.
	renderTimeout = 2 * time.Minute

	// settleDelay gives chart scripts time to draw after document load.
	settleDelay = 750 * time.Millisecond

	screenshotQuality = 90
)

// Renderer drives a headless Chrome to rasterize HTML documents.
type Renderer struct {
	chromePath string
	outputDir  string
}

// NewRenderer creates a renderer. chromePath may be empty to use the
// browser found on PATH; outputDir receives rendered artifacts.
func NewRenderer(chromePath, outputDir string) *Renderer {
	return &Renderer{chromePath: chromePath, outputDir: outputDir}
}

// RenderPNG loads an HTML document and captures a full-page screenshot.
func (r *Renderer) RenderPNG(ctx context.Context, html []byte) ([]byte, error) {
	pageURL, cleanup, err := stageHTML(html)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var shot []byte
	err = r.withBrowser(ctx, func(ctx context.Context) error {
		return chromedp.Run(ctx,
			chromedp.Navigate(pageURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(settleDelay),
			chromedp.FullScreenshot(&shot, screenshotQuality),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("render: screenshot: %w", err)
	}
	return shot, nil
}

// RenderPDF loads an HTML document and prints it to PDF.
func (r *Renderer) RenderPDF(ctx context.Context, html []byte) ([]byte, error) {
	pageURL, cleanup, err := stageHTML(html)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	pdf, err := r.printPDF(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("render: pdf: %w", err)
	}
	return pdf, nil
}

// RenderURLPDF loads a web URL and prints it to PDF. Only http and
// https URLs are accepted; local documents go through RenderPDF.
func (r *Renderer) RenderURLPDF(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("render: url must be http or https, got %q", rawURL)
	}

	pdf, err := r.printPDF(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("render: pdf from url: %w", err)
	}
	return pdf, nil
}

// WriteOutput persists data under the output directory with a unique
// name and returns the full path.
func (r *Renderer) WriteOutput(prefix, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("render: output dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.%s", prefix, uuid.NewString(), ext)
	path := filepath.Join(r.outputDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("render: write %s: %w", name, err)
	}
	return path, nil
}

func (r *Renderer) printPDF(ctx context.Context, pageURL string) ([]byte, error) {
	var pdf []byte
	err := r.withBrowser(ctx, func(ctx context.Context) error {
		return chromedp.Run(ctx,
			chromedp.Navigate(pageURL),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(settleDelay),
			chromedp.ActionFunc(func(ctx context.Context) error {
				var err error
				pdf, _, err = page.PrintToPDF().WithPrintBackground(true).Do(ctx)
				return err
			}),
		)
	})
	return pdf, err
}

func (r *Renderer) withBrowser(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, renderTimeout)
	defer cancel()

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.DisableGPU, chromedp.NoSandbox)
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	return fn(browserCtx)
}

// stageHTML writes the document to a temp file so the browser can load
// it over file://. The cleanup func removes the file.
func stageHTML(html []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "datastack-render-*.html")
	if err != nil {
		return "", nil, fmt.Errorf("render: stage html: %w", err)
	}
	if _, err := f.Write(html); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("render: stage html: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, fmt.Errorf("render: stage html: %w", err)
	}
	return "file://" + f.Name(), func() { os.Remove(f.Name()) }, nil
}
