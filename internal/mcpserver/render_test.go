package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastack-mcp/datastack-go/internal/render"
)

type stubRasterizer struct {
	pngErr error

	pngCalls    int
	pdfCalls    int
	urlCalls    int
	lastHTML    []byte
	lastURL     string
	wrotePrefix string
	wroteExt    string
}

func (s *stubRasterizer) RenderPNG(_ context.Context, html []byte) ([]byte, error) {
	s.pngCalls++
	s.lastHTML = html
	return []byte("png-bytes"), s.pngErr
}

func (s *stubRasterizer) RenderPDF(_ context.Context, html []byte) ([]byte, error) {
	s.pdfCalls++
	s.lastHTML = html
	return []byte("pdf-bytes"), nil
}

func (s *stubRasterizer) RenderURLPDF(_ context.Context, rawURL string) ([]byte, error) {
	s.urlCalls++
	s.lastURL = rawURL
	return []byte("pdf-bytes"), nil
}

func (s *stubRasterizer) WriteOutput(prefix, ext string, _ []byte) (string, error) {
	s.wrotePrefix = prefix
	s.wroteExt = ext
	return "/tmp/out/" + prefix + "." + ext, nil
}

func lineChart() render.ChartSpec {
	return render.ChartSpec{
		Type:   render.ChartLine,
		Title:  "daily spend",
		Labels: []string{"mon", "tue"},
		Series: []render.Series{{Name: "usd", Values: []float64{1.2, 3.4}}},
	}
}

func TestRenderChart_HTML(t *testing.T) {
	r := &stubRasterizer{}
	handler := renderChartHandler(RenderDeps{Rasterizer: r})

	res, _, err := handler(context.Background(), nil, renderChartInput{Chart: lineChart(), Format: "html"})
	require.NoError(t, err)
	require.False(t, res.IsError)

	assert.Zero(t, r.pngCalls, "html output skips the browser")
	assert.Equal(t, "chart", r.wrotePrefix)
	assert.Equal(t, "html", r.wroteExt)
	assert.Contains(t, resultText(t, res), "/tmp/out/chart.html")
}

func TestRenderChart_PNGDefault(t *testing.T) {
	r := &stubRasterizer{}
	handler := renderChartHandler(RenderDeps{Rasterizer: r})

	res, _, err := handler(context.Background(), nil, renderChartInput{Chart: lineChart()})
	require.NoError(t, err)
	require.False(t, res.IsError)

	assert.Equal(t, 1, r.pngCalls)
	assert.Contains(t, string(r.lastHTML), "daily spend")
	assert.Equal(t, "png", r.wroteExt)
}

func TestRenderChart_BadSpecIsToolError(t *testing.T) {
	handler := renderChartHandler(RenderDeps{Rasterizer: &stubRasterizer{}})

	res, _, err := handler(context.Background(), nil, renderChartInput{
		Chart: render.ChartSpec{Type: render.ChartLine, Title: "empty"},
	})
	require.NoError(t, err)
	require.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "no series")
}

func TestRenderChart_BadFormat(t *testing.T) {
	handler := renderChartHandler(RenderDeps{Rasterizer: &stubRasterizer{}})

	res, _, err := handler(context.Background(), nil, renderChartInput{Chart: lineChart(), Format: "svg"})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestRenderChart_BrowserFailureIsHandlerError(t *testing.T) {
	r := &stubRasterizer{pngErr: errors.New("chrome crashed")}
	handler := renderChartHandler(RenderDeps{Rasterizer: r})

	_, _, err := handler(context.Background(), nil, renderChartInput{Chart: lineChart()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render_chart")
}

func TestRenderReport_PDFDefault(t *testing.T) {
	r := &stubRasterizer{}
	handler := renderReportHandler(RenderDeps{Rasterizer: r})

	res, _, err := handler(context.Background(), nil, renderReportInput{
		Title:  "monthly",
		Charts: []render.ChartSpec{lineChart(), lineChart()},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	assert.Equal(t, 1, r.pdfCalls)
	assert.Equal(t, "report", r.wrotePrefix)
	assert.Contains(t, resultText(t, res), `"charts": 2`)
}

func TestRenderReport_Empty(t *testing.T) {
	handler := renderReportHandler(RenderDeps{Rasterizer: &stubRasterizer{}})

	res, _, err := handler(context.Background(), nil, renderReportInput{})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestRenderPDF_FromHTML(t *testing.T) {
	r := &stubRasterizer{}
	handler := renderPDFHandler(RenderDeps{Rasterizer: r})

	res, _, err := handler(context.Background(), nil, renderPDFInput{HTML: "<h1>doc</h1>"})
	require.NoError(t, err)
	require.False(t, res.IsError)

	assert.Equal(t, 1, r.pdfCalls)
	assert.Equal(t, "document", r.wrotePrefix)
}

func TestRenderPDF_FromURL(t *testing.T) {
	r := &stubRasterizer{}
	handler := renderPDFHandler(RenderDeps{Rasterizer: r})

	res, _, err := handler(context.Background(), nil, renderPDFInput{URL: "https://example.com/report"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, "https://example.com/report", r.lastURL)
}

func TestRenderPDF_InputValidation(t *testing.T) {
	handler := renderPDFHandler(RenderDeps{Rasterizer: &stubRasterizer{}})

	res, _, err := handler(context.Background(), nil, renderPDFInput{})
	require.NoError(t, err)
	require.True(t, res.IsError)

	res, _, err = handler(context.Background(), nil, renderPDFInput{HTML: "<p>x</p>", URL: "https://example.com"})
	require.NoError(t, err)
	require.True(t, res.IsError)

	res, _, err = handler(context.Background(), nil, renderPDFInput{URL: "file:///etc/passwd"})
	require.NoError(t, err)
	require.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "http")
}
