package mcpserver

import (
	"context"
	"fmt"
	"net/url"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/datastack-mcp/datastack-go/internal/observability"
	"github.com/datastack-mcp/datastack-go/internal/render"
)

// Rasterizer is the subset of render.Renderer the tools call. Tests
// substitute a stub so no headless browser is needed.
type Rasterizer interface {
	RenderPNG(ctx context.Context, html []byte) ([]byte, error)
	RenderPDF(ctx context.Context, html []byte) ([]byte, error)
	RenderURLPDF(ctx context.Context, rawURL string) ([]byte, error)
	WriteOutput(prefix, ext string, data []byte) (string, error)
}

// RenderDeps bundles the HTML rasterizer behind the chart and PDF tools.
type RenderDeps struct {
	Rasterizer Rasterizer
	Metrics    *observability.Metrics
}

// RegisterRenderTools registers the chart, report, and PDF tools.
func RegisterRenderTools(server *mcp.Server, deps RenderDeps) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "render_chart",
			Description: "Render a line, bar, or pie chart to an HTML or PNG file",
		},
		instrumented(deps.Metrics, "render_chart", renderChartHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "render_report",
			Description: "Render several charts onto one page and save it as HTML, PNG, or PDF",
		},
		instrumented(deps.Metrics, "render_report", renderReportHandler(deps)),
	)

	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "render_pdf",
			Description: "Print an HTML document or a web URL to a PDF file",
		},
		instrumented(deps.Metrics, "render_pdf", renderPDFHandler(deps)),
	)
}

type renderChartInput struct {
	Chart render.ChartSpec `json:"chart"`

	// Format is "html" or "png". Defaults to png.
	Format string `json:"format,omitempty"`
}

func renderChartHandler(deps RenderDeps) mcp.ToolHandlerFor[renderChartInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input renderChartInput) (*mcp.CallToolResult, any, error) {
		format := input.Format
		if format == "" {
			format = "png"
		}
		if format != "html" && format != "png" {
			return errorResult(fmt.Sprintf("format must be html or png, got %q", format)), nil, nil
		}

		html, err := render.BuildChartHTML(input.Chart)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}

		data := html
		if format == "png" {
			if data, err = deps.Rasterizer.RenderPNG(ctx, html); err != nil {
				return nil, nil, fmt.Errorf("render_chart: %w", err)
			}
		}

		path, err := deps.Rasterizer.WriteOutput("chart", format, data)
		if err != nil {
			return nil, nil, fmt.Errorf("render_chart: %w", err)
		}
		return textResult(map[string]any{
			"path":   path,
			"format": format,
			"bytes":  len(data),
		})
	}
}

type renderReportInput struct {
	Title  string             `json:"title,omitempty"`
	Charts []render.ChartSpec `json:"charts"`

	// Format is "html", "png", or "pdf". Defaults to pdf.
	Format string `json:"format,omitempty"`
}

func renderReportHandler(deps RenderDeps) mcp.ToolHandlerFor[renderReportInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input renderReportInput) (*mcp.CallToolResult, any, error) {
		if len(input.Charts) == 0 {
			return errorResult("charts is empty"), nil, nil
		}
		format := input.Format
		if format == "" {
			format = "pdf"
		}
		if format != "html" && format != "png" && format != "pdf" {
			return errorResult(fmt.Sprintf("format must be html, png, or pdf, got %q", format)), nil, nil
		}

		html, err := render.BuildReportHTML(input.Title, input.Charts)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}

		data := html
		switch format {
		case "png":
			data, err = deps.Rasterizer.RenderPNG(ctx, html)
		case "pdf":
			data, err = deps.Rasterizer.RenderPDF(ctx, html)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("render_report: %w", err)
		}

		path, err := deps.Rasterizer.WriteOutput("report", format, data)
		if err != nil {
			return nil, nil, fmt.Errorf("render_report: %w", err)
		}
		return textResult(map[string]any{
			"path":   path,
			"format": format,
			"charts": len(input.Charts),
			"bytes":  len(data),
		})
	}
}

type renderPDFInput struct {
	// Exactly one of HTML and URL must be set.
	HTML string `json:"html,omitempty"`
	URL  string `json:"url,omitempty"`
}

func renderPDFHandler(deps RenderDeps) mcp.ToolHandlerFor[renderPDFInput, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input renderPDFInput) (*mcp.CallToolResult, any, error) {
		if (input.HTML == "") == (input.URL == "") {
			return errorResult("exactly one of html and url is required"), nil, nil
		}
		if input.URL != "" {
			u, err := url.Parse(input.URL)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
				return errorResult(fmt.Sprintf("url must be http or https, got %q", input.URL)), nil, nil
			}
		}

		var data []byte
		var err error
		if input.URL != "" {
			data, err = deps.Rasterizer.RenderURLPDF(ctx, input.URL)
		} else {
			data, err = deps.Rasterizer.RenderPDF(ctx, []byte(input.HTML))
		}
		if err != nil {
			return nil, nil, fmt.Errorf("render_pdf: %w", err)
		}

		path, err := deps.Rasterizer.WriteOutput("document", "pdf", data)
		if err != nil {
			return nil, nil, fmt.Errorf("render_pdf: %w", err)
		}
		return textResult(map[string]any{
			"path":  path,
			"bytes": len(data),
		})
	}
}
