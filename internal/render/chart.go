// Package render turns chart specs into standalone HTML documents and
// rasterizes HTML to PNG or PDF with a headless browser.
package render

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ChartType selects the chart family.
type ChartType string

const (
	ChartLine ChartType = "line"
	ChartBar  ChartType = "bar"
	ChartPie  ChartType = "pie"
)

// Series is one named sequence of values, aligned with the chart labels.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// ChartSpec describes one chart to draw.
type ChartSpec struct {
	Type     ChartType `json:"type"`
	Title    string    `json:"title,omitempty"`
	Subtitle string    `json:"subtitle,omitempty"`
	Labels   []string  `json:"labels"`
	Series   []Series  `json:"series"`
}

func (s ChartSpec) validate() error {
	if len(s.Series) == 0 {
		return fmt.Errorf("render: chart %q has no series", s.Title)
	}
	if len(s.Labels) == 0 {
		return fmt.Errorf("render: chart %q has no labels", s.Title)
	}
	if s.Type == ChartPie && len(s.Series[0].Values) != len(s.Labels) {
		return fmt.Errorf("render: pie chart %q needs one value per label", s.Title)
	}
	return nil
}

// chart is the subset of the go-echarts chart types we draw: renderable
// on its own and addable to a report page.
type chart interface {
	components.Charter
	Render(w io.Writer) error
}

// BuildChartHTML renders a single chart spec into a standalone HTML document.
func BuildChartHTML(spec ChartSpec) ([]byte, error) {
	c, err := buildChart(spec)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		return nil, fmt.Errorf("render: chart html: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildReportHTML lays several charts onto one page.
func BuildReportHTML(title string, specs []ChartSpec) ([]byte, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("render: report %q has no charts", title)
	}

	page := components.NewPage()
	page.PageTitle = title
	page.SetLayout(components.PageFlexLayout)

	for _, spec := range specs {
		c, err := buildChart(spec)
		if err != nil {
			return nil, err
		}
		page.AddCharts(c)
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("render: report html: %w", err)
	}
	return buf.Bytes(), nil
}

func buildChart(spec ChartSpec) (chart, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	titleOpt := charts.WithTitleOpts(opts.Title{Title: spec.Title, Subtitle: spec.Subtitle})

	switch spec.Type {
	case ChartLine:
		line := charts.NewLine()
		line.SetGlobalOptions(titleOpt, charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}))
		line.SetXAxis(spec.Labels)
		for _, s := range spec.Series {
			points := make([]opts.LineData, len(s.Values))
			for i, v := range s.Values {
				points[i] = opts.LineData{Value: v}
			}
			line.AddSeries(s.Name, points)
		}
		return line, nil

	case ChartBar:
		bar := charts.NewBar()
		bar.SetGlobalOptions(titleOpt, charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}))
		bar.SetXAxis(spec.Labels)
		for _, s := range spec.Series {
			points := make([]opts.BarData, len(s.Values))
			for i, v := range s.Values {
				points[i] = opts.BarData{Value: v}
			}
			bar.AddSeries(s.Name, points)
		}
		return bar, nil

	case ChartPie:
		pie := charts.NewPie()
		pie.SetGlobalOptions(titleOpt, charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}))
		// A pie draws the first series only, one slice per label.
		slices := make([]opts.PieData, len(spec.Labels))
		for i, label := range spec.Labels {
			slices[i] = opts.PieData{Name: label, Value: spec.Series[0].Values[i]}
		}
		pie.AddSeries(spec.Series[0].Name, slices)
		return pie, nil

	default:
		return nil, fmt.Errorf("render: unsupported chart type %q", spec.Type)
	}
}
