package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cwbudde/algo-era/era"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// errorSeries are the plotted error signals, in legend order.
var errorSeries = []struct {
	name string
	pick func(era.Metrics) float64
}{
	{"relative error", func(m era.Metrics) float64 { return m.RelativeError }},
	{"estimated error", func(m era.Metrics) float64 { return m.EstimatedError }},
	{"Kung bound", func(m era.Metrics) float64 { return m.KungBound }},
}

// SaveErrorPlot draws the error signals over model order on a log scale and
// saves the plot to path; the format follows the file extension.
func SaveErrorPlot(path, title string, history []era.Metrics) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "order"
	p.Y.Label.Text = "error"

	drawn := 0
	for i, s := range errorSeries {
		pts := make(plotter.XYs, 0, len(history))
		for _, m := range history {
			// Log axes cannot show zeros.
			if v := s.pick(m); v > 0 {
				pts = append(pts, plotter.XY{X: float64(m.Order), Y: v})
			}
		}
		if len(pts) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return fmt.Errorf("export: %s: %w", s.name, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		points.Shape = plotutil.Shape(i)
		points.Color = plotutil.Color(i)
		p.Add(line, points)
		p.Legend.Add(s.name, line, points)
		drawn++
	}
	if drawn > 0 {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	p.Legend.Top = true

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("export: saving %s: %w", path, err)
	}
	return nil
}

// RenderErrorChart writes an interactive HTML line chart of the error
// signals over model order.
func RenderErrorChart(w io.Writer, title string, history []era.Metrics) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d tolerances", len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "order", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "error", Type: "log"}),
	)

	orders := make([]string, len(history))
	for i, m := range history {
		orders[i] = strconv.Itoa(m.Order)
	}
	line.SetXAxis(orders)
	for _, s := range errorSeries {
		data := make([]opts.LineData, len(history))
		for i, m := range history {
			if v := s.pick(m); v > 0 {
				data[i] = opts.LineData{Value: v}
			} else {
				data[i] = opts.LineData{Value: "-"}
			}
		}
		line.AddSeries(s.name, data)
	}
	if err := line.Render(w); err != nil {
		return fmt.Errorf("export: rendering chart: %w", err)
	}
	return nil
}
