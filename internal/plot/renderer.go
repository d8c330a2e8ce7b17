package plot

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/color"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/datalens-ai/datalens/internal/domain"
	"github.com/datalens-ai/datalens/internal/metrics"
)

// Renderer turns chart directives into PNG data URIs.
type Renderer struct {
	logger *zap.Logger
}

// NewRenderer creates a Renderer.
func NewRenderer(logger *zap.Logger) *Renderer {
	return &Renderer{logger: logger}
}

// Execute renders the plot_code field against the request's tables. A
// value that is already a data URI passes through unchanged. Any
// failure, including panics out of the plotting stack, degrades to
// EmptyArtifact.
func (r *Renderer) Execute(code string, tables map[string]*domain.Table) (artifact string) {
	kind := "unknown"
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("plot rendering panicked", zap.Any("panic", rec))
			metrics.PlotRendersTotal.WithLabelValues(kind, "error").Inc()
			artifact = EmptyArtifact
		}
	}()

	if strings.HasPrefix(code, URIPrefix) {
		metrics.PlotRendersTotal.WithLabelValues("inline", "success").Inc()
		return code
	}

	d, err := ParseDirective(code)
	if err != nil {
		r.logger.Warn("invalid chart directive", zap.Error(err))
		metrics.PlotRendersTotal.WithLabelValues(kind, "error").Inc()
		return EmptyArtifact
	}
	kind = d.Kind

	uri, err := r.render(d, tables)
	if err != nil {
		r.logger.Warn("chart rendering failed",
			zap.String("kind", d.Kind),
			zap.String("table", d.Table),
			zap.Error(err),
		)
		metrics.PlotRendersTotal.WithLabelValues(kind, "error").Inc()
		return EmptyArtifact
	}

	metrics.PlotRendersTotal.WithLabelValues(kind, "success").Inc()
	return uri
}

func (r *Renderer) render(d Directive, tables map[string]*domain.Table) (string, error) {
	table, err := pickTable(d.Table, tables)
	if err != nil {
		return "", err
	}

	s := newSession(d.Title, d.X, d.Y)
	switch d.Kind {
	case KindScatter:
		err = s.scatter(table, d.X, d.Y, d.Regression)
	case KindLine:
		err = s.line(table, d.X, d.Y)
	case KindBar:
		err = s.bar(table, d.X, d.Y)
	case KindHistogram:
		err = s.histogram(table, d.X, d.Y)
	default:
		err = fmt.Errorf("unknown chart kind %q", d.Kind)
	}
	if err != nil {
		return "", err
	}

	return s.encode()
}

// pickTable resolves the directive's table name. A single-table request
// tolerates a missing or wrong name since the choice is unambiguous.
func pickTable(name string, tables map[string]*domain.Table) (*domain.Table, error) {
	if t, ok := tables[name]; ok {
		return t, nil
	}
	if len(tables) == 1 {
		for _, t := range tables {
			return t, nil
		}
	}
	return nil, fmt.Errorf("no table named %q among %d tables", name, len(tables))
}

// session is a per-invocation drawing surface. Nothing here is shared
// between requests; the underlying plot is discarded after encode.
type session struct {
	p *plot.Plot
}

var (
	plotWhite = color.White
	plotRed   = color.RGBA{R: 0xff, A: 0xff}
	plotBlue  = color.RGBA{R: 0x4c, G: 0x8b, B: 0xf5, A: 0xff}
	plotGray  = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0x80}
)

func newSession(title, xLabel, yLabel string) *session {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	// Dark theme: black canvas, white text and axes, translucent grid.
	p.BackgroundColor = color.Black
	p.Title.TextStyle.Color = plotWhite
	for _, axis := range []*plot.Axis{&p.X, &p.Y} {
		axis.Label.TextStyle.Color = plotWhite
		axis.LineStyle.Color = plotWhite
		axis.Tick.LineStyle.Color = plotWhite
		axis.Tick.Label.Color = plotWhite
	}
	p.Legend.TextStyle.Color = plotWhite

	grid := plotter.NewGrid()
	grid.Vertical.Color = plotGray
	grid.Horizontal.Color = plotGray
	grid.Vertical.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
	grid.Horizontal.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
	p.Add(grid)

	return &session{p: p}
}

func (s *session) scatter(table *domain.Table, xCol, yCol string, regression bool) error {
	xs, ys, err := pairedColumns(table, xCol, yCol)
	if err != nil {
		return err
	}

	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("build scatter: %w", err)
	}
	sc.GlyphStyle.Color = plotBlue
	sc.GlyphStyle.Radius = vg.Points(3)
	s.p.Add(sc)
	s.p.Legend.Add("Data Points", sc)

	if regression {
		if err := s.regressionLine(xs, ys); err != nil {
			return err
		}
	}
	return nil
}

// regressionLine draws the ordinary least squares fit as a dotted red
// line across the observed x range.
func (s *session) regressionLine(xs, ys []float64) error {
	if len(xs) < 2 {
		return fmt.Errorf("regression needs at least 2 points, have %d", len(xs))
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)

	minX, maxX := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < minX {
			minX = x
		}
		if x > maxX {
			maxX = x
		}
	}

	fit := plotter.XYs{
		{X: minX, Y: alpha + beta*minX},
		{X: maxX, Y: alpha + beta*maxX},
	}
	line, err := plotter.NewLine(fit)
	if err != nil {
		return fmt.Errorf("build regression line: %w", err)
	}
	line.LineStyle.Color = plotRed
	line.LineStyle.Width = vg.Points(1.5)
	line.LineStyle.Dashes = []vg.Length{vg.Points(2), vg.Points(3)}
	s.p.Add(line)
	s.p.Legend.Add("Regression Line", line)
	return nil
}

func (s *session) line(table *domain.Table, xCol, yCol string) error {
	xs, ys, err := pairedColumns(table, xCol, yCol)
	if err != nil {
		return err
	}

	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}

	ln, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("build line: %w", err)
	}
	ln.LineStyle.Color = plotBlue
	ln.LineStyle.Width = vg.Points(1.5)
	s.p.Add(ln)
	return nil
}

func (s *session) bar(table *domain.Table, xCol, yCol string) error {
	ys, err := numericColumn(table, yCol)
	if err != nil {
		return err
	}
	if len(ys) == 0 {
		return fmt.Errorf("column %q has no numeric values", yCol)
	}

	bars, err := plotter.NewBarChart(plotter.Values(ys), vg.Points(20))
	if err != nil {
		return fmt.Errorf("build bar chart: %w", err)
	}
	bars.Color = plotBlue
	bars.LineStyle.Width = 0
	s.p.Add(bars)

	if labels, err := textColumn(table, xCol); err == nil && len(labels) == len(ys) {
		s.p.NominalX(labels...)
	}
	return nil
}

func (s *session) histogram(table *domain.Table, xCol, yCol string) error {
	col := xCol
	if col == "" {
		col = yCol
	}
	vals, err := numericColumn(table, col)
	if err != nil {
		return err
	}
	if len(vals) == 0 {
		return fmt.Errorf("column %q has no numeric values", col)
	}

	hist, err := plotter.NewHist(plotter.Values(vals), 16)
	if err != nil {
		return fmt.Errorf("build histogram: %w", err)
	}
	hist.FillColor = plotBlue
	s.p.Add(hist)
	return nil
}

// encode renders the canvas to PNG and wraps it as a data URI.
func (s *session) encode() (string, error) {
	wt, err := s.p.WriterTo(10*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return "", fmt.Errorf("render png: %w", err)
	}

	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return EmptyArtifact + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// pairedColumns returns x/y pairs where both cells parse as numbers.
func pairedColumns(table *domain.Table, xCol, yCol string) ([]float64, []float64, error) {
	xVals, err := table.Column(xCol)
	if err != nil {
		return nil, nil, err
	}
	yVals, err := table.Column(yCol)
	if err != nil {
		return nil, nil, err
	}

	var xs, ys []float64
	for i := range xVals {
		x, okX := xVals[i].Float()
		y, okY := yVals[i].Float()
		if okX && okY {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	if len(xs) == 0 {
		return nil, nil, fmt.Errorf("columns %q/%q yield no numeric pairs", xCol, yCol)
	}
	return xs, ys, nil
}

func numericColumn(table *domain.Table, name string) ([]float64, error) {
	vals, err := table.Column(name)
	if err != nil {
		return nil, err
	}
	var out []float64
	for _, v := range vals {
		if f, ok := v.Float(); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func textColumn(table *domain.Table, name string) ([]string, error) {
	vals, err := table.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.Text()
	}
	return out, nil
}
