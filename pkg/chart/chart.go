package chart

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/mchmarny/pulse/pkg/intel"
	"github.com/mchmarny/pulse/pkg/risk"
)

const (
	dirMode   = 0o755
	topStates = 15
	barWidth  = 28
)

var (
	ErrEmptyDataset = errors.New("dataset is empty")

	colorCritical = color.RGBA{R: 192, G: 57, B: 43, A: 255}
	colorHigh     = color.RGBA{R: 230, G: 126, B: 34, A: 255}
	colorMedium   = color.RGBA{R: 241, G: 196, B: 15, A: 255}
	colorLow      = color.RGBA{R: 39, G: 174, B: 96, A: 255}
	colorPrimary  = color.RGBA{R: 41, G: 128, B: 185, A: 255}
)

type renderer struct {
	name string
	draw func(*intel.Dataset) (*plot.Plot, error)
}

var charts = []renderer{
	{"risk_distribution.png", riskDistribution},
	{"sector_averages.png", sectorAverages},
	{"state_risk.png", stateRisk},
	{"daily_totals.png", dailyTotals},
}

// Render writes the infographics of ds into dir and returns their paths.
func Render(ds *intel.Dataset, dir string) ([]string, error) {
	if ds == nil || ds.Stats().Pincodes == 0 {
		return nil, ErrEmptyDataset
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create dir %s: %w", dir, err)
	}

	paths := make([]string, 0, len(charts))
	for _, c := range charts {
		p, err := c.draw(ds)
		if err != nil {
			return nil, fmt.Errorf("failed to draw %s: %w", c.name, err)
		}
		path := filepath.Join(dir, c.name)
		if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
			return nil, fmt.Errorf("failed to save %s: %w", path, err)
		}
		slog.Debug("chart saved", "path", path)
		paths = append(paths, path)
	}
	return paths, nil
}

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())
	return p
}

func riskDistribution(ds *intel.Dataset) (*plot.Plot, error) {
	d := ds.Overview().RiskDistribution
	p := newPlot("Pincodes by Risk Level", "Risk level", "Pincodes")

	levels := []struct {
		n int
		c color.Color
	}{{d.Critical, colorCritical}, {d.High, colorHigh}, {d.Medium, colorMedium}, {d.Low, colorLow}}

	// one chart per level so each bar keeps its own color
	for i, l := range levels {
		vals := make(plotter.Values, len(levels))
		vals[i] = float64(l.n)
		b, err := plotter.NewBarChart(vals, vg.Points(barWidth*2))
		if err != nil {
			return nil, err
		}
		b.Color = l.c
		b.LineStyle.Width = vg.Length(0)
		p.Add(b)
	}
	p.NominalX("CRITICAL", "HIGH", "MEDIUM", "LOW")
	p.Y.Min = 0
	return p, nil
}

func sectorAverages(ds *intel.Dataset) (*plot.Plot, error) {
	rows := ds.Summaries()
	p := newPlot("Average Sector Risk", "Sector", "Mean score (0-100)")

	vals := make(plotter.Values, len(risk.Sectors))
	names := make([]string, len(risk.Sectors))
	scores := make([]float64, len(rows))
	for i, s := range risk.Sectors {
		for j, r := range rows {
			scores[j] = r.Get(s.Sector)
		}
		vals[i] = stat.Mean(scores, nil)
		names[i] = s.Name
	}

	b, err := plotter.NewBarChart(vals, vg.Points(barWidth*2))
	if err != nil {
		return nil, err
	}
	b.Color = colorPrimary
	b.LineStyle.Width = vg.Length(0)
	p.Add(b)
	p.NominalX(names...)
	p.Y.Min, p.Y.Max = 0, 100
	return p, nil
}

func stateRisk(ds *intel.Dataset) (*plot.Plot, error) {
	states := append([]*intel.StateSummary(nil), ds.States()...)
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].GovernanceMean > states[j].GovernanceMean
	})
	states = states[:min(len(states), topStates)]

	p := newPlot("Mean Governance Risk by State", "", "Governance risk score")
	vals := make(plotter.Values, len(states))
	names := make([]string, len(states))
	for i, s := range states {
		vals[i] = s.GovernanceMean
		names[i] = s.State
	}

	b, err := plotter.NewBarChart(vals, vg.Points(barWidth))
	if err != nil {
		return nil, err
	}
	b.Color = colorCritical
	b.LineStyle.Width = vg.Length(0)
	p.Add(b)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	p.Y.Min = 0
	return p, nil
}

func dailyTotals(ds *intel.Dataset) (*plot.Plot, error) {
	days := ds.DailyTotals()
	p := newPlot("Daily Activity", "Date", "Records")
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}

	series := []struct {
		name string
		val  func(intel.DailyTotal) float64
		c    color.Color
	}{
		{"Enrolment", func(t intel.DailyTotal) float64 { return t.Enrolment }, colorPrimary},
		{"Demographic", func(t intel.DailyTotal) float64 { return t.Demographic }, colorHigh},
		{"Biometric", func(t intel.DailyTotal) float64 { return t.Biometric }, colorLow},
	}
	for _, s := range series {
		xys := make(plotter.XYs, len(days))
		for i, d := range days {
			xys[i].X = float64(d.Date.Unix())
			xys[i].Y = s.val(d)
		}
		l, err := plotter.NewLine(xys)
		if err != nil {
			return nil, err
		}
		l.Color = s.c
		l.Width = vg.Points(1.5)
		p.Add(l)
		p.Legend.Add(s.name, l)
	}
	p.Legend.Top = true
	return p, nil
}
