// Package charts renders spending charts as PNG images.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/fogleman/gg"

	"kazo/internal/core"
	"kazo/internal/currency"
)

const (
	width  = 800
	height = 500

	marginLeft   = 70.0
	marginRight  = 30.0
	marginTop    = 60.0
	marginBottom = 60.0
)

var ErrNoData = errors.New("no data to chart")

var palette = []string{
	"#4C72B0", "#55A868", "#C44E52", "#8172B3", "#CCB974",
	"#64B5CD", "#E5AE38", "#6D904F", "#8B8B8B", "#D65F5F",
	"#B47CC7", "#C4AD66", "#77BEDB", "#92C6FF",
}

const (
	colorPrimary    = "#4C72B0"
	colorSecondary  = "#55A868"
	colorTrend      = "#C44E52"
	colorBudget     = "#E5AE38"
	colorGrid       = "#E5E5E5"
	colorBackground = "#FAFAFA"
	colorText       = "#2D3436"
)

// CategoryBreakdown draws horizontal bars, largest category on top.
func CategoryBreakdown(rows []core.CategoryTotal, base string) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	dc := newCanvas("Spending by Category")

	maxTotal := 0.0
	for _, r := range rows {
		maxTotal = math.Max(maxTotal, r.Total)
	}
	left := marginLeft + 70
	plotW := width - left - marginRight - 80
	plotH := height - marginTop - marginBottom
	barH := plotH / float64(len(rows))

	for i, r := range rows {
		y := marginTop + float64(i)*barH
		w := 0.0
		if maxTotal > 0 {
			w = r.Total / maxTotal * plotW
		}
		dc.SetHexColor(palette[i%len(palette)])
		dc.DrawRectangle(left, y+barH*0.15, w, barH*0.7)
		dc.Fill()

		name := r.Category
		if name == "" {
			name = "other"
		}
		dc.SetHexColor(colorText)
		dc.DrawStringAnchored(name, left-8, y+barH/2, 1, 0.5)
		dc.DrawStringAnchored(currency.FormatAmount(r.Total, base), left+w+6, y+barH/2, 0, 0.5)
	}
	return encode(dc)
}

// MonthlyTrend draws one bar per month, oldest first, with a linear trend
// once there are three months.
func MonthlyTrend(rows []core.MonthTotal, base string) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	labels := make([]string, len(rows))
	values := make([]float64, len(rows))
	for i, r := range rows {
		labels[i], values[i] = r.Month, r.Total
	}
	dc := newCanvas("Monthly Spending (" + base + ")")
	drawColumns(dc, labels, values, colorPrimary, true)
	if len(values) >= 3 {
		drawTrend(dc, values)
	}
	return encode(dc)
}

// DailySpending draws one bar per day. A positive monthlyBudget adds the
// matching daily allowance as a horizontal line.
func DailySpending(rows []core.DayTotal, base string, monthlyBudget float64) ([]byte, error) {
	if len(rows) == 0 {
		return nil, ErrNoData
	}
	labels := make([]string, len(rows))
	values := make([]float64, len(rows))
	for i, r := range rows {
		labels[i], values[i] = r.Date.Format("01-02"), r.Total
	}
	dc := newCanvas("Daily Spending (" + base + ")")

	daily := monthlyBudget / 30
	ceiling := maxOf(values)
	if daily > ceiling {
		ceiling = daily
	}
	sc := newScale(ceiling)
	drawAxis(dc, sc)
	drawBars(dc, labels, values, sc, colorSecondary, false)
	if len(values) >= 5 {
		drawTrendScaled(dc, values, sc)
	}
	if monthlyBudget > 0 {
		y := sc.y(daily)
		dc.SetHexColor(colorBudget)
		dc.SetLineWidth(2)
		dc.SetDash(8, 4)
		dc.DrawLine(marginLeft, y, width-marginRight, y)
		dc.Stroke()
		dc.SetDash()
		dc.DrawStringAnchored(fmt.Sprintf("budget/day %s", currency.FormatAmount(daily, base)), width-marginRight, y-6, 1, 0)
	}
	return encode(dc)
}

type scale struct {
	max float64
}

func newScale(top float64) scale {
	if top <= 0 {
		top = 1
	}
	return scale{max: top * 1.1}
}

func (s scale) y(v float64) float64 {
	plotH := height - marginTop - marginBottom
	return height - marginBottom - v/s.max*plotH
}

func newCanvas(title string) *gg.Context {
	dc := gg.NewContext(width, height)
	dc.SetHexColor(colorBackground)
	dc.Clear()
	dc.SetHexColor(colorText)
	dc.DrawStringAnchored(title, width/2, marginTop/2, 0.5, 0.5)
	return dc
}

func drawColumns(dc *gg.Context, labels []string, values []float64, color string, annotate bool) {
	sc := newScale(maxOf(values))
	drawAxis(dc, sc)
	drawBars(dc, labels, values, sc, color, annotate)
}

func drawAxis(dc *gg.Context, sc scale) {
	dc.SetLineWidth(1)
	for i := 0; i <= 4; i++ {
		v := sc.max * float64(i) / 4
		y := sc.y(v)
		dc.SetHexColor(colorGrid)
		dc.DrawLine(marginLeft, y, width-marginRight, y)
		dc.Stroke()
		dc.SetHexColor(colorText)
		dc.DrawStringAnchored(fmt.Sprintf("%.0f", v), marginLeft-6, y, 1, 0.5)
	}
}

func drawBars(dc *gg.Context, labels []string, values []float64, sc scale, color string, annotate bool) {
	plotW := width - marginLeft - marginRight
	slot := plotW / float64(len(values))
	// Thin out labels so they do not overlap.
	every := int(math.Ceil(float64(len(labels)) * 48 / plotW))
	if every < 1 {
		every = 1
	}
	for i, v := range values {
		x := marginLeft + float64(i)*slot
		top := sc.y(v)
		dc.SetHexColor(color)
		dc.DrawRectangle(x+slot*0.15, top, slot*0.7, height-marginBottom-top)
		dc.Fill()

		dc.SetHexColor(colorText)
		if i%every == 0 {
			dc.DrawStringAnchored(labels[i], x+slot/2, height-marginBottom+14, 0.5, 0.5)
		}
		if annotate {
			dc.DrawStringAnchored(fmt.Sprintf("%.0f", v), x+slot/2, top-8, 0.5, 0.5)
		}
	}
}

func drawTrend(dc *gg.Context, values []float64) {
	drawTrendScaled(dc, values, newScale(maxOf(values)))
}

func drawTrendScaled(dc *gg.Context, values []float64, sc scale) {
	slope, intercept := linearFit(values)
	plotW := width - marginLeft - marginRight
	slot := plotW / float64(len(values))
	x0 := marginLeft + slot/2
	x1 := marginLeft + slot*(float64(len(values))-0.5)
	y0 := sc.y(math.Max(intercept, 0))
	y1 := sc.y(math.Max(intercept+slope*float64(len(values)-1), 0))

	dc.SetHexColor(colorTrend)
	dc.SetLineWidth(2)
	dc.SetDash(6, 4)
	dc.DrawLine(x0, y0, x1, y1)
	dc.Stroke()
	dc.SetDash()
}

// linearFit returns the least squares line through (i, values[i]).
func linearFit(values []float64) (slope, intercept float64) {
	n := float64(len(values))
	var sx, sy, sxy, sxx float64
	for i, v := range values {
		x := float64(i)
		sx += x
		sy += v
		sxy += x * v
		sxx += x * x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, sy / n
	}
	slope = (n*sxy - sx*sy) / den
	return slope, (sy - slope*sx) / n
}

func maxOf(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		m = math.Max(m, v)
	}
	return m
}

func encode(dc *gg.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}
