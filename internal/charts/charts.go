// Package charts renders PNG charts of market statistics and settled wealth
// paths.
package charts

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"wealthsim/internal/market"

	gocharts "github.com/vicanso/go-charts/v2"
)

var ErrNoData = errors.New("nothing to chart")

// CAGRBar ranks assets by CAGR, highest first. Assets whose CAGR is
// undefined are left out.
func CAGRBar(m market.Metrics) ([]byte, error) {
	stats := make([]market.AssetStats, 0, len(m.Stats))
	for _, st := range m.Stats {
		if st.CAGRDefined {
			stats = append(stats, st)
		}
	}
	if len(stats) == 0 {
		return nil, ErrNoData
	}
	sort.SliceStable(stats, func(i, j int) bool { return stats[i].CAGR > stats[j].CAGR })

	labels := make([]string, len(stats))
	values := make([]float64, len(stats))
	for i, st := range stats {
		labels[i] = st.Asset
		values[i] = math.Round(st.CAGR*100) / 100
	}

	p, err := gocharts.BarRender(
		[][]float64{values},
		gocharts.TitleTextOptionFunc("CAGR by asset (%)"),
		gocharts.XAxisDataOptionFunc(labels),
		gocharts.ThemeOptionFunc(gocharts.ThemeLight),
		gocharts.WidthOptionFunc(800),
		gocharts.HeightOptionFunc(480),
	)
	if err != nil {
		return nil, fmt.Errorf("render cagr chart: %w", err)
	}
	return p.Bytes()
}

// WealthPath plots year-by-year portfolio values of one settlement.
func WealthPath(player string, round int, path []float64) ([]byte, error) {
	if len(path) < 2 {
		return nil, ErrNoData
	}
	labels := make([]string, len(path))
	minVal, maxVal := path[0], path[0]
	for i, v := range path {
		labels[i] = fmt.Sprintf("Y%d", i)
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	padding := (maxVal - minVal) * 0.1
	if padding == 0 {
		padding = math.Max(math.Abs(maxVal)*0.05, 1)
	}
	yMin := minVal - padding
	yMax := maxVal + padding

	p, err := gocharts.LineRender(
		[][]float64{path},
		gocharts.TitleTextOptionFunc(fmt.Sprintf("%s, round %d", player, round), "portfolio value by year"),
		gocharts.XAxisOptionFunc(gocharts.XAxisOption{
			Data:        labels,
			BoundaryGap: gocharts.FalseFlag(),
		}),
		gocharts.YAxisOptionFunc(gocharts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		gocharts.ThemeOptionFunc(gocharts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("render wealth path: %w", err)
	}
	return p.Bytes()
}
