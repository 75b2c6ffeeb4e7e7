package api

import (
	"math"

	"wealthsim/internal/disclosure"
	"wealthsim/internal/game"
	"wealthsim/internal/market"
)

// Money and statistics leave the API rounded to cents; the store keeps full
// precision.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round2(*v)
	return &r
}

func presentPlayer(v game.PlayerView) game.PlayerView {
	v.Cash = round2(v.Cash)
	v.Loan = round2(v.Loan)
	v.NetWorth = round2(v.NetWorth)
	v.Invested = round2(v.Invested)
	holdings := make([]game.HoldingView, len(v.Holdings))
	for i, h := range v.Holdings {
		holdings[i] = game.HoldingView{Asset: h.Asset, Value: round2(h.Value), Weight: round2(h.Weight)}
	}
	v.Holdings = holdings
	history := make([]game.RoundResult, len(v.History))
	for i, r := range v.History {
		history[i] = presentResult(r)
	}
	v.History = history
	return v
}

func presentResult(r game.RoundResult) game.RoundResult {
	r.NetWorth = round2(r.NetWorth)
	r.Multiple = round2(r.Multiple)
	r.InvestedValue = round2(r.InvestedValue)
	r.Volatility = round2(r.Volatility)
	r.RealizedCAGR = round2(r.RealizedCAGR)
	r.RiskAdjusted = round2(r.RiskAdjusted)
	r.Loan = round2(r.Loan)
	r.Cash = round2(r.Cash)
	path := make([]float64, len(r.Path))
	for i, v := range r.Path {
		path[i] = round2(v)
	}
	if len(path) > 0 {
		r.Path = path
	}
	return r
}

func presentLeaderboard(rows []game.LeaderboardRow) []game.LeaderboardRow {
	out := make([]game.LeaderboardRow, len(rows))
	for i, row := range rows {
		row.NetWorth = round2(row.NetWorth)
		row.Loan = round2(row.Loan)
		row.Multiple = round2(row.Multiple)
		out[i] = row
	}
	return out
}

func presentView(v disclosure.View) disclosure.View {
	assets := make([]disclosure.AssetView, len(v.Assets))
	for i, a := range v.Assets {
		assets[i] = disclosure.AssetView{
			Asset:  a.Asset,
			Mean:   round2Ptr(a.Mean),
			StdDev: round2Ptr(a.StdDev),
			CAGR:   round2Ptr(a.CAGR),
		}
	}
	v.Assets = assets
	v.Correlation = roundMatrix(v.Correlation)
	return v
}

// statView is the facilitator rendering of one asset. An undefined CAGR is
// rendered as null.
type statView struct {
	Asset  string   `json:"asset"`
	Mean   float64  `json:"mean"`
	StdDev float64  `json:"stdev"`
	CAGR   *float64 `json:"cagr"`
}

type metricsView struct {
	Assets      []string    `json:"assets"`
	Stats       []statView  `json:"stats"`
	Correlation [][]float64 `json:"correlation"`
}

func presentMetrics(m market.Metrics) metricsView {
	out := metricsView{
		Assets:      m.Assets,
		Stats:       make([]statView, len(m.Stats)),
		Correlation: roundMatrix(m.Correlation),
	}
	for i, st := range m.Stats {
		sv := statView{Asset: st.Asset, Mean: round2(st.Mean), StdDev: round2(st.StdDev)}
		if st.CAGRDefined {
			c := round2(st.CAGR)
			sv.CAGR = &c
		}
		out.Stats[i] = sv
	}
	return out
}

func roundMatrix(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = round2(v)
		}
	}
	return out
}
