// Package disclosure decides which market statistics students may see in a
// given round. It is a pure function of the round number: every player sees
// the same capabilities.
package disclosure

import (
	"slices"

	"wealthsim/internal/market"
)

type Stat string

const (
	StatMean        Stat = "mean"
	StatStdDev      Stat = "stdev"
	StatCAGR        Stat = "cagr"
	StatCorrelation Stat = "correlation"
)

// Policy describes the disclosure ladder. Rounds at or past FinalRound see
// everything; leverage unlocks at LeverageRound.
type Policy struct {
	FinalRound    int
	LeverageRound int
}

// NewPolicy clamps the leverage round into 1..finalRound.
func NewPolicy(finalRound, leverageRound int) Policy {
	finalRound = max(finalRound, 1)
	return Policy{FinalRound: finalRound, LeverageRound: min(max(leverageRound, 1), finalRound)}
}

// Capabilities is the declarative result of Visible.
type Capabilities struct {
	Round           int    `json:"round"`
	Stats           []Stat `json:"stats"`
	LeverageEnabled bool   `json:"leverage_enabled"`
	Final           bool   `json:"final"`
}

func (c Capabilities) Allows(s Stat) bool {
	return slices.Contains(c.Stats, s)
}

// Visible is total over all integers. Rounds below 1 are treated as round 1.
func (p Policy) Visible(round int) Capabilities {
	if round < 1 {
		round = 1
	}
	c := Capabilities{Round: round}
	switch {
	case round >= p.FinalRound:
		c.Stats = []Stat{StatMean, StatStdDev, StatCAGR, StatCorrelation}
		c.Final = true
	case round >= 2:
		c.Stats = []Stat{StatMean, StatStdDev}
	default:
		c.Stats = []Stat{StatMean}
	}
	c.LeverageEnabled = round >= p.LeverageRound
	return c
}

// AssetView carries only the statistics a round allows; hidden ones are nil.
type AssetView struct {
	Asset  string   `json:"asset"`
	Mean   *float64 `json:"mean,omitempty"`
	StdDev *float64 `json:"stdev,omitempty"`
	CAGR   *float64 `json:"cagr,omitempty"`
}

type View struct {
	Capabilities
	Assets      []AssetView `json:"assets"`
	Correlation [][]float64 `json:"correlation,omitempty"`
}

// Apply filters computed metrics down to what the round may show. An asset
// with an undefined CAGR keeps a nil CAGR even in the final round.
func (p Policy) Apply(m market.Metrics, round int) View {
	caps := p.Visible(round)
	v := View{Capabilities: caps, Assets: make([]AssetView, len(m.Stats))}
	for i, st := range m.Stats {
		av := AssetView{Asset: st.Asset}
		if caps.Allows(StatMean) {
			av.Mean = ptr(st.Mean)
		}
		if caps.Allows(StatStdDev) {
			av.StdDev = ptr(st.StdDev)
		}
		if caps.Allows(StatCAGR) && st.CAGRDefined {
			av.CAGR = ptr(st.CAGR)
		}
		v.Assets[i] = av
	}
	if caps.Allows(StatCorrelation) {
		v.Correlation = make([][]float64, len(m.Correlation))
		for i, row := range m.Correlation {
			v.Correlation[i] = append([]float64(nil), row...)
		}
	}
	return v
}

func ptr(f float64) *float64 {
	return &f
}
