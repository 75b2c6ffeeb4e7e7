package game

import (
	"fmt"
	"math"

	"wealthsim/internal/market"
)

// Realized volatility below this is float noise from a flat path.
const volatilityEpsilon = 1e-9

// Engine applies a ReturnTable to a portfolio. The same Engine value is used
// for every account in a settlement so interest and repayment stay uniform.
type Engine struct {
	Mode         SettlementMode
	InterestRate float64
	RiskFreeRate float64
	StartingCash float64
}

func NewEngine(p Params) Engine {
	return Engine{
		Mode:         p.Mode,
		InterestRate: p.InterestRate,
		RiskFreeRate: p.RiskFreeRate,
		StartingCash: p.StartingCash,
	}
}

// Portfolio is the settlement input for one account.
type Portfolio struct {
	Cash     float64
	Loan     float64
	Holdings map[string]float64
}

// Outcome is the settlement result for one account. Holdings are the
// terminal values of each position after the full horizon.
type Outcome struct {
	NetWorth      float64
	Multiple      float64
	InvestedValue float64
	Volatility    float64
	RealizedCAGR  float64
	RiskAdjusted  float64
	RiskMeasured  bool
	CAGRDefined   bool
	LoanCharge    float64
	Holdings      map[string]float64
	Path          []float64
}

func (o Outcome) result(round int, p Portfolio) RoundResult {
	return RoundResult{
		Round:         round,
		NetWorth:      o.NetWorth,
		Multiple:      o.Multiple,
		InvestedValue: o.InvestedValue,
		Volatility:    o.Volatility,
		RealizedCAGR:  o.RealizedCAGR,
		RiskAdjusted:  o.RiskAdjusted,
		RiskMeasured:  o.RiskMeasured,
		CAGRDefined:   o.CAGRDefined,
		Loan:          p.Loan,
		Cash:          p.Cash,
		Path:          append([]float64(nil), o.Path...),
	}
}

// Evaluate runs the configured algorithm. Every held asset must be a column
// of the table.
func (e Engine) Evaluate(t market.ReturnTable, p Portfolio) (Outcome, error) {
	for asset := range p.Holdings {
		if !t.Has(asset) {
			return Outcome{}, fmt.Errorf("%w: %q not in return table", ErrUnknownAsset, asset)
		}
	}
	switch e.Mode {
	case SettleSingle:
		return e.singleShot(t, p), nil
	default:
		return e.yearByYear(t, p), nil
	}
}

// LoanCharge is the amount repaid at settlement: principal plus interest.
func (e Engine) LoanCharge(loan float64) float64 {
	return loan * (1 + e.InterestRate)
}

func (e Engine) multiple(netWorth float64) float64 {
	if e.StartingCash == 0 {
		return 0
	}
	return netWorth / e.StartingCash
}

func (e Engine) singleShot(t market.ReturnTable, p Portfolio) Outcome {
	mult := t.Multipliers()
	out := Outcome{Holdings: make(map[string]float64, len(p.Holdings))}
	for _, asset := range t.Assets {
		v, ok := p.Holdings[asset]
		if !ok {
			continue
		}
		terminal := v * mult[asset]
		out.Holdings[asset] = terminal
		out.InvestedValue += terminal
	}
	out.LoanCharge = e.LoanCharge(p.Loan)
	out.NetWorth = out.InvestedValue + p.Cash - out.LoanCharge
	out.Multiple = e.multiple(out.NetWorth)
	return out
}

func (e Engine) yearByYear(t market.ReturnTable, p Portfolio) Outcome {
	holdings := make(map[string]float64, len(p.Holdings))
	for k, v := range p.Holdings {
		holdings[k] = v
	}
	// Sum in column order so every run adds the same floats the same way.
	invested := func() float64 {
		var sum float64
		for _, asset := range t.Assets {
			sum += holdings[asset]
		}
		return sum
	}
	value := func() float64 {
		return p.Cash + invested()
	}

	path := make([]float64, 0, len(t.Rows)+1)
	path = append(path, value())
	for _, row := range t.Rows {
		for j, asset := range t.Assets {
			if v, ok := holdings[asset]; ok {
				holdings[asset] = v * (1 + row[j]/100)
			}
		}
		path = append(path, value())
	}

	changes := make([]float64, len(path)-1)
	for i := 1; i < len(path); i++ {
		prev := path[i-1]
		if prev <= 0 {
			// No meaningful percentage change from a non-positive base.
			changes[i-1] = 0
			continue
		}
		changes[i-1] = (path[i]/prev - 1) * 100
	}

	out := Outcome{
		Holdings:     holdings,
		Path:         path,
		RiskMeasured: true,
		Volatility:   market.StdDev(changes),
	}
	out.InvestedValue = invested()
	if out.Volatility < volatilityEpsilon {
		out.Volatility = 0
	}

	first, last := path[0], path[len(path)-1]
	if first > 0 && last > 0 {
		out.RealizedCAGR = (math.Pow(last/first, 1/float64(len(changes))) - 1) * 100
		out.CAGRDefined = true
	}
	if out.CAGRDefined && out.Volatility != 0 {
		out.RiskAdjusted = (out.RealizedCAGR - e.RiskFreeRate) / out.Volatility
	}

	out.LoanCharge = e.LoanCharge(p.Loan)
	out.NetWorth = last - out.LoanCharge
	out.Multiple = e.multiple(out.NetWorth)
	return out
}
