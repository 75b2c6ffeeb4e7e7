package market

import (
	"fmt"
	"math"
)

// AssetStats summarises one column of a ReturnTable. All values are
// percentages. CAGR is only meaningful when CAGRDefined is true.
type AssetStats struct {
	Asset       string  `json:"asset"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"stdev"`
	CAGR        float64 `json:"cagr"`
	CAGRDefined bool    `json:"cagr_defined"`
}

// Metrics is the full statistical picture of a table. Correlation is indexed
// in the same order as Assets.
type Metrics struct {
	Assets      []string     `json:"assets"`
	Stats       []AssetStats `json:"stats"`
	Correlation [][]float64  `json:"correlation"`
}

// Compute derives per-asset statistics and the Pearson correlation matrix.
// Assets whose CAGR is undefined are reported with CAGRDefined=false instead
// of failing the whole computation.
func Compute(t ReturnTable) (Metrics, error) {
	if err := t.Validate(); err != nil {
		return Metrics{}, err
	}
	cols := make([][]float64, len(t.Assets))
	out := Metrics{
		Assets: append([]string(nil), t.Assets...),
		Stats:  make([]AssetStats, len(t.Assets)),
	}
	for i, a := range t.Assets {
		col, err := t.Column(a)
		if err != nil {
			return Metrics{}, err
		}
		cols[i] = col
		st := AssetStats{Asset: a, Mean: Mean(col), StdDev: StdDev(col)}
		if cagr, err := CAGR(col); err == nil {
			st.CAGR = cagr
			st.CAGRDefined = true
		}
		out.Stats[i] = st
	}
	out.Correlation = make([][]float64, len(cols))
	for i := range cols {
		out.Correlation[i] = make([]float64, len(cols))
		for j := range cols {
			switch {
			case i == j:
				out.Correlation[i][j] = 1
			case j < i:
				out.Correlation[i][j] = out.Correlation[j][i]
			default:
				out.Correlation[i][j] = Correlation(cols[i], cols[j])
			}
		}
	}
	return out, nil
}

func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev is the sample standard deviation (n-1 denominator). Fewer than two
// observations yield 0.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := Mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// CAGR is the geometric mean annual return of a series of percentage
// returns. A non-positive cumulative product has no real root, so it is
// reported as ErrUndefinedMetric.
func CAGR(returns []float64) (float64, error) {
	if len(returns) == 0 {
		return 0, fmt.Errorf("%w: no periods", ErrUndefinedMetric)
	}
	prod := 1.0
	for _, r := range returns {
		prod *= 1 + r/100
	}
	if prod <= 0 {
		return 0, fmt.Errorf("%w: cumulative growth %.4f is not positive", ErrUndefinedMetric, prod)
	}
	return (math.Pow(prod, 1/float64(len(returns))) - 1) * 100, nil
}

// Correlation is the Pearson coefficient of two equally long series. A series
// with zero variance has no defined correlation and yields 0.
func Correlation(a, b []float64) float64 {
	n := len(a)
	if n != len(b) || n < 2 {
		return 0
	}
	ma, mb := Mean(a), Mean(b)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va == 0 || vb == 0 {
		return 0
	}
	r := cov / math.Sqrt(va*vb)
	// Clamp float noise so |r| never exceeds 1.
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r
}
