package market

import (
	"math"
	mathrand "math/rand"
)

// DefaultAssets is the classroom lineup used when no game file is supplied.
var DefaultAssets = []string{"比特币", "A股", "标普500", "美债", "ACWI", "等权组合"}

const (
	randomLow  = -15.0
	randomHigh = 30.0
)

// RandomTable draws every return uniformly from [-15, 30) rounded to cents.
func RandomTable(rng *mathrand.Rand, assets []string) (ReturnTable, error) {
	rows := make([][]float64, Periods)
	for i := range rows {
		rows[i] = make([]float64, len(assets))
		for j := range assets {
			v := randomLow + rng.Float64()*(randomHigh-randomLow)
			rows[i][j] = math.Round(v*100) / 100
		}
	}
	return NewReturnTable(assets, rows)
}
