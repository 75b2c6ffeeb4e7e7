package market

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Periods is the fixed holding horizon in years.
const Periods = 10

var (
	ErrInvalidTable    = errors.New("invalid return table")
	ErrUnknownAsset    = errors.New("unknown asset")
	ErrUndefinedMetric = errors.New("metric undefined")
)

// ReturnTable holds one row per period and one column per asset. Values are
// percentage returns, so 12.5 means +12.5% for that year.
type ReturnTable struct {
	Assets []string    `json:"assets"`
	Rows   [][]float64 `json:"rows"`
}

// NewReturnTable validates and copies assets and rows.
func NewReturnTable(assets []string, rows [][]float64) (ReturnTable, error) {
	t := ReturnTable{Assets: append([]string(nil), assets...), Rows: cloneRows(rows)}
	if err := t.Validate(); err != nil {
		return ReturnTable{}, err
	}
	return t, nil
}

// ZeroTable returns a table with every return set to 0.
func ZeroTable(assets []string) (ReturnTable, error) {
	rows := make([][]float64, Periods)
	for i := range rows {
		rows[i] = make([]float64, len(assets))
	}
	return NewReturnTable(assets, rows)
}

func (t ReturnTable) Validate() error {
	if len(t.Assets) == 0 {
		return fmt.Errorf("%w: at least one asset is required", ErrInvalidTable)
	}
	if err := ValidateAssetNames(t.Assets); err != nil {
		return err
	}
	if len(t.Rows) != Periods {
		return fmt.Errorf("%w: expected %d periods, got %d", ErrInvalidTable, Periods, len(t.Rows))
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Assets) {
			return fmt.Errorf("%w: period %d has %d values, expected %d", ErrInvalidTable, i+1, len(row), len(t.Assets))
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: period %d asset %q is not a real number", ErrInvalidTable, i+1, t.Assets[j])
			}
		}
	}
	return nil
}

// ValidateAssetNames requires non-empty, unique identifiers.
func ValidateAssetNames(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("%w: asset name must not be empty", ErrInvalidTable)
		}
		if _, ok := seen[n]; ok {
			return fmt.Errorf("%w: duplicate asset %q", ErrInvalidTable, n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

func (t ReturnTable) Index(asset string) int {
	for i, a := range t.Assets {
		if a == asset {
			return i
		}
	}
	return -1
}

func (t ReturnTable) Has(asset string) bool {
	return t.Index(asset) >= 0
}

// Column returns the period returns of one asset in period order.
func (t ReturnTable) Column(asset string) ([]float64, error) {
	idx := t.Index(asset)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAsset, asset)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

func (t ReturnTable) Clone() ReturnTable {
	return ReturnTable{Assets: append([]string(nil), t.Assets...), Rows: cloneRows(t.Rows)}
}

// WithRows replaces the return values while keeping the asset columns.
func (t ReturnTable) WithRows(rows [][]float64) (ReturnTable, error) {
	return NewReturnTable(t.Assets, rows)
}

// Renamed maps column i to names[i]. Values stay in place.
func (t ReturnTable) Renamed(names []string) (ReturnTable, error) {
	if len(names) != len(t.Assets) {
		return ReturnTable{}, fmt.Errorf("%w: expected %d names, got %d", ErrInvalidTable, len(t.Assets), len(names))
	}
	return NewReturnTable(names, t.Rows)
}

// WithAsset appends a column of zero returns.
func (t ReturnTable) WithAsset(name string) (ReturnTable, error) {
	if t.Has(name) {
		return ReturnTable{}, fmt.Errorf("%w: duplicate asset %q", ErrInvalidTable, name)
	}
	rows := cloneRows(t.Rows)
	for i := range rows {
		rows[i] = append(rows[i], 0)
	}
	return NewReturnTable(append(append([]string(nil), t.Assets...), name), rows)
}

// WithoutAsset drops a column. The last remaining asset cannot be removed.
func (t ReturnTable) WithoutAsset(name string) (ReturnTable, error) {
	idx := t.Index(name)
	if idx < 0 {
		return ReturnTable{}, fmt.Errorf("%w: %q", ErrUnknownAsset, name)
	}
	if len(t.Assets) == 1 {
		return ReturnTable{}, fmt.Errorf("%w: cannot remove the last asset", ErrInvalidTable)
	}
	assets := make([]string, 0, len(t.Assets)-1)
	assets = append(assets, t.Assets[:idx]...)
	assets = append(assets, t.Assets[idx+1:]...)
	rows := make([][]float64, len(t.Rows))
	for i, row := range t.Rows {
		r := make([]float64, 0, len(row)-1)
		r = append(r, row[:idx]...)
		r = append(r, row[idx+1:]...)
		rows[i] = r
	}
	return NewReturnTable(assets, rows)
}

// Multipliers returns the cumulative growth factor Π(1 + r/100) per asset.
func (t ReturnTable) Multipliers() map[string]float64 {
	out := make(map[string]float64, len(t.Assets))
	for j, a := range t.Assets {
		m := 1.0
		for _, row := range t.Rows {
			m *= 1 + row[j]/100
		}
		out[a] = m
	}
	return out
}

func cloneRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}
	return out
}
