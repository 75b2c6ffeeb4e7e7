package game

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"wealthsim/internal/market"
)

const (
	StartingCash    = 100_000.0
	DefaultLoanCap  = 200_000.0
	DefaultInterest = 0.10
	DefaultRiskFree = 2.0 // percent

	DefaultMaxRounds     = 4
	DefaultLeverageRound = 3
)

var (
	ErrAuthentication    = errors.New("wrong password")
	ErrDuplicateName     = errors.New("name already taken")
	ErrInvalidName       = errors.New("name must not be empty")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownAsset      = errors.New("unknown asset")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrLoanCapExceeded   = errors.New("loan cap exceeded")
	ErrDecisionLocked    = errors.New("decision locked")
	ErrAlreadySettled    = errors.New("round already settled")
	ErrNotSettled        = errors.New("round not settled yet")
	ErrNothingToSettle   = errors.New("no players to settle")
	ErrGameComplete      = errors.New("game complete")
	ErrInvalidTable      = errors.New("invalid return table")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrStaleDecision     = errors.New("decision belongs to an earlier round")
)

// SettlementMode picks the settlement algorithm.
type SettlementMode string

const (
	// SettleSingle compounds the whole horizon in one step.
	SettleSingle SettlementMode = "single"
	// SettleYearly walks the horizon period by period and measures risk.
	SettleYearly SettlementMode = "yearly"
)

func ParseSettlementMode(s string) (SettlementMode, error) {
	switch SettlementMode(strings.ToLower(strings.TrimSpace(s))) {
	case SettleSingle:
		return SettleSingle, nil
	case SettleYearly, "":
		return SettleYearly, nil
	default:
		return "", fmt.Errorf("unknown settlement mode %q", s)
	}
}

// Params are the game rules fixed for the lifetime of a Store.
type Params struct {
	StartingCash  float64        `json:"starting_cash" yaml:"starting_cash"`
	LoanCap       float64        `json:"loan_cap" yaml:"loan_cap"`
	InterestRate  float64        `json:"interest_rate" yaml:"interest_rate"`
	RiskFreeRate  float64        `json:"risk_free_rate" yaml:"risk_free_rate"`
	MaxRounds     int            `json:"max_rounds" yaml:"max_rounds"`
	LeverageRound int            `json:"leverage_round" yaml:"leverage_round"`
	Mode          SettlementMode `json:"settlement_mode" yaml:"settlement_mode"`
	CarryHoldings bool           `json:"carry_holdings" yaml:"carry_holdings"`
}

func DefaultParams() Params {
	return Params{
		StartingCash:  StartingCash,
		LoanCap:       DefaultLoanCap,
		InterestRate:  DefaultInterest,
		RiskFreeRate:  DefaultRiskFree,
		MaxRounds:     DefaultMaxRounds,
		LeverageRound: DefaultLeverageRound,
		Mode:          SettleYearly,
	}
}

func (p Params) Validate() error {
	switch {
	case !(p.StartingCash > 0) || math.IsInf(p.StartingCash, 0):
		return fmt.Errorf("starting cash must be a finite amount > 0")
	case !(p.LoanCap >= 0) || math.IsInf(p.LoanCap, 0):
		return fmt.Errorf("loan cap must be a finite amount >= 0")
	case !(p.InterestRate >= 0) || math.IsInf(p.InterestRate, 0):
		return fmt.Errorf("interest rate must be a finite rate >= 0")
	case math.IsNaN(p.RiskFreeRate) || math.IsInf(p.RiskFreeRate, 0):
		return fmt.Errorf("risk-free rate must be a real number")
	case p.MaxRounds < 1:
		return fmt.Errorf("max rounds must be >= 1")
	case p.LeverageRound < 1 || p.LeverageRound > p.MaxRounds:
		return fmt.Errorf("leverage round must be within 1..%d", p.MaxRounds)
	}
	if _, err := ParseSettlementMode(string(p.Mode)); err != nil {
		return err
	}
	return nil
}

// Account is one participant. Name is the primary key.
type Account struct {
	Name     string              `json:"name"`
	Password string              `json:"password"`
	Cash     float64             `json:"cash"`
	Loan     float64             `json:"loan"`
	Holdings map[string]float64  `json:"holdings"`
	NetWorth float64             `json:"net_worth"`
	Locked   bool                `json:"locked"`
	History  map[int]RoundResult `json:"history"`
}

// RoundResult is written once per round at settlement.
type RoundResult struct {
	Round         int       `json:"round"`
	NetWorth      float64   `json:"net_worth"`
	Multiple      float64   `json:"multiple"`
	InvestedValue float64   `json:"invested_value"`
	Volatility    float64   `json:"volatility"`
	RealizedCAGR  float64   `json:"realized_cagr"`
	RiskAdjusted  float64   `json:"risk_adjusted"`
	RiskMeasured  bool      `json:"risk_measured"`
	CAGRDefined   bool      `json:"cagr_defined"`
	Loan          float64   `json:"loan"`
	Cash          float64   `json:"cash"`
	Path          []float64 `json:"path,omitempty"`
}

// ValidateName trims and rejects empty names.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

func newAccount(name, password string, cash float64, assets []string) *Account {
	a := &Account{Name: name, Password: password, History: map[int]RoundResult{}}
	a.reset(cash, assets)
	return a
}

func (a *Account) reset(cash float64, assets []string) {
	a.Cash = cash
	a.Loan = 0
	a.Locked = false
	a.Holdings = make(map[string]float64, len(assets))
	for _, name := range assets {
		a.Holdings[name] = 0
	}
	a.refreshNetWorth()
}

// Invested sums the current value of all holdings.
func (a *Account) Invested() float64 {
	var sum float64
	for _, k := range slices.Sorted(maps.Keys(a.Holdings)) {
		sum += a.Holdings[k]
	}
	return sum
}

func (a *Account) refreshNetWorth() {
	a.NetWorth = a.Cash + a.Invested()
}

func (a *Account) buy(asset string, amount float64) error {
	if a.Locked {
		return ErrDecisionLocked
	}
	if !validAmount(amount) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	if _, ok := a.Holdings[asset]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAsset, asset)
	}
	if amount > a.Cash {
		return fmt.Errorf("%w: cash %.2f, requested %.2f", ErrInsufficientFunds, a.Cash, amount)
	}
	a.Holdings[asset] += amount
	a.Cash -= amount
	a.refreshNetWorth()
	return nil
}

func (a *Account) borrow(amount, limit float64) error {
	if a.Locked {
		return ErrDecisionLocked
	}
	if !validAmount(amount) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	if a.Loan+amount > limit {
		return fmt.Errorf("%w: outstanding %.2f + %.2f > cap %.2f", ErrLoanCapExceeded, a.Loan, amount, limit)
	}
	a.Loan += amount
	a.Cash += amount
	a.refreshNetWorth()
	return nil
}

func (a *Account) clone() Account {
	out := *a
	out.Holdings = maps.Clone(a.Holdings)
	out.History = make(map[int]RoundResult, len(a.History))
	for k, v := range a.History {
		v.Path = append([]float64(nil), v.Path...)
		out.History[k] = v
	}
	return out
}

func validAmount(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func toTableError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, market.ErrUnknownAsset) {
		return fmt.Errorf("%w: %v", ErrUnknownAsset, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidTable, err)
}
