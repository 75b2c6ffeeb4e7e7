package game

import (
	"errors"
	"math"
	"testing"
)

func TestValidateName(t *testing.T) {
	got, err := ValidateName("  Alice ")
	if err != nil || got != "Alice" {
		t.Fatalf("got %q, %v want Alice", got, err)
	}

	for _, s := range []string{"", "   ", "\t\n"} {
		if _, err := ValidateName(s); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("name %q: expected ErrInvalidName, got %v", s, err)
		}
	}
}

func TestParseSettlementMode(t *testing.T) {
	tests := []struct {
		in   string
		want SettlementMode
	}{
		{in: "", want: SettleYearly},
		{in: "yearly", want: SettleYearly},
		{in: " Single ", want: SettleSingle},
	}
	for _, tc := range tests {
		got, err := ParseSettlementMode(tc.in)
		if err != nil {
			t.Fatalf("mode %q: unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("mode %q got=%s want=%s", tc.in, got, tc.want)
		}
	}
	if _, err := ParseSettlementMode("monthly"); err == nil {
		t.Fatalf("expected monthly to fail")
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params: %v", err)
	}

	bad := map[string]func(*Params){
		"zero cash":         func(p *Params) { p.StartingCash = 0 },
		"infinite cash":     func(p *Params) { p.StartingCash = math.Inf(1) },
		"negative loan cap": func(p *Params) { p.LoanCap = -1 },
		"infinite loan cap": func(p *Params) { p.LoanCap = math.Inf(1) },
		"nan loan cap":      func(p *Params) { p.LoanCap = math.NaN() },
		"nan interest":      func(p *Params) { p.InterestRate = math.NaN() },
		"infinite interest": func(p *Params) { p.InterestRate = math.Inf(1) },
		"infinite riskfree": func(p *Params) { p.RiskFreeRate = math.Inf(-1) },
		"no rounds":         func(p *Params) { p.MaxRounds = 0 },
		"late leverage":     func(p *Params) { p.LeverageRound = 5 },
		"unknown mode":      func(p *Params) { p.Mode = "weekly" },
	}
	for name, mutate := range bad {
		p := DefaultParams()
		mutate(&p)
		if err := p.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestAccountBuy(t *testing.T) {
	a := newAccount("bob", "pw", StartingCash, []string{"EQ", "BOND"})

	if err := a.buy("EQ", 40_000); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if a.Cash != 60_000 || a.Holdings["EQ"] != 40_000 || a.NetWorth != StartingCash {
		t.Fatalf("after buy cash=%v eq=%v net=%v", a.Cash, a.Holdings["EQ"], a.NetWorth)
	}

	rejects := []struct {
		asset  string
		amount float64
		want   error
	}{
		{asset: "GOLD", amount: 1, want: ErrUnknownAsset},
		{asset: "EQ", amount: 0, want: ErrInvalidAmount},
		{asset: "EQ", amount: -5, want: ErrInvalidAmount},
		{asset: "EQ", amount: math.Inf(1), want: ErrInvalidAmount},
		{asset: "BOND", amount: 60_000.01, want: ErrInsufficientFunds},
	}
	for _, tc := range rejects {
		if err := a.buy(tc.asset, tc.amount); !errors.Is(err, tc.want) {
			t.Fatalf("buy %s %v: got %v want %v", tc.asset, tc.amount, err, tc.want)
		}
	}

	if err := a.buy("BOND", 60_000); err != nil {
		t.Fatalf("buy remaining cash: %v", err)
	}
	if a.Cash != 0 {
		t.Fatalf("cash=%v want 0", a.Cash)
	}

	a.Locked = true
	if err := a.buy("EQ", 1); !errors.Is(err, ErrDecisionLocked) {
		t.Fatalf("locked buy: got %v", err)
	}
}

func TestAccountBorrow(t *testing.T) {
	a := newAccount("bob", "pw", StartingCash, []string{"EQ"})

	if err := a.borrow(150_000, DefaultLoanCap); err != nil {
		t.Fatalf("borrow: %v", err)
	}
	if a.Cash != 250_000 || a.Loan != 150_000 {
		t.Fatalf("cash=%v loan=%v", a.Cash, a.Loan)
	}
	if err := a.borrow(50_000.01, DefaultLoanCap); !errors.Is(err, ErrLoanCapExceeded) {
		t.Fatalf("over cap: got %v", err)
	}
	if err := a.borrow(50_000, DefaultLoanCap); err != nil {
		t.Fatalf("borrow to cap: %v", err)
	}
	if a.Loan != DefaultLoanCap {
		t.Fatalf("loan=%v want %v", a.Loan, DefaultLoanCap)
	}
	if err := a.borrow(0, DefaultLoanCap); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero borrow: got %v", err)
	}
}

func TestAccountConservation(t *testing.T) {
	a := newAccount("carol", "pw", StartingCash, []string{"EQ", "BOND"})
	steps := []func() error{
		func() error { return a.buy("EQ", 30_000) },
		func() error { return a.borrow(20_000, DefaultLoanCap) },
		func() error { return a.buy("BOND", 70_000) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got := a.Cash + a.Invested() - a.Loan; math.Abs(got-StartingCash) > 1e-9 {
			t.Fatalf("step %d: equity=%v want %v", i, got, StartingCash)
		}
	}
}

func TestAccountCloneIsDeep(t *testing.T) {
	a := newAccount("dan", "pw", StartingCash, []string{"EQ"})
	a.History[1] = RoundResult{Round: 1, Path: []float64{1, 2}}

	c := a.clone()
	c.Holdings["EQ"] = 99
	c.History[1].Path[0] = 42

	if a.Holdings["EQ"] != 0 || a.History[1].Path[0] != 1 {
		t.Fatalf("clone shares state with original: %+v", a)
	}
}

func TestPlayerViewWeightsAfterLosingSettlement(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetReturns(flatTable(t, testAssets, -7).Rows); err != nil {
		t.Fatalf("set returns: %v", err)
	}
	register(t, s, "alice")
	if _, err := s.Buy("alice", "EQ", StartingCash); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := s.Settle(); err != nil {
		t.Fatalf("settle: %v", err)
	}

	a, err := s.Account("alice")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	v := NewPlayerView(a, s.Assets())
	if want := StartingCash * math.Pow(0.93, 10); math.Abs(v.NetWorth-want) > 0.01 {
		t.Fatalf("net worth=%.2f want %.2f", v.NetWorth, want)
	}
	var total float64
	for _, h := range v.Holdings {
		if h.Weight < 0 || h.Weight > 100 {
			t.Fatalf("%s weight=%.2f outside 0..100", h.Asset, h.Weight)
		}
		total += h.Weight
	}
	if v.Holdings[0].Asset != "EQ" || math.Abs(v.Holdings[0].Weight-100) > 1e-9 {
		t.Fatalf("EQ holding=%+v want weight 100", v.Holdings[0])
	}
	if math.Abs(total-100) > 1e-9 {
		t.Fatalf("weights sum to %.4f", total)
	}
}

func TestPlayerViewWeightsIncludeCash(t *testing.T) {
	a := newAccount("erin", "pw", StartingCash, []string{"EQ", "BOND"})
	if err := a.buy("BOND", 25_000); err != nil {
		t.Fatalf("buy: %v", err)
	}
	v := NewPlayerView(a.clone(), []string{"EQ", "BOND"})
	tests := []struct {
		asset  string
		weight float64
	}{
		{asset: "EQ", weight: 0},
		{asset: "BOND", weight: 25},
	}
	for i, tc := range tests {
		h := v.Holdings[i]
		if h.Asset != tc.asset || math.Abs(h.Weight-tc.weight) > 1e-9 {
			t.Fatalf("holding %d=%+v want %s at %.0f%%", i, h, tc.asset, tc.weight)
		}
	}
}
