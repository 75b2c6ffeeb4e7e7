package game

import (
	"sort"
	"time"
)

type StateView struct {
	Round           int      `json:"round"`
	Settled         bool     `json:"settled"`
	Phase           Phase    `json:"phase"`
	MaxRounds       int      `json:"max_rounds"`
	LeverageRound   int      `json:"leverage_round"`
	LeverageEnabled bool     `json:"leverage_enabled"`
	Complete        bool     `json:"complete"`
	Assets          []string `json:"assets"`
	Players         int      `json:"players"`
}

type HoldingView struct {
	Asset  string  `json:"asset"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

// PlayerView is what a player sees about their own account. History only
// contains settled rounds.
type PlayerView struct {
	Name     string        `json:"name"`
	Cash     float64       `json:"cash"`
	Loan     float64       `json:"loan"`
	NetWorth float64       `json:"net_worth"`
	Invested float64       `json:"invested"`
	Locked   bool          `json:"locked"`
	Holdings []HoldingView `json:"holdings"`
	History  []RoundResult `json:"history"`
}

type LeaderboardRow struct {
	Rank     int64   `json:"rank"`
	Name     string  `json:"name"`
	NetWorth float64 `json:"net_worth"`
	Loan     float64 `json:"loan"`
	Multiple float64 `json:"multiple"`
	Locked   bool    `json:"locked"`
}

// JournalEntry is one persisted settlement line.
type JournalEntry struct {
	ID           string    `json:"id"`
	Round        int       `json:"round"`
	Player       string    `json:"player"`
	NetWorth     float64   `json:"net_worth"`
	Multiple     float64   `json:"multiple"`
	Volatility   float64   `json:"volatility"`
	RiskAdjusted float64   `json:"risk_adjusted"`
	Loan         float64   `json:"loan"`
	Cash         float64   `json:"cash"`
	SettledAt    time.Time `json:"settled_at"`
}

// NewPlayerView orders holdings by the asset list and history by round.
// Weights are shares of cash plus holdings, the position the player chose.
// After a reset-per-round settlement NetWorth is the terminal value while the
// holdings are still the committed amounts, so the two are not mixed.
func NewPlayerView(a Account, assets []string) PlayerView {
	v := PlayerView{
		Name:     a.Name,
		Cash:     a.Cash,
		Loan:     a.Loan,
		NetWorth: a.NetWorth,
		Invested: a.Invested(),
		Locked:   a.Locked,
		Holdings: make([]HoldingView, 0, len(assets)),
		History:  make([]RoundResult, 0, len(a.History)),
	}
	position := v.Cash + v.Invested
	for _, asset := range assets {
		h := HoldingView{Asset: asset, Value: a.Holdings[asset]}
		if position > 0 {
			h.Weight = h.Value / position * 100
		}
		v.Holdings = append(v.Holdings, h)
	}
	for _, r := range a.History {
		v.History = append(v.History, r)
	}
	sort.Slice(v.History, func(i, j int) bool { return v.History[i].Round < v.History[j].Round })
	return v
}

// RankPlayers orders by net worth descending, then name.
func RankPlayers(players []Account, startingCash float64) []LeaderboardRow {
	rows := make([]LeaderboardRow, 0, len(players))
	for _, p := range players {
		row := LeaderboardRow{Name: p.Name, NetWorth: p.NetWorth, Loan: p.Loan, Locked: p.Locked}
		if startingCash != 0 {
			row.Multiple = p.NetWorth / startingCash
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].NetWorth != rows[j].NetWorth {
			return rows[i].NetWorth > rows[j].NetWorth
		}
		return rows[i].Name < rows[j].Name
	})
	for i := range rows {
		rows[i].Rank = int64(i + 1)
	}
	return rows
}
