package game

import (
	"math"
	"testing"
	"time"

	"wealthsim/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAssets = []string{"EQ", "BOND", "CASH"}

func newTestStore(t *testing.T, mutate ...func(*Params)) *Store {
	t.Helper()
	p := DefaultParams()
	for _, m := range mutate {
		m(&p)
	}
	s, err := NewStore(p, flatTable(t, testAssets, 10))
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return s
}

func register(t *testing.T, s *Store, name string) {
	t.Helper()
	_, created, err := s.RegisterOrLogin(name, "pw")
	require.NoError(t, err)
	require.True(t, created)
}

// playRound settles the current round and opens the next one.
func playRound(t *testing.T, s *Store) {
	t.Helper()
	_, err := s.Settle()
	require.NoError(t, err)
	_, err = s.Advance()
	require.NoError(t, err)
}

func TestNewStoreRejectsBadInput(t *testing.T) {
	_, err := NewStore(Params{}, flatTable(t, testAssets, 0))
	assert.Error(t, err)

	_, err = NewStore(DefaultParams(), market.ReturnTable{Assets: []string{"EQ"}})
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestRegisterOrLogin(t *testing.T) {
	s := newTestStore(t)

	a, created, err := s.RegisterOrLogin("  alice ", "secret")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice", a.Name)
	assert.Equal(t, StartingCash, a.Cash)
	assert.Len(t, a.Holdings, len(testAssets))

	_, created, err = s.RegisterOrLogin("alice", "secret")
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = s.RegisterOrLogin("alice", "wrong")
	assert.ErrorIs(t, err, ErrAuthentication)

	_, _, err = s.RegisterOrLogin(" ", "secret")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestRegisterRejectsTakenName(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Register("alice", "one")
	require.NoError(t, err)

	_, created, err := s.Register("alice", "one")
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = s.Register("alice", "two")
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestDecisionsNeedKnownPlayer(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Buy("ghost", "EQ", 1)
	assert.ErrorIs(t, err, ErrPlayerNotFound)
	_, err = s.Account("ghost")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestBorrowWaitsForLeverageRound(t *testing.T) {
	s := newTestStore(t)
	register(t, s, "alice")

	_, err := s.Borrow("alice", 10_000)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	playRound(t, s)
	playRound(t, s)
	require.Equal(t, 3, s.Round().Round)

	a, err := s.Borrow("alice", 10_000)
	require.NoError(t, err)
	assert.Equal(t, 10_000.0, a.Loan)
	assert.Equal(t, 110_000.0, a.Cash)
}

func TestLockBlocksTrades(t *testing.T) {
	s := newTestStore(t)
	register(t, s, "alice")

	a, err := s.SetLocked("alice", true)
	require.NoError(t, err)
	assert.True(t, a.Locked)

	_, err = s.Buy("alice", "EQ", 1)
	assert.ErrorIs(t, err, ErrDecisionLocked)

	_, err = s.SetLocked("alice", false)
	require.NoError(t, err)
	_, err = s.Buy("alice", "EQ", 1)
	assert.NoError(t, err)
}

func TestSettleWritesHistoryOnce(t *testing.T) {
	s := newTestStore(t)
	register(t, s, "alice")
	register(t, s, "bob")
	_, err := s.Buy("alice", "EQ", 100_000)
	require.NoError(t, err)

	report, err := s.Settle()
	require.NoError(t, err)
	assert.Equal(t, 1, report.Round)
	assert.Equal(t, SettleYearly, report.Mode)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "alice", report.Results[0].Name)
	assert.InDelta(t, 259_374.25, report.Results[0].Result.NetWorth, 0.01)
	assert.Equal(t, StartingCash, report.Results[1].Result.NetWorth)

	alice, err := s.Account("alice")
	require.NoError(t, err)
	before := alice.History

	_, err = s.Settle()
	assert.ErrorIs(t, err, ErrAlreadySettled)

	alice, err = s.Account("alice")
	require.NoError(t, err)
	assert.Equal(t, before, alice.History)

	_, err = s.Buy("bob", "EQ", 1)
	assert.ErrorIs(t, err, ErrAlreadySettled)
}

func TestSettleWithoutPlayers(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Settle()
	assert.ErrorIs(t, err, ErrNothingToSettle)
	assert.False(t, s.Round().Settled)
}

func TestAdvanceLifecycle(t *testing.T) {
	s := newTestStore(t)
	register(t, s, "alice")

	_, err := s.Advance()
	assert.ErrorIs(t, err, ErrNotSettled)

	_, err = s.Buy("alice", "EQ", 50_000)
	require.NoError(t, err)
	playRound(t, s)

	a, err := s.Account("alice")
	require.NoError(t, err)
	assert.Equal(t, StartingCash, a.Cash)
	assert.Zero(t, a.Invested())
	assert.False(t, a.Locked)
	assert.Contains(t, a.History, 1)

	playRound(t, s)
	playRound(t, s)
	require.Equal(t, 4, s.Round().Round)

	_, err = s.Advance()
	assert.ErrorIs(t, err, ErrGameComplete)

	_, err = s.Settle()
	require.NoError(t, err)
	assert.True(t, s.Round().Terminal())

	_, err = s.Advance()
	assert.ErrorIs(t, err, ErrGameComplete)
}

func TestCarryHoldingsAcrossRounds(t *testing.T) {
	s := newTestStore(t, func(p *Params) {
		p.CarryHoldings = true
		p.LeverageRound = 1
	})
	register(t, s, "alice")
	_, err := s.Borrow("alice", 10_000)
	require.NoError(t, err)
	_, err = s.Buy("alice", "EQ", 110_000)
	require.NoError(t, err)
	_, err = s.SetLocked("alice", true)
	require.NoError(t, err)

	playRound(t, s)

	a, err := s.Account("alice")
	require.NoError(t, err)
	assert.InDelta(t, 110_000*2.5937424601, a.Holdings["EQ"], 0.01)
	assert.InDelta(t, -11_000, a.Cash, 1e-9)
	assert.Zero(t, a.Loan)
	assert.False(t, a.Locked)
	assert.InDelta(t, a.History[1].NetWorth, a.NetWorth, 1e-6)
}

func TestResetKeepsTable(t *testing.T) {
	s := newTestStore(t)
	register(t, s, "alice")
	require.NoError(t, s.RenameAssets([]string{"A", "B", "C"}))
	playRound(t, s)

	r := s.Reset()
	assert.Equal(t, 1, r.Round)
	assert.False(t, r.Settled)
	assert.Empty(t, s.Players())
	assert.Equal(t, []string{"A", "B", "C"}, s.Assets())
}

func TestRenameAssetsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	register(t, s, "alice")
	_, err := s.Buy("alice", "BOND", 12_345)
	require.NoError(t, err)
	before := s.Table()

	require.NoError(t, s.RenameAssets([]string{"X", "Y", "Z"}))
	a, err := s.Account("alice")
	require.NoError(t, err)
	assert.Equal(t, 12_345.0, a.Holdings["Y"])
	assert.NotContains(t, a.Holdings, "BOND")

	require.NoError(t, s.RenameAssets(testAssets))
	assert.Equal(t, before, s.Table())
	a, err = s.Account("alice")
	require.NoError(t, err)
	assert.Equal(t, 12_345.0, a.Holdings["BOND"])

	assert.ErrorIs(t, s.RenameAssets([]string{"X", "X", "Z"}), ErrInvalidTable)
	assert.ErrorIs(t, s.RenameAssets([]string{"X"}), ErrInvalidTable)
}

func TestAddAndRemoveAsset(t *testing.T) {
	s := newTestStore(t)
	register(t, s, "alice")
	_, err := s.Buy("alice", "EQ", 30_000)
	require.NoError(t, err)

	require.NoError(t, s.AddAsset("GOLD"))
	a, err := s.Account("alice")
	require.NoError(t, err)
	assert.Contains(t, a.Holdings, "GOLD")
	col, err := s.Table().Column("GOLD")
	require.NoError(t, err)
	assert.Equal(t, make([]float64, market.Periods), col)

	require.NoError(t, s.RemoveAsset("EQ"))
	a, err = s.Account("alice")
	require.NoError(t, err)
	assert.Equal(t, StartingCash, a.Cash)
	assert.Equal(t, StartingCash, a.NetWorth)
	assert.NotContains(t, a.Holdings, "EQ")

	assert.ErrorIs(t, s.RemoveAsset("EQ"), ErrUnknownAsset)
	assert.ErrorIs(t, s.AddAsset("BOND"), ErrInvalidTable)
}

func TestRemoveAssetKeepsSettledNetWorth(t *testing.T) {
	for _, carry := range []bool{false, true} {
		s := newTestStore(t, func(p *Params) { p.CarryHoldings = carry })
		register(t, s, "alice")
		if _, err := s.Buy("alice", "EQ", StartingCash); err != nil {
			t.Fatalf("carry=%v buy: %v", carry, err)
		}
		if _, err := s.Settle(); err != nil {
			t.Fatalf("carry=%v settle: %v", carry, err)
		}
		before := s.Players()[0].NetWorth
		if math.Abs(before-259_374.25) > 0.01 {
			t.Fatalf("carry=%v settled net worth=%.2f", carry, before)
		}

		for _, asset := range []string{"BOND", "EQ"} {
			if err := s.RemoveAsset(asset); err != nil {
				t.Fatalf("carry=%v remove %s: %v", carry, asset, err)
			}
			if !s.Round().Settled {
				t.Fatalf("carry=%v remove %s reopened the round", carry, asset)
			}
			rows := RankPlayers(s.Players(), StartingCash)
			if math.Abs(rows[0].NetWorth-before) > 0.01 {
				t.Fatalf("carry=%v remove %s: leaderboard net worth=%.2f want %.2f", carry, asset, rows[0].NetWorth, before)
			}
		}
	}
}

func TestSetReturns(t *testing.T) {
	s := newTestStore(t)
	rows := flatTable(t, testAssets, -3).Rows
	require.NoError(t, s.SetReturns(rows))
	assert.Equal(t, rows, s.Table().Rows)

	assert.ErrorIs(t, s.SetReturns(rows[:3]), ErrInvalidTable)
}

func TestSnapshotRestore(t *testing.T) {
	s := newTestStore(t)
	register(t, s, "alice")
	_, err := s.Buy("alice", "EQ", 1_000)
	require.NoError(t, err)
	_, err = s.Settle()
	require.NoError(t, err)
	snap := s.Snapshot()
	assert.Positive(t, snap.Version)

	other := newTestStore(t)
	require.NoError(t, other.Restore(snap))
	assert.Equal(t, snap.Round, other.Round())
	assert.Equal(t, snap.Players, other.Players())
	assert.Equal(t, snap.Version, other.Snapshot().Version)

	broken := snap
	broken.Players = []Account{{Name: "x", Holdings: map[string]float64{"EQ": 1}}}
	assert.ErrorIs(t, other.Restore(broken), ErrInvalidTable)
}
