package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"wealthsim/internal/api"
	"wealthsim/internal/auth"
	"wealthsim/internal/config"
	"wealthsim/internal/game"
	"wealthsim/internal/market"
	"wealthsim/internal/syncq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassphrase = "8888"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	rows := make([][]float64, market.Periods)
	for i := range rows {
		rows[i] = []float64{10, 2}
	}
	tbl, err := market.NewReturnTable([]string{"EQ", "BOND"}, rows)
	require.NoError(t, err)
	store, err := game.NewStore(game.DefaultParams(), tbl)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := api.New(config.APIConfig{Passphrase: testPassphrase}, logger, auth.NewSessions(0), game.NewService(store, logger))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return NewClient(ts.URL + "/")
}

func TestClientStudentFlow(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	in, err := c.Login(ctx, "ana", "pw")
	require.NoError(t, err)
	require.NotEmpty(t, in.Session.AccessToken)
	assert.Equal(t, 100000.0, in.Player.Cash)
	token := in.Session.AccessToken

	out, err := c.Buy(ctx, token, "EQ", 40000, "k1")
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
	assert.Equal(t, 1, out.Round)
	assert.Equal(t, 60000.0, out.Player.Cash)

	again, err := c.Buy(ctx, token, "EQ", 40000, "k1")
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, 60000.0, again.Player.Cash)

	locked, err := c.Lock(ctx, token, "k2")
	require.NoError(t, err)
	assert.True(t, locked.Player.Locked)
	unlocked, err := c.Unlock(ctx, token, "k3")
	require.NoError(t, err)
	assert.False(t, unlocked.Player.Locked)

	me, err := c.Me(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "ana", me.Name)

	state, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Round)
	assert.Equal(t, []string{"EQ", "BOND"}, state.Assets)

	view, err := c.Market(ctx)
	require.NoError(t, err)
	require.Len(t, view.Assets, 2)
	assert.NotNil(t, view.Assets[0].Mean)
	assert.Nil(t, view.Assets[0].CAGR)

	board, err := c.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board.Players, 1)
	assert.Equal(t, int64(1), board.Players[0].Rank)

	require.NoError(t, c.Logout(ctx, token))
	_, err = c.Me(ctx, token)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Contains(t, err.Error(), "api status 401")
}

func TestClientBorrowBeforeLeverageRound(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	in, err := c.Register(ctx, "ben", "pw")
	require.NoError(t, err)

	_, err = c.Borrow(ctx, in.Session.AccessToken, 1000, "")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Contains(t, se.Message, "borrowing unlocks in round 3")
}

func TestClientSyncReplay(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	in, err := c.Login(ctx, "cy", "pw")
	require.NoError(t, err)
	assert.Equal(t, 1, in.Round)

	cmds := []syncq.Command{
		{Method: http.MethodPost, Path: "/v1/me/buy", Body: BuyBody("BOND", 25000), IdempotencyKey: "q1"},
		{Method: http.MethodPost, Path: "/v1/me/buy", Body: BuyBody("BOND", 25000), IdempotencyKey: "q1"},
		{Method: http.MethodPost, Path: "/v1/me/borrow", Body: BorrowBody(500), IdempotencyKey: "q2"},
	}
	results, err := c.SyncReplay(ctx, in.Session.AccessToken, cmds)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.True(t, results[1].Duplicate)
	assert.False(t, results[2].OK)
	assert.NotEmpty(t, results[2].Error)

	me, err := c.Me(ctx, in.Session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, 75000.0, me.Cash)
}

func TestClientFacilitatorFlow(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, err := c.Metrics(ctx, "nope")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Status)

	m, err := c.Metrics(ctx, testPassphrase)
	require.NoError(t, err)
	require.Len(t, m.Metrics.Stats, 2)
	require.NotNil(t, m.Metrics.Stats[0].CAGR)
	assert.InDelta(t, 10.0, *m.Metrics.Stats[0].CAGR, 0.01)

	assets, err := c.Rename(ctx, testPassphrase, []string{"Stocks", "Bonds"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Stocks", "Bonds"}, assets)

	assets, err = c.AddAsset(ctx, testPassphrase, "Gold")
	require.NoError(t, err)
	assert.Equal(t, []string{"Stocks", "Bonds", "Gold"}, assets)
	assets, err = c.RemoveAsset(ctx, testPassphrase, "Gold")
	require.NoError(t, err)
	assert.Equal(t, []string{"Stocks", "Bonds"}, assets)

	tbl, err := c.Randomize(ctx, testPassphrase, 42)
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, market.Periods)
	same, err := c.Returns(ctx, testPassphrase)
	require.NoError(t, err)
	assert.Equal(t, tbl.Rows, same.Rows)

	flat := make([][]float64, market.Periods)
	for i := range flat {
		flat[i] = []float64{5, 1}
	}
	tbl, err = c.SetReturns(ctx, testPassphrase, flat)
	require.NoError(t, err)
	assert.Equal(t, flat, tbl.Rows)

	_, err = c.Login(ctx, "dee", "pw")
	require.NoError(t, err)
	report, err := c.Settle(ctx, testPassphrase)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Round)
	require.Len(t, report.Results, 1)

	png, err := c.CAGRChart(ctx, testPassphrase)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	adv, err := c.Advance(ctx, testPassphrase)
	require.NoError(t, err)
	assert.Equal(t, 2, adv.Round.Round)

	_, err = c.Journal(ctx, testPassphrase, 1)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Status)

	round, err := c.Reset(ctx, testPassphrase)
	require.NoError(t, err)
	assert.Equal(t, 1, round.Round)
}
