package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wealthsim/internal/game"
	"wealthsim/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAPIFromEnvDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("WEALTHSIM_API_ADDR", "")
	t.Setenv("WEALTHSIM_SETTLEMENT_MODE", "")

	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "8888", cfg.Passphrase)
	assert.Equal(t, "http://localhost:8080", cfg.PublicURL)
	assert.Equal(t, game.DefaultParams(), cfg.Params)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
}

func TestLoadAPIFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("WEALTHSIM_INTEREST_RATE", "0.05")
	t.Setenv("WEALTHSIM_LOAN_CAP", "not-a-number")
	t.Setenv("WEALTHSIM_SETTLEMENT_MODE", "single")
	t.Setenv("WEALTHSIM_CARRY_HOLDINGS", "true")
	t.Setenv("WEALTHSIM_LOG_LEVEL", "debug")

	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 0.05, cfg.Params.InterestRate)
	assert.Equal(t, game.DefaultLoanCap, cfg.Params.LoanCap)
	assert.Equal(t, game.SettleSingle, cfg.Params.Mode)
	assert.True(t, cfg.Params.CarryHoldings)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadAPIFromEnvRejects(t *testing.T) {
	t.Setenv("WEALTHSIM_SETTLEMENT_MODE", "hourly")
	_, err := LoadAPIFromEnv()
	assert.Error(t, err)

	t.Setenv("WEALTHSIM_SETTLEMENT_MODE", "")
	t.Setenv("DISCORD_BOT_TOKEN", "abc")
	t.Setenv("DISCORD_CHANNEL_ID", "")
	_, err = LoadAPIFromEnv()
	assert.Error(t, err)
}

func TestLoadCLIFromEnv(t *testing.T) {
	t.Setenv("WSK_API_BASE_URL", "http://class.local:8080/")
	t.Setenv("WSK_FACILITATOR_PASSPHRASE", " 1234 ")
	cfg := LoadCLIFromEnv()
	assert.Equal(t, "http://class.local:8080", cfg.APIBaseURL)
	assert.Equal(t, "1234", cfg.Passphrase)
}

const presetYAML = `
params:
  interest_rate: 0.08
  settlement_mode: single
assets: [EQ, BOND]
returns:
  - [10, 2]
  - [-5, 2]
  - [12, 2]
  - [3, 2]
  - [8, 2]
  - [-2, 2]
  - [15, 2]
  - [4, 2]
  - [6, 2]
  - [1, 2]
`

func TestLoadGameFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml")
	require.NoError(t, os.WriteFile(path, []byte(presetYAML), 0o644))

	gf, err := LoadGameFile(path, game.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 0.08, gf.Params.InterestRate)
	assert.Equal(t, game.SettleSingle, gf.Params.Mode)
	assert.Equal(t, game.StartingCash, gf.Params.StartingCash)

	tbl, err := gf.Table()
	require.NoError(t, err)
	assert.Equal(t, []string{"EQ", "BOND"}, tbl.Assets)
	assert.Equal(t, []float64{10, 2}, tbl.Rows[0])
}

func TestLoadGameFileRejectsShortTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml")
	require.NoError(t, os.WriteFile(path, []byte("assets: [EQ]\nreturns:\n  - [1]\n"), 0o644))
	_, err := LoadGameFile(path, game.DefaultParams())
	assert.ErrorIs(t, err, market.ErrInvalidTable)
}

func TestGameFileSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	tbl, err := (&GameFile{Seed: 7}).Table()
	require.NoError(t, err)
	assert.Equal(t, market.DefaultAssets, tbl.Assets)

	gf := &GameFile{Params: game.DefaultParams(), Assets: tbl.Assets, Returns: tbl.Rows}
	require.NoError(t, gf.SaveToFile(path))

	loaded, err := LoadGameFile(path, game.Params{})
	require.NoError(t, err)
	assert.Equal(t, gf.Returns, loaded.Returns)
	assert.Equal(t, gf.Params, loaded.Params)
}
