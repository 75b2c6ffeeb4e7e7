package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"wealthsim/internal/game"
)

type APIConfig struct {
	Addr           string
	PublicURL      string
	Passphrase     string
	DatabaseURL    string
	JournalPath    string
	DiscordToken   string
	DiscordChannel string
	GameFile       string
	SessionTTL     time.Duration
	LogLevel       slog.Level
	Params         game.Params
}

type CLIConfig struct {
	APIBaseURL string
	// Passphrase is optional; admin commands prompt for it when empty.
	Passphrase string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("WEALTHSIM_API_ADDR", ":8080")
	}

	mode, err := game.ParseSettlementMode(os.Getenv("WEALTHSIM_SETTLEMENT_MODE"))
	if err != nil {
		return APIConfig{}, err
	}
	params := game.DefaultParams()
	params.InterestRate = envFloatDefault("WEALTHSIM_INTEREST_RATE", game.DefaultInterest)
	params.RiskFreeRate = envFloatDefault("WEALTHSIM_RISK_FREE_RATE", game.DefaultRiskFree)
	params.LoanCap = envFloatDefault("WEALTHSIM_LOAN_CAP", game.DefaultLoanCap)
	params.Mode = mode
	params.CarryHoldings = envBoolDefault("WEALTHSIM_CARRY_HOLDINGS", false)

	cfg := APIConfig{
		Addr:           addr,
		PublicURL:      strings.TrimRight(envDefault("WEALTHSIM_PUBLIC_URL", "http://localhost"+addr), "/"),
		Passphrase:     envDefault("WEALTHSIM_FACILITATOR_PASSPHRASE", "8888"),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JournalPath:    strings.TrimSpace(os.Getenv("WEALTHSIM_JOURNAL_PATH")),
		DiscordToken:   strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		DiscordChannel: strings.TrimSpace(os.Getenv("DISCORD_CHANNEL_ID")),
		GameFile:       strings.TrimSpace(os.Getenv("WEALTHSIM_GAME_FILE")),
		SessionTTL:     envDurationDefault("WEALTHSIM_SESSION_TTL", 12*time.Hour),
		LogLevel:       envLevelDefault("WEALTHSIM_LOG_LEVEL", slog.LevelInfo),
		Params:         params,
	}
	if (cfg.DiscordToken == "") != (cfg.DiscordChannel == "") {
		return cfg, fmt.Errorf("DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	if err := cfg.Params.Validate(); err != nil {
		return cfg, fmt.Errorf("game parameters: %w", err)
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("WSK_API_BASE_URL", "http://localhost:8080"), "/"),
		Passphrase: strings.TrimSpace(os.Getenv("WSK_FACILITATOR_PASSPHRASE")),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envLevelDefault(key string, fallback slog.Level) slog.Level {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return fallback
	}
	return lvl
}
