package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"wealthsim/internal/auth"
	"wealthsim/internal/disclosure"
	"wealthsim/internal/game"
	"wealthsim/internal/market"
	"wealthsim/internal/syncq"
)

const passphraseHeader = "X-Facilitator-Passphrase"

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// StatusError is returned for any non-2xx answer from the API.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

type SignInResponse struct {
	Session auth.Session    `json:"session"`
	Player  game.PlayerView `json:"player"`
	Round   int             `json:"round"`
}

type DecisionResponse struct {
	Player    game.PlayerView `json:"player"`
	Duplicate bool            `json:"duplicate"`
	Round     int             `json:"round"`
}

type LeaderboardResponse struct {
	Round   game.RoundState       `json:"round"`
	Players []game.LeaderboardRow `json:"players"`
}

type AssetStat struct {
	Asset  string   `json:"asset"`
	Mean   float64  `json:"mean"`
	StdDev float64  `json:"stdev"`
	CAGR   *float64 `json:"cagr"`
}

type MetricsResponse struct {
	Round   game.RoundState         `json:"round"`
	Visible disclosure.Capabilities `json:"visible"`
	Metrics struct {
		Assets      []string    `json:"assets"`
		Stats       []AssetStat `json:"stats"`
		Correlation [][]float64 `json:"correlation"`
	} `json:"metrics"`
}

type SettlementResponse struct {
	Round     int                 `json:"round"`
	Mode      game.SettlementMode `json:"mode"`
	Results   []game.PlayerResult `json:"results"`
	SettledAt time.Time           `json:"settled_at"`
}

type AdvanceResponse struct {
	Round   game.RoundState         `json:"round"`
	Visible disclosure.Capabilities `json:"visible"`
}

type ReplayResult struct {
	IdempotencyKey string `json:"idempotency_key"`
	Path           string `json:"path"`
	OK             bool   `json:"ok"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (c *Client) Register(ctx context.Context, name, password string) (SignInResponse, error) {
	var out SignInResponse
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/players/register", "", map[string]any{
		"name":     name,
		"password": password,
	}, &out, "")
	return out, err
}

// Login signs in, registering the name on first use.
func (c *Client) Login(ctx context.Context, name, password string) (SignInResponse, error) {
	var out SignInResponse
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/players/login", "", map[string]any{
		"name":     name,
		"password": password,
	}, &out, "")
	return out, err
}

func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.jsonRequest(ctx, http.MethodPost, "/v1/me/logout", accessToken, map[string]any{}, nil, "")
}

func (c *Client) State(ctx context.Context) (game.StateView, error) {
	var out game.StateView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/state", "", nil, &out, "")
	return out, err
}

func (c *Client) Market(ctx context.Context) (disclosure.View, error) {
	var out disclosure.View
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/market", "", nil, &out, "")
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context) (LeaderboardResponse, error) {
	var out LeaderboardResponse
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/leaderboard", "", nil, &out, "")
	return out, err
}

func (c *Client) Me(ctx context.Context, accessToken string) (game.PlayerView, error) {
	var out game.PlayerView
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/me", accessToken, nil, &out, "")
	return out, err
}

func (c *Client) Buy(ctx context.Context, accessToken, asset string, amount float64, idem string) (DecisionResponse, error) {
	var out DecisionResponse
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/me/buy", accessToken, BuyBody(asset, amount), &out, idem)
	return out, err
}

func (c *Client) Borrow(ctx context.Context, accessToken string, amount float64, idem string) (DecisionResponse, error) {
	var out DecisionResponse
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/me/borrow", accessToken, BorrowBody(amount), &out, idem)
	return out, err
}

func (c *Client) Lock(ctx context.Context, accessToken, idem string) (DecisionResponse, error) {
	var out DecisionResponse
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/me/lock", accessToken, map[string]any{}, &out, idem)
	return out, err
}

func (c *Client) Unlock(ctx context.Context, accessToken, idem string) (DecisionResponse, error) {
	var out DecisionResponse
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/me/unlock", accessToken, map[string]any{}, &out, idem)
	return out, err
}

func (c *Client) MyChart(ctx context.Context, accessToken string) ([]byte, error) {
	return c.pngRequest(ctx, "/v1/me/chart.png", bearer(accessToken))
}

func (c *Client) SyncReplay(ctx context.Context, accessToken string, commands []syncq.Command) ([]ReplayResult, error) {
	var out struct {
		Results []ReplayResult `json:"results"`
	}
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/me/sync/replay", accessToken, map[string]any{
		"commands": commands,
	}, &out, "")
	return out.Results, err
}

// BuyBody and BorrowBody build request bodies shared by the live call and the
// offline queue.
func BuyBody(asset string, amount float64) map[string]any {
	return map[string]any{"asset": asset, "amount": amount}
}

func BorrowBody(amount float64) map[string]any {
	return map[string]any{"amount": amount}
}

func (c *Client) Metrics(ctx context.Context, passphrase string) (MetricsResponse, error) {
	var out MetricsResponse
	err := c.adminRequest(ctx, http.MethodGet, "/v1/admin/metrics", passphrase, nil, &out)
	return out, err
}

func (c *Client) Returns(ctx context.Context, passphrase string) (market.ReturnTable, error) {
	var out market.ReturnTable
	err := c.adminRequest(ctx, http.MethodGet, "/v1/admin/returns", passphrase, nil, &out)
	return out, err
}

func (c *Client) SetReturns(ctx context.Context, passphrase string, rows [][]float64) (market.ReturnTable, error) {
	var out market.ReturnTable
	err := c.adminRequest(ctx, http.MethodPut, "/v1/admin/returns", passphrase, map[string]any{"returns": rows}, &out)
	return out, err
}

func (c *Client) Randomize(ctx context.Context, passphrase string, seed int64) (market.ReturnTable, error) {
	var out market.ReturnTable
	err := c.adminRequest(ctx, http.MethodPost, "/v1/admin/returns/randomize", passphrase, map[string]any{"seed": seed}, &out)
	return out, err
}

func (c *Client) Rename(ctx context.Context, passphrase string, names []string) ([]string, error) {
	var out struct {
		Assets []string `json:"assets"`
	}
	err := c.adminRequest(ctx, http.MethodPost, "/v1/admin/assets/rename", passphrase, map[string]any{"names": names}, &out)
	return out.Assets, err
}

func (c *Client) AddAsset(ctx context.Context, passphrase, name string) ([]string, error) {
	var out struct {
		Assets []string `json:"assets"`
	}
	err := c.adminRequest(ctx, http.MethodPost, "/v1/admin/assets", passphrase, map[string]any{"name": name}, &out)
	return out.Assets, err
}

func (c *Client) RemoveAsset(ctx context.Context, passphrase, name string) ([]string, error) {
	var out struct {
		Assets []string `json:"assets"`
	}
	err := c.adminRequest(ctx, http.MethodDelete, "/v1/admin/assets/"+url.PathEscape(name), passphrase, nil, &out)
	return out.Assets, err
}

func (c *Client) Settle(ctx context.Context, passphrase string) (SettlementResponse, error) {
	var out SettlementResponse
	err := c.adminRequest(ctx, http.MethodPost, "/v1/admin/settle", passphrase, map[string]any{}, &out)
	return out, err
}

func (c *Client) Advance(ctx context.Context, passphrase string) (AdvanceResponse, error) {
	var out AdvanceResponse
	err := c.adminRequest(ctx, http.MethodPost, "/v1/admin/advance", passphrase, map[string]any{}, &out)
	return out, err
}

func (c *Client) Reset(ctx context.Context, passphrase string) (game.RoundState, error) {
	var out struct {
		Round game.RoundState `json:"round"`
	}
	err := c.adminRequest(ctx, http.MethodPost, "/v1/admin/reset", passphrase, map[string]any{}, &out)
	return out.Round, err
}

// Journal lists persisted settlements; round 0 lists every round.
func (c *Client) Journal(ctx context.Context, passphrase string, round int) ([]game.JournalEntry, error) {
	path := "/v1/admin/journal"
	if round > 0 {
		path += "?round=" + strconv.Itoa(round)
	}
	var out struct {
		Entries []game.JournalEntry `json:"entries"`
	}
	err := c.adminRequest(ctx, http.MethodGet, path, passphrase, nil, &out)
	return out.Entries, err
}

func (c *Client) CAGRChart(ctx context.Context, passphrase string) ([]byte, error) {
	return c.pngRequest(ctx, "/v1/admin/charts/cagr.png", http.Header{passphraseHeader: {passphrase}})
}

func (c *Client) jsonRequest(ctx context.Context, method, path, accessToken string, in any, out any, idem string) error {
	header := bearer(accessToken)
	if idem != "" {
		header.Set("Idempotency-Key", idem)
	}
	return c.send(ctx, method, path, header, in, out)
}

func (c *Client) adminRequest(ctx context.Context, method, path, passphrase string, in any, out any) error {
	return c.send(ctx, method, path, http.Header{passphraseHeader: {passphrase}}, in, out)
}

func (c *Client) send(ctx context.Context, method, path string, header http.Header, in any, out any) error {
	resp, err := c.roundTrip(ctx, method, path, header, in, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) pngRequest(ctx context.Context, path string, header http.Header) ([]byte, error) {
	resp, err := c.roundTrip(ctx, http.MethodGet, path, header, nil, "image/png")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, header http.Header, in any, accept string) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", accept)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	return resp, nil
}

func bearer(accessToken string) http.Header {
	h := http.Header{}
	if accessToken != "" {
		h.Set("Authorization", "Bearer "+accessToken)
	}
	return h
}

// errorMessage pulls "error" out of a JSON error body, falling back to the
// raw text.
func errorMessage(raw []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}
