package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"wealthsim/internal/charts"
	"wealthsim/internal/game"
)

type credentials struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.handleSignIn(w, r, s.game.Register, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.handleSignIn(w, r, s.game.RegisterOrLogin, http.StatusOK)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request,
	signIn func(context.Context, string, string) (game.PlayerView, error), status int) {
	var in credentials
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	player, err := signIn(r.Context(), in.Name, in.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	session, err := s.sessions.Issue(player.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, status, map[string]any{
		"session": session,
		"player":  presentPlayer(player),
		"round":   s.game.CurrentRound().Round,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.sessions.Revoke(p.Token)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.game.State())
}

func (s *Server) handleMarket(w http.ResponseWriter, _ *http.Request) {
	view, err := s.game.MarketView()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, presentView(view))
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"round":   s.game.CurrentRound(),
		"players": presentLeaderboard(s.game.Leaderboard()),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	view, err := s.game.Player(p.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, presentPlayer(view))
}

type buyRequest struct {
	Asset  string  `json:"asset"`
	Amount float64 `json:"amount"`
}

type borrowRequest struct {
	Amount float64 `json:"amount"`
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var in buyRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.decide(w, r, func(ctx context.Context, name string) (game.PlayerView, error) {
		return s.game.Buy(ctx, name, strings.TrimSpace(in.Asset), in.Amount)
	})
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var in borrowRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.decide(w, r, func(ctx context.Context, name string) (game.PlayerView, error) {
		return s.game.Borrow(ctx, name, in.Amount)
	})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, s.game.Lock)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, s.game.Unlock)
}

// decide runs one player decision at most once per Idempotency-Key.
func (s *Server) decide(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (game.PlayerView, error)) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	key := idempotencyKey(r)
	if !s.claimKey(p.Name, key) {
		view, err := s.game.Player(p.Name)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"player": presentPlayer(view), "duplicate": true, "round": s.game.CurrentRound().Round})
		return
	}
	view, err := fn(r.Context(), p.Name)
	if err != nil {
		s.releaseKey(p.Name, key)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player": presentPlayer(view), "duplicate": false, "round": s.game.CurrentRound().Round})
}

func (s *Server) handleMyChart(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	view, err := s.game.Player(p.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if len(view.History) == 0 {
		writeDomainError(w, fmt.Errorf("%w: no settled round yet", charts.ErrNoData))
		return
	}
	latest := view.History[len(view.History)-1]
	img, err := charts.WealthPath(p.Name, latest.Round, latest.Path)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writePNG(w, img)
}

type replayCommand struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	Round          int            `json:"round,omitempty"`
}

type replayResult struct {
	IdempotencyKey string `json:"idempotency_key"`
	Path           string `json:"path"`
	OK             bool   `json:"ok"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	Error          string `json:"error,omitempty"`
}

// handleSyncReplay applies decisions queued by an offline client in order.
// Every command carries its own idempotency key so a retried replay is safe.
// A command tagged with a round other than the open one is rejected.
func (s *Server) handleSyncReplay(w http.ResponseWriter, r *http.Request) {
	p, err := playerFromContext(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var in struct {
		Commands []replayCommand `json:"commands"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results := make([]replayResult, 0, len(in.Commands))
	for _, cmd := range in.Commands {
		res := replayResult{IdempotencyKey: cmd.IdempotencyKey, Path: cmd.Path}
		if cmd.IdempotencyKey == "" {
			res.Error = "missing idempotency key"
			results = append(results, res)
			continue
		}
		if !s.claimKey(p.Name, cmd.IdempotencyKey) {
			res.OK, res.Duplicate = true, true
			results = append(results, res)
			continue
		}
		if err := s.replay(r.Context(), p.Name, cmd); err != nil {
			s.releaseKey(p.Name, cmd.IdempotencyKey)
			res.Error = err.Error()
		} else {
			res.OK = true
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) replay(ctx context.Context, name string, cmd replayCommand) error {
	if cmd.Method != "" && !strings.EqualFold(cmd.Method, http.MethodPost) {
		return fmt.Errorf("unsupported method %q", cmd.Method)
	}
	if current := s.game.CurrentRound().Round; cmd.Round != 0 && cmd.Round != current {
		return fmt.Errorf("%w: queued in round %d, game is in round %d", game.ErrStaleDecision, cmd.Round, current)
	}
	var err error
	switch cmd.Path {
	case "/v1/me/buy":
		asset, _ := cmd.Body["asset"].(string)
		_, err = s.game.Buy(ctx, name, strings.TrimSpace(asset), numberField(cmd.Body, "amount"))
	case "/v1/me/borrow":
		_, err = s.game.Borrow(ctx, name, numberField(cmd.Body, "amount"))
	case "/v1/me/lock":
		_, err = s.game.Lock(ctx, name)
	case "/v1/me/unlock":
		_, err = s.game.Unlock(ctx, name)
	default:
		return fmt.Errorf("cannot replay %q", cmd.Path)
	}
	return err
}

func numberField(body map[string]any, key string) float64 {
	v, _ := body[key].(float64)
	return v
}
