package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"wealthsim/internal/auth"
	"wealthsim/internal/charts"
	"wealthsim/internal/config"
	"wealthsim/internal/game"
	"wealthsim/internal/market"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const playerContextKey contextKey = "player"

const passphraseHeader = "X-Facilitator-Passphrase"

type PlayerContext struct {
	Name  string
	Token string
}

type Server struct {
	cfg        config.APIConfig
	log        *slog.Logger
	sessions   *auth.Sessions
	passphrase auth.Passphrase
	game       *game.Service
	mux        *chi.Mux

	// replayed remembers idempotency keys of applied decisions per player.
	replayMu sync.Mutex
	replayed map[string]map[string]struct{}
}

func New(cfg config.APIConfig, logger *slog.Logger, sessions *auth.Sessions, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		log:        logger,
		sessions:   sessions,
		passphrase: auth.NewPassphrase(cfg.Passphrase),
		game:       gameSvc,
		mux:        chi.NewRouter(),
		replayed:   map[string]map[string]struct{}{},
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/players/register", s.handleRegister)
		r.Post("/players/login", s.handleLogin)
		r.Get("/state", s.handleState)
		r.Get("/market", s.handleMarket)
		r.Get("/leaderboard", s.handleLeaderboard)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/me", s.handleMe)
			r.Post("/me/logout", s.handleLogout)
			r.Post("/me/buy", s.handleBuy)
			r.Post("/me/borrow", s.handleBorrow)
			r.Post("/me/lock", s.handleLock)
			r.Post("/me/unlock", s.handleUnlock)
			r.Get("/me/chart.png", s.handleMyChart)
			r.Post("/me/sync/replay", s.handleSyncReplay)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.facilitatorMiddleware)
			r.Get("/metrics", s.handleAdminMetrics)
			r.Get("/returns", s.handleAdminReturns)
			r.Put("/returns", s.handleAdminEditReturns)
			r.Post("/returns/randomize", s.handleAdminRandomize)
			r.Post("/assets/rename", s.handleAdminRename)
			r.Post("/assets", s.handleAdminAddAsset)
			r.Delete("/assets/{name}", s.handleAdminRemoveAsset)
			r.Post("/settle", s.handleAdminSettle)
			r.Post("/advance", s.handleAdminAdvance)
			r.Post("/reset", s.handleAdminReset)
			r.Get("/journal", s.handleAdminJournal)
			r.Get("/charts/cagr.png", s.handleAdminCAGRChart)
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		name, err := s.sessions.Resolve(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), playerContextKey, PlayerContext{Name: name, Token: token})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) facilitatorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.passphrase.Check(r.Header.Get(passphraseHeader)); err != nil {
			s.log.Warn("facilitator request rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func playerFromContext(ctx context.Context) (PlayerContext, error) {
	v := ctx.Value(playerContextKey)
	p, ok := v.(PlayerContext)
	if !ok || p.Name == "" {
		return PlayerContext{}, game.ErrUnauthorized
	}
	return p, nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrAuthentication), errors.Is(err, game.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrBadPassphrase):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, game.ErrDuplicateName):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInvalidName), errors.Is(err, game.ErrInvalidAmount),
		errors.Is(err, game.ErrInsufficientFunds), errors.Is(err, game.ErrLoanCapExceeded),
		errors.Is(err, game.ErrInvalidTable), errors.Is(err, market.ErrInvalidTable):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrPlayerNotFound), errors.Is(err, game.ErrUnknownAsset),
		errors.Is(err, market.ErrUnknownAsset), errors.Is(err, charts.ErrNoData),
		errors.Is(err, game.ErrJournalDisabled):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrDecisionLocked), errors.Is(err, game.ErrAlreadySettled),
		errors.Is(err, game.ErrNotSettled), errors.Is(err, game.ErrGameComplete),
		errors.Is(err, game.ErrNothingToSettle), errors.Is(err, game.ErrStaleDecision):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, market.ErrUndefinedMetric):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func writePNG(w http.ResponseWriter, img []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// claimKey records key for player and reports whether it was new.
func (s *Server) claimKey(player, key string) bool {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()
	seen, ok := s.replayed[player]
	if !ok {
		seen = map[string]struct{}{}
		s.replayed[player] = seen
	}
	if _, dup := seen[key]; dup {
		return false
	}
	seen[key] = struct{}{}
	return true
}

func (s *Server) releaseKey(player, key string) {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()
	delete(s.replayed[player], key)
}

func (s *Server) forgetKeys() {
	s.replayMu.Lock()
	s.replayed = map[string]map[string]struct{}{}
	s.replayMu.Unlock()
}
