package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wealthsim/internal/charts"
	"wealthsim/internal/game"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleAdminMetrics(w http.ResponseWriter, _ *http.Request) {
	m, err := s.game.Metrics()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"round":   s.game.CurrentRound(),
		"visible": s.game.VisibleStatistics(s.game.CurrentRound().Round),
		"metrics": presentMetrics(m),
	})
}

func (s *Server) handleAdminReturns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.game.ReturnTable())
}

func (s *Server) handleAdminEditReturns(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Returns [][]float64 `json:"returns"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.EditReturnTable(r.Context(), in.Returns); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.game.ReturnTable())
}

func (s *Server) handleAdminRandomize(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Seed int64 `json:"seed"`
	}
	if err := decodeJSON(r, &in); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := s.game.RandomizeReturns(r.Context(), in.Seed)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleAdminRename(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Names []string `json:"names"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	names := make([]string, len(in.Names))
	for i, n := range in.Names {
		names[i] = strings.TrimSpace(n)
	}
	if err := s.game.RenameAssets(r.Context(), names); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": s.game.AssetList()})
}

func (s *Server) handleAdminAddAsset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.game.AddAsset(r.Context(), strings.TrimSpace(in.Name)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"assets": s.game.AssetList()})
}

func (s *Server) handleAdminRemoveAsset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.game.RemoveAsset(r.Context(), name); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": s.game.AssetList()})
}

type settlementView struct {
	Round     int                 `json:"round"`
	Mode      game.SettlementMode `json:"mode"`
	Results   []game.PlayerResult `json:"results"`
	SettledAt time.Time           `json:"settled_at"`
}

func (s *Server) handleAdminSettle(w http.ResponseWriter, r *http.Request) {
	report, err := s.game.Settle(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := settlementView{
		Round:     report.Round,
		Mode:      report.Mode,
		Results:   make([]game.PlayerResult, len(report.Results)),
		SettledAt: report.SettledAt,
	}
	for i, pr := range report.Results {
		out.Results[i] = game.PlayerResult{Name: pr.Name, Result: presentResult(pr.Result)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminAdvance(w http.ResponseWriter, r *http.Request) {
	round, err := s.game.Advance(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.forgetKeys()
	writeJSON(w, http.StatusOK, map[string]any{
		"round":   round,
		"visible": s.game.VisibleStatistics(round.Round),
	})
}

func (s *Server) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	round := s.game.ResetGame(r.Context())
	s.sessions.Clear()
	s.forgetKeys()
	writeJSON(w, http.StatusOK, map[string]any{"round": round})
}

func (s *Server) handleAdminJournal(w http.ResponseWriter, r *http.Request) {
	round := 0
	if v := strings.TrimSpace(r.URL.Query().Get("round")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "round must be a non-negative integer")
			return
		}
		round = n
	}
	entries, err := s.game.SettlementHistory(r.Context(), round)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	for i := range entries {
		entries[i].NetWorth = round2(entries[i].NetWorth)
		entries[i].Multiple = round2(entries[i].Multiple)
		entries[i].Volatility = round2(entries[i].Volatility)
		entries[i].RiskAdjusted = round2(entries[i].RiskAdjusted)
		entries[i].Loan = round2(entries[i].Loan)
		entries[i].Cash = round2(entries[i].Cash)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleAdminCAGRChart(w http.ResponseWriter, _ *http.Request) {
	m, err := s.game.Metrics()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	img, err := charts.CAGRBar(m)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writePNG(w, img)
}
