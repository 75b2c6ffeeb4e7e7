package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"time"

	"wealthsim/internal/disclosure"
	"wealthsim/internal/market"
)

var ErrJournalDisabled = errors.New("settlement journal not configured")

// Persister stores snapshots of the game. Implementations must ignore a
// snapshot older than the one already stored.
type Persister interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

type Journal interface {
	RecordSettlement(ctx context.Context, report SettlementReport) error
	Settlements(ctx context.Context, round int) ([]JournalEntry, error)
}

type Notifier interface {
	Announce(ctx context.Context, message string) error
}

type Option func(*Service)

func WithPersister(p Persister) Option {
	return func(s *Service) { s.persist = p }
}

func WithJournal(j Journal) Option {
	return func(s *Service) { s.journal = j }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notify = n }
}

// Service is the command/query surface the presentation layer talks to. It
// delegates state changes to the Store and runs persistence, journaling and
// announcements after the store lock is released.
type Service struct {
	store   *Store
	log     *slog.Logger
	policy  disclosure.Policy
	persist Persister
	journal Journal
	notify  Notifier
	mu      sync.Mutex
	rand    *mathrand.Rand
}

func NewService(store *Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	p := store.Params()
	s := &Service{
		store:  store,
		log:    logger,
		policy: disclosure.NewPolicy(p.MaxRounds, p.LeverageRound),
		rand:   mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Params() Params {
	return s.store.Params()
}

func (s *Service) State() StateView {
	snap := s.store.Snapshot()
	p := s.store.Params()
	return StateView{
		Round:           snap.Round.Round,
		Settled:         snap.Round.Settled,
		Phase:           snap.Round.Phase(),
		MaxRounds:       snap.Round.MaxRounds,
		LeverageRound:   p.LeverageRound,
		LeverageEnabled: s.policy.Visible(snap.Round.Round).LeverageEnabled,
		Complete:        snap.Round.Terminal(),
		Assets:          snap.Table.Assets,
		Players:         len(snap.Players),
	}
}

func (s *Service) CurrentRound() RoundState {
	return s.store.Round()
}

func (s *Service) AssetList() []string {
	return s.store.Assets()
}

func (s *Service) ReturnTable() market.ReturnTable {
	return s.store.Table()
}

// Metrics is the unfiltered facilitator view.
func (s *Service) Metrics() (market.Metrics, error) {
	return market.Compute(s.store.Table())
}

func (s *Service) VisibleStatistics(round int) disclosure.Capabilities {
	return s.policy.Visible(round)
}

// MarketView is the student view for the current round.
func (s *Service) MarketView() (disclosure.View, error) {
	snap := s.store.Snapshot()
	m, err := market.Compute(snap.Table)
	if err != nil {
		return disclosure.View{}, err
	}
	return s.policy.Apply(m, snap.Round.Round), nil
}

func (s *Service) Player(name string) (PlayerView, error) {
	a, err := s.store.Account(name)
	if err != nil {
		return PlayerView{}, err
	}
	return NewPlayerView(a, s.store.Assets()), nil
}

func (s *Service) Leaderboard() []LeaderboardRow {
	return RankPlayers(s.store.Players(), s.store.Params().StartingCash)
}

// RegisterOrLogin creates the account on first sight of a name.
func (s *Service) RegisterOrLogin(ctx context.Context, name, password string) (PlayerView, error) {
	a, created, err := s.store.RegisterOrLogin(name, password)
	if err != nil {
		s.log.Info("login rejected", "player", name, "err", err)
		return PlayerView{}, err
	}
	if created {
		s.log.Info("player registered", "player", a.Name)
		s.commit(ctx, "register")
	}
	return NewPlayerView(a, s.store.Assets()), nil
}

func (s *Service) Register(ctx context.Context, name, password string) (PlayerView, error) {
	a, created, err := s.store.Register(name, password)
	if err != nil {
		return PlayerView{}, err
	}
	if created {
		s.log.Info("player registered", "player", a.Name)
		s.commit(ctx, "register")
	}
	return NewPlayerView(a, s.store.Assets()), nil
}

func (s *Service) Buy(ctx context.Context, name, asset string, amount float64) (PlayerView, error) {
	a, err := s.store.Buy(name, asset, amount)
	if err != nil {
		return PlayerView{}, err
	}
	s.log.Debug("buy", "player", name, "asset", asset, "amount", amount)
	s.commit(ctx, "buy")
	return NewPlayerView(a, s.store.Assets()), nil
}

func (s *Service) Borrow(ctx context.Context, name string, amount float64) (PlayerView, error) {
	a, err := s.store.Borrow(name, amount)
	if err != nil {
		return PlayerView{}, err
	}
	s.log.Debug("borrow", "player", name, "amount", amount, "loan", a.Loan)
	s.commit(ctx, "borrow")
	return NewPlayerView(a, s.store.Assets()), nil
}

func (s *Service) Lock(ctx context.Context, name string) (PlayerView, error) {
	return s.setLocked(ctx, name, true)
}

func (s *Service) Unlock(ctx context.Context, name string) (PlayerView, error) {
	return s.setLocked(ctx, name, false)
}

func (s *Service) setLocked(ctx context.Context, name string, locked bool) (PlayerView, error) {
	a, err := s.store.SetLocked(name, locked)
	if err != nil {
		return PlayerView{}, err
	}
	s.commit(ctx, "lock")
	return NewPlayerView(a, s.store.Assets()), nil
}

func (s *Service) Settle(ctx context.Context) (SettlementReport, error) {
	report, err := s.store.Settle()
	if err != nil {
		s.log.Warn("settle rejected", "err", err)
		return report, err
	}
	s.log.Info("round settled", "round", report.Round, "players", len(report.Results), "mode", report.Mode)
	s.commit(ctx, "settle")
	if s.journal != nil {
		if err := s.journal.RecordSettlement(ctx, report); err != nil {
			s.log.Warn("journal settlement failed", "round", report.Round, "err", err)
		}
	}
	s.announce(ctx, settlementMessage(report, s.store.Params().StartingCash))
	return report, nil
}

func (s *Service) Advance(ctx context.Context) (RoundState, error) {
	round, err := s.store.Advance()
	if err != nil {
		s.log.Warn("advance rejected", "round", round.Round, "err", err)
		return round, err
	}
	s.log.Info("round opened", "round", round.Round)
	s.commit(ctx, "advance")
	s.announce(ctx, s.roundOpenedMessage(round))
	return round, nil
}

func (s *Service) ResetGame(ctx context.Context) RoundState {
	round := s.store.Reset()
	s.log.Info("game reset")
	s.commit(ctx, "reset")
	s.announce(ctx, "Game reset. Round 1 is open for decisions.")
	return round
}

func (s *Service) RenameAssets(ctx context.Context, names []string) error {
	if err := s.store.RenameAssets(names); err != nil {
		return err
	}
	s.log.Info("assets renamed", "assets", names)
	s.commit(ctx, "rename_assets")
	return nil
}

func (s *Service) AddAsset(ctx context.Context, name string) error {
	if err := s.store.AddAsset(name); err != nil {
		return err
	}
	s.log.Info("asset added", "asset", name)
	s.commit(ctx, "add_asset")
	return nil
}

func (s *Service) RemoveAsset(ctx context.Context, name string) error {
	if err := s.store.RemoveAsset(name); err != nil {
		return err
	}
	s.log.Info("asset removed", "asset", name)
	s.commit(ctx, "remove_asset")
	return nil
}

func (s *Service) EditReturnTable(ctx context.Context, rows [][]float64) error {
	if err := s.store.SetReturns(rows); err != nil {
		return err
	}
	s.log.Info("return table edited")
	s.commit(ctx, "edit_returns")
	return nil
}

// RandomizeReturns redraws the table. A zero seed uses the service's own
// random source.
func (s *Service) RandomizeReturns(ctx context.Context, seed int64) (market.ReturnTable, error) {
	var rng *mathrand.Rand
	if seed != 0 {
		rng = mathrand.New(mathrand.NewSource(seed))
	} else {
		s.mu.Lock()
		rng = mathrand.New(mathrand.NewSource(s.rand.Int63()))
		s.mu.Unlock()
	}
	t, err := market.RandomTable(rng, s.store.Assets())
	if err != nil {
		return market.ReturnTable{}, toTableError(err)
	}
	if err := s.store.SetReturns(t.Rows); err != nil {
		return market.ReturnTable{}, err
	}
	s.log.Info("return table randomized", "seed", seed)
	s.commit(ctx, "randomize_returns")
	return s.store.Table(), nil
}

func (s *Service) SettlementHistory(ctx context.Context, round int) ([]JournalEntry, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	return s.journal.Settlements(ctx, round)
}

// commit hands a fresh snapshot to the persister. Failures are logged only.
func (s *Service) commit(ctx context.Context, action string) {
	if s.persist == nil {
		return
	}
	snap := s.store.Snapshot()
	if err := s.persist.SaveSnapshot(ctx, snap); err != nil {
		s.log.Warn("snapshot save failed", "action", action, "version", snap.Version, "err", err)
	}
}

func (s *Service) announce(ctx context.Context, msg string) {
	if s.notify == nil || msg == "" {
		return
	}
	if err := s.notify.Announce(ctx, msg); err != nil {
		s.log.Warn("announce failed", "err", err)
	}
}

func (s *Service) roundOpenedMessage(r RoundState) string {
	caps := s.policy.Visible(r.Round)
	msg := fmt.Sprintf("Round %d of %d is open.", r.Round, r.MaxRounds)
	if caps.LeverageEnabled {
		msg += " Borrowing is available."
	}
	if caps.Final {
		msg += " Full statistics are now disclosed."
	}
	return msg
}

func settlementMessage(report SettlementReport, startingCash float64) string {
	if len(report.Results) == 0 {
		return ""
	}
	best := report.Results[0]
	for _, r := range report.Results[1:] {
		if r.Result.NetWorth > best.Result.NetWorth {
			best = r
		}
	}
	return fmt.Sprintf("Round %d settled for %d players. Leader: %s with %.2f (%.2fx).",
		report.Round, len(report.Results), best.Name, best.Result.NetWorth, best.Result.NetWorth/startingCash)
}
