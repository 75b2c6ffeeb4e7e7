package game

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"wealthsim/internal/market"
)

// Store is the process-wide game state. One mutex guards everything; every
// mutating method holds it for its whole duration and readers get deep copies.
// No method performs I/O.
type Store struct {
	mu      sync.Mutex
	params  Params
	engine  Engine
	round   RoundState
	table   market.ReturnTable
	players map[string]*Account
	version int64
	now     func() time.Time
}

// Snapshot is a self-contained copy of the store, suitable for persistence.
type Snapshot struct {
	Version int64              `json:"version"`
	Round   RoundState         `json:"round"`
	Table   market.ReturnTable `json:"table"`
	Players []Account          `json:"players"`
	TakenAt time.Time          `json:"taken_at"`
}

// PlayerResult pairs a player with the result written at settlement.
type PlayerResult struct {
	Name   string      `json:"name"`
	Result RoundResult `json:"result"`
}

type SettlementReport struct {
	Round     int            `json:"round"`
	Mode      SettlementMode `json:"mode"`
	Results   []PlayerResult `json:"results"`
	SettledAt time.Time      `json:"settled_at"`
}

func NewStore(params Params, table market.ReturnTable) (*Store, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, toTableError(err)
	}
	return &Store{
		params:  params,
		engine:  NewEngine(params),
		round:   firstRound(params.MaxRounds),
		table:   table.Clone(),
		players: map[string]*Account{},
		now:     time.Now,
	}, nil
}

func (s *Store) Params() Params {
	return s.params
}

func (s *Store) Round() RoundState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

func (s *Store) Assets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.table.Assets...)
}

func (s *Store) Table() market.ReturnTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Clone()
}

func (s *Store) Account(name string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.players[name]
	if !ok {
		return Account{}, fmt.Errorf("%w: %q", ErrPlayerNotFound, name)
	}
	return a.clone(), nil
}

// Players returns copies of every account ordered by name.
func (s *Store) Players() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playersLocked()
}

func (s *Store) playersLocked() []Account {
	out := make([]Account, 0, len(s.players))
	for _, name := range slices.Sorted(maps.Keys(s.players)) {
		out = append(out, s.players[name].clone())
	}
	return out
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Version: s.version,
		Round:   s.round,
		Table:   s.table.Clone(),
		Players: s.playersLocked(),
		TakenAt: s.now().UTC(),
	}
}

// Restore replaces the whole state with a snapshot after checking that every
// account holds exactly the table's assets.
func (s *Store) Restore(snap Snapshot) error {
	if err := snap.Table.Validate(); err != nil {
		return toTableError(err)
	}
	players := make(map[string]*Account, len(snap.Players))
	for _, p := range snap.Players {
		if len(p.Holdings) != len(snap.Table.Assets) {
			return fmt.Errorf("%w: player %q holds %d assets, table has %d", ErrInvalidTable, p.Name, len(p.Holdings), len(snap.Table.Assets))
		}
		for asset := range p.Holdings {
			if !snap.Table.Has(asset) {
				return fmt.Errorf("%w: player %q holds %q", ErrUnknownAsset, p.Name, asset)
			}
		}
		acct := p.clone()
		if acct.History == nil {
			acct.History = map[int]RoundResult{}
		}
		players[p.Name] = &acct
	}
	round := snap.Round
	round.MaxRounds = s.params.MaxRounds
	if round.Round < 1 || round.Round > round.MaxRounds {
		return fmt.Errorf("snapshot round %d outside 1..%d", round.Round, round.MaxRounds)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.round = round
	s.table = snap.Table.Clone()
	s.players = players
	s.version = snap.Version
	return nil
}

// RegisterOrLogin logs an existing player in or creates the account on first
// sight of the name. created reports which happened.
func (s *Store) RegisterOrLogin(name, password string) (acct Account, created bool, err error) {
	name, err = ValidateName(name)
	if err != nil {
		return Account{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.players[name]; ok {
		if a.Password != password {
			return Account{}, false, ErrAuthentication
		}
		return a.clone(), false, nil
	}
	a := s.createLocked(name, password)
	return a.clone(), true, nil
}

// Register is the explicit sign-up path: a taken name with a different
// password is a conflict rather than a failed login.
func (s *Store) Register(name, password string) (acct Account, created bool, err error) {
	name, err = ValidateName(name)
	if err != nil {
		return Account{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.players[name]; ok {
		if a.Password != password {
			return Account{}, false, fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		return a.clone(), false, nil
	}
	a := s.createLocked(name, password)
	return a.clone(), true, nil
}

func (s *Store) createLocked(name, password string) *Account {
	a := newAccount(name, password, s.params.StartingCash, s.table.Assets)
	s.players[name] = a
	s.version++
	return a
}

func (s *Store) decisionLocked(name string) (*Account, error) {
	a, ok := s.players[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlayerNotFound, name)
	}
	if !s.round.AcceptingDecisions() {
		return nil, fmt.Errorf("%w: decisions for round %d are closed", ErrAlreadySettled, s.round.Round)
	}
	return a, nil
}

func (s *Store) Buy(name, asset string, amount float64) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.decisionLocked(name)
	if err != nil {
		return Account{}, err
	}
	if err := a.buy(asset, amount); err != nil {
		return Account{}, err
	}
	s.version++
	return a.clone(), nil
}

func (s *Store) Borrow(name string, amount float64) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.decisionLocked(name)
	if err != nil {
		return Account{}, err
	}
	if s.round.Round < s.params.LeverageRound {
		return Account{}, fmt.Errorf("%w: borrowing unlocks in round %d", ErrInvalidAmount, s.params.LeverageRound)
	}
	if err := a.borrow(amount, s.params.LoanCap); err != nil {
		return Account{}, err
	}
	s.version++
	return a.clone(), nil
}

// SetLocked submits (true) or reopens (false) a player's decision.
func (s *Store) SetLocked(name string, locked bool) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.decisionLocked(name)
	if err != nil {
		return Account{}, err
	}
	if a.Locked != locked {
		a.Locked = locked
		s.version++
	}
	return a.clone(), nil
}

// Settle applies the return path to every account in one step. Outcomes are
// computed for all players before any account is touched.
func (s *Store) Settle() (SettlementReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.round.CanSettle(); err != nil {
		return SettlementReport{}, err
	}
	if len(s.players) == 0 {
		return SettlementReport{}, ErrNothingToSettle
	}

	names := slices.Sorted(maps.Keys(s.players))
	outcomes := make([]Outcome, len(names))
	portfolios := make([]Portfolio, len(names))
	for i, name := range names {
		a := s.players[name]
		portfolios[i] = Portfolio{Cash: a.Cash, Loan: a.Loan, Holdings: a.Holdings}
		out, err := s.engine.Evaluate(s.table, portfolios[i])
		if err != nil {
			return SettlementReport{}, fmt.Errorf("settle %q: %w", name, err)
		}
		outcomes[i] = out
	}

	report := SettlementReport{
		Round:     s.round.Round,
		Mode:      s.engine.Mode,
		Results:   make([]PlayerResult, len(names)),
		SettledAt: s.now().UTC(),
	}
	for i, name := range names {
		a := s.players[name]
		res := outcomes[i].result(s.round.Round, portfolios[i])
		a.History[s.round.Round] = res
		if s.params.CarryHoldings {
			a.Holdings = outcomes[i].Holdings
			a.Cash -= outcomes[i].LoanCharge
			a.Loan = 0
			a.refreshNetWorth()
		} else {
			a.NetWorth = outcomes[i].NetWorth
		}
		report.Results[i] = PlayerResult{Name: name, Result: res}
	}
	s.round = s.round.settled()
	s.version++
	return report, nil
}

// Advance moves Settled(n) to Collecting(n+1). Without carried holdings every
// account goes back to its starting position.
func (s *Store) Advance() (RoundState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.round.CanAdvance(); err != nil {
		return s.round, err
	}
	for _, a := range s.players {
		if s.params.CarryHoldings {
			a.Locked = false
			a.refreshNetWorth()
			continue
		}
		a.reset(s.params.StartingCash, s.table.Assets)
	}
	s.round = s.round.next()
	s.version++
	return s.round, nil
}

// Reset clears every player and returns to Collecting(1). The return table
// and asset list are kept.
func (s *Store) Reset() RoundState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = map[string]*Account{}
	s.round = firstRound(s.params.MaxRounds)
	s.version++
	return s.round
}

// RenameAssets renames columns positionally and re-keys every account.
func (s *Store) RenameAssets(names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.table.Renamed(names)
	if err != nil {
		return toTableError(err)
	}
	for _, a := range s.players {
		h := make(map[string]float64, len(names))
		for i, old := range s.table.Assets {
			h[names[i]] = a.Holdings[old]
		}
		a.Holdings = h
	}
	s.table = next
	s.version++
	return nil
}

func (s *Store) AddAsset(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.table.WithAsset(name)
	if err != nil {
		return toTableError(err)
	}
	for _, a := range s.players {
		a.Holdings[name] = 0
	}
	s.table = next
	s.version++
	return nil
}

// RemoveAsset drops a column. Money invested in it is returned to cash so no
// value disappears. A settled net worth is kept until the next round opens.
func (s *Store) RemoveAsset(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.table.WithoutAsset(name)
	if err != nil {
		return toTableError(err)
	}
	keepSettled := s.round.Settled && !s.params.CarryHoldings
	for _, a := range s.players {
		a.Cash += a.Holdings[name]
		delete(a.Holdings, name)
		if !keepSettled {
			a.refreshNetWorth()
		}
	}
	s.table = next
	s.version++
	return nil
}

// SetReturns replaces the values of the table, keeping the columns.
func (s *Store) SetReturns(rows [][]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.table.WithRows(rows)
	if err != nil {
		return toTableError(err)
	}
	s.table = next
	s.version++
	return nil
}
