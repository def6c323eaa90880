/*

This file contains the position store: the single owner of all open
positions and the cooldown, strike, and blacklist bookkeeping attached
to them.

Every field is guarded by one mutex, and every read-modify-write that
spans more than one field happens while holding it. Callers only ever
receive copies; the store's internal pointers never escape.

Strike escalation on loss-driven closes: strike 1 installs the first
configured cooldown, strike 2 the next, clamped to the longest; reaching
the strike ceiling moves the pool into the permanent blacklist and
clears its strike counter. A profit-driven close resets the counter.

*/

package position

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/karlokr/raydium-lp-bot/internal/logger"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

var storeLogger = logger.GetForComponent("position_store")

var (
	ErrPositionExists   = errors.New("position already exists for pool")
	ErrPositionNotFound = errors.New("position not found")
	ErrStoreFull        = errors.New("maximum concurrent positions reached")
)

// Snapshot is the store's persistable bookkeeping state.
type Snapshot struct {
	Positions []types.Position                `json:"positions"`
	Cooldowns map[types.PoolID]types.Cooldown `json:"cooldowns"`
	Strikes   map[types.PoolID]int            `json:"strikes"`
	Blacklist []types.PoolID                  `json:"blacklist"`
}

// Store owns the active position set. Safe for concurrent use.
type Store struct {
	params types.StrategyParameters

	mu        sync.Mutex
	positions map[types.PoolID]*types.Position
	cooldowns map[types.PoolID]types.Cooldown
	strikes   map[types.PoolID]int
	blacklist map[types.PoolID]bool

	// failed marks pools whose entry failed this scan cycle; cleared at
	// the start of the next cycle.
	failed map[types.PoolID]bool
}

// NewStore builds an empty position store.
func NewStore(params types.StrategyParameters) *Store {
	return &Store{
		params:    params,
		positions: make(map[types.PoolID]*types.Position),
		cooldowns: make(map[types.PoolID]types.Cooldown),
		strikes:   make(map[types.PoolID]int),
		blacklist: make(map[types.PoolID]bool),
		failed:    make(map[types.PoolID]bool),
	}
}

// Add admits a new position to the active set.
func (s *Store) Add(pos types.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[pos.PoolID]; ok {
		return fmt.Errorf("%w: %s", ErrPositionExists, pos.PoolID)
	}
	if len(s.positions) >= s.params.MaxConcurrentPositions {
		return ErrStoreFull
	}

	p := pos
	s.positions[pos.PoolID] = &p

	storeLogger.Info().
		Str("pool", string(pos.PoolID)).
		Str("name", pos.PoolName).
		Float64("capitalSOL", pos.CapitalSOL).
		Msg("Position opened")
	return nil
}

// Get returns a copy of a position.
func (s *Store) Get(poolID types.PoolID) (types.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[poolID]
	if !ok {
		return types.Position{}, false
	}
	return *pos, true
}

// List returns copies of all positions, oldest entry first.
func (s *Store) List() []types.Position {
	s.mu.Lock()
	out := make([]types.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		out = append(out, *pos)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].EntryTime.Before(out[j].EntryTime)
	})
	return out
}

// Count returns the number of open positions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.positions)
}

// FreeSlots returns how many more positions may be opened.
func (s *Store) FreeSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	free := s.params.MaxConcurrentPositions - len(s.positions)
	if free < 0 {
		free = 0
	}
	return free
}

// Update applies fn to a position under the lock. Returns false when
// the position does not exist.
func (s *Store) Update(poolID types.PoolID, fn func(*types.Position)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[poolID]
	if !ok {
		return false
	}
	fn(pos)
	return true
}

// SetPendingExit flags or unflags a position as mid-exit. Returns false
// when the position does not exist, and false when flagging a position
// that is already pending (so two exit paths cannot both claim it).
func (s *Store) SetPendingExit(poolID types.PoolID, pending bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[poolID]
	if !ok {
		return false
	}
	if pending && pos.PendingExit {
		return false
	}
	pos.PendingExit = pending
	return true
}

// RemoveClosed removes a closed position from the active set and applies
// the strike, cooldown, and blacklist consequences of its exit reason.
// Returns the final position copy for trade-history recording.
func (s *Store) RemoveClosed(poolID types.PoolID, reason types.ExitReason, now time.Time) (types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[poolID]
	if !ok {
		return types.Position{}, fmt.Errorf("%w: %s", ErrPositionNotFound, poolID)
	}
	final := *pos
	delete(s.positions, poolID)

	switch {
	case reason.IsLoss():
		s.applyLossLocked(poolID, now)
	case reason == types.ExitTakeProfit:
		delete(s.strikes, poolID)
	}

	storeLogger.Info().
		Str("pool", string(poolID)).
		Str("reason", string(reason)).
		Float64("pnlSOL", final.UnrealizedPnLSOL).
		Msg("Position closed")
	return final, nil
}

// applyLossLocked escalates a pool's strike count. Caller holds the lock.
func (s *Store) applyLossLocked(poolID types.PoolID, now time.Time) {
	if s.blacklist[poolID] {
		return
	}

	s.strikes[poolID]++
	strikes := s.strikes[poolID]

	if strikes >= s.params.BlacklistStrikes {
		s.blacklist[poolID] = true
		delete(s.strikes, poolID)
		delete(s.cooldowns, poolID)
		storeLogger.Warn().
			Str("pool", string(poolID)).
			Int("strikes", strikes).
			Msg("Pool permanently blacklisted")
		return
	}

	idx := strikes - 1
	if idx >= len(s.params.StopLossCooldowns) {
		idx = len(s.params.StopLossCooldowns) - 1
	}
	duration := s.params.StopLossCooldowns[idx]
	s.cooldowns[poolID] = types.Cooldown{Start: now, Duration: duration}

	storeLogger.Info().
		Str("pool", string(poolID)).
		Int("strikes", strikes).
		Dur("cooldown", duration).
		Msg("Loss exit recorded, cooldown installed")
}

// Eligible reports whether a pool may be entered now, with a
// human-readable reason when it may not.
func (s *Store) Eligible(poolID types.PoolID, now time.Time) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, active := s.positions[poolID]; active {
		return false, "position already open"
	}
	if s.blacklist[poolID] {
		return false, "permanently blacklisted"
	}
	if s.failed[poolID] {
		return false, "entry failed this cycle"
	}
	if cd, ok := s.cooldowns[poolID]; ok {
		if cd.Expired(now) {
			delete(s.cooldowns, poolID)
		} else {
			return false, fmt.Sprintf("cooling down for %s", cd.Remaining(now).Round(time.Minute))
		}
	}
	return true, ""
}

// MarkFailed flags a pool whose entry failed for the rest of the scan
// cycle.
func (s *Store) MarkFailed(poolID types.PoolID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[poolID] = true
}

// ClearFailed resets the per-cycle failed set. Called at the start of
// each scan.
func (s *Store) ClearFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = make(map[types.PoolID]bool)
}

// Strikes returns a pool's consecutive loss count.
func (s *Store) Strikes(poolID types.PoolID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strikes[poolID]
}

// IsBlacklisted reports whether a pool is permanently banned.
func (s *Store) IsBlacklisted(poolID types.PoolID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blacklist[poolID]
}

// DeployedCapital sums the committed capital of all open positions.
func (s *Store) DeployedCapital() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, pos := range s.positions {
		total += pos.CapitalSOL
	}
	return total
}

// Export copies the bookkeeping state for persistence.
func (s *Store) Export() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Cooldowns: make(map[types.PoolID]types.Cooldown, len(s.cooldowns)),
		Strikes:   make(map[types.PoolID]int, len(s.strikes)),
	}
	for _, pos := range s.positions {
		snap.Positions = append(snap.Positions, *pos)
	}
	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].EntryTime.Before(snap.Positions[j].EntryTime)
	})
	for id, cd := range s.cooldowns {
		snap.Cooldowns[id] = cd
	}
	for id, n := range s.strikes {
		snap.Strikes[id] = n
	}
	for id := range s.blacklist {
		snap.Blacklist = append(snap.Blacklist, id)
	}
	sort.Slice(snap.Blacklist, func(i, j int) bool { return snap.Blacklist[i] < snap.Blacklist[j] })
	return snap
}

// Import restores bookkeeping state from a persisted snapshot. Cooldowns
// whose duration has already elapsed are dropped at load time; positions
// failing validation are skipped rather than poisoning the restore.
func (s *Store) Import(snap Snapshot, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions = make(map[types.PoolID]*types.Position, len(snap.Positions))
	for _, pos := range snap.Positions {
		if err := pos.Validate(); err != nil {
			storeLogger.Warn().Err(err).Str("pool", string(pos.PoolID)).Msg("Skipping invalid restored position")
			continue
		}
		p := pos
		p.PendingExit = false
		s.positions[pos.PoolID] = &p
	}

	s.cooldowns = make(map[types.PoolID]types.Cooldown, len(snap.Cooldowns))
	for id, cd := range snap.Cooldowns {
		if !cd.Expired(now) {
			s.cooldowns[id] = cd
		}
	}

	s.strikes = make(map[types.PoolID]int, len(snap.Strikes))
	for id, n := range snap.Strikes {
		if n > 0 {
			s.strikes[id] = n
		}
	}

	s.blacklist = make(map[types.PoolID]bool, len(snap.Blacklist))
	for _, id := range snap.Blacklist {
		s.blacklist[id] = true
	}

	storeLogger.Info().
		Int("positions", len(s.positions)).
		Int("cooldowns", len(s.cooldowns)).
		Int("blacklisted", len(s.blacklist)).
		Msg("Position store restored from snapshot")
}
