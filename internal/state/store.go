/*

This file contains the persisted-state store.

The full bot state is serialized to a single versioned JSON document and
atomically renamed into place after every mutating event. A failed write
leaves the previous snapshot intact; in-memory state stays authoritative
until the next successful write.

*/

package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/karlokr/raydium-lp-bot/internal/logger"
	"github.com/karlokr/raydium-lp-bot/internal/position"
	"github.com/karlokr/raydium-lp-bot/internal/types"
)

var stateLogger = logger.GetForComponent("state_store")

// snapshotVersion guards against loading documents written by an
// incompatible build.
const snapshotVersion = 1

var ErrIncompatibleSnapshot = errors.New("snapshot version is incompatible")

// BotState is the complete persisted snapshot.
type BotState struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`

	Bookkeeping position.Snapshot                       `json:"bookkeeping"`
	Velocity    map[types.PoolID][]types.VelocitySample `json:"velocity,omitempty"`
	LastScan    []types.RankedPool                      `json:"last_scan,omitempty"`
}

// Store persists the bot state document to one file path.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore builds a store writing to the given path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save writes the state atomically: marshal to a temp file in the same
// directory, fsync, then rename over the previous snapshot.
func (s *Store) Save(state BotState) error {
	state.Version = snapshotVersion
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}

	stateLogger.Debug().
		Int("positions", len(state.Bookkeeping.Positions)).
		Int("bytes", len(data)).
		Msg("State snapshot written")
	return nil
}

// Load reads the snapshot. The second return is false when no snapshot
// exists yet, which is not an error.
func (s *Store) Load() (BotState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return BotState{}, false, nil
	}
	if err != nil {
		return BotState{}, false, fmt.Errorf("reading state snapshot: %w", err)
	}

	var state BotState
	if err := json.Unmarshal(data, &state); err != nil {
		return BotState{}, false, fmt.Errorf("parsing state snapshot: %w", err)
	}
	if state.Version != snapshotVersion {
		return BotState{}, false, fmt.Errorf("%w: got %d, want %d", ErrIncompatibleSnapshot, state.Version, snapshotVersion)
	}

	stateLogger.Info().
		Int("positions", len(state.Bookkeeping.Positions)).
		Time("savedAt", state.SavedAt).
		Msg("State snapshot loaded")
	return state, true, nil
}
