package utils

import (
	"context"
	"sort"
	"sync"
	"time"

	"dice-derby/models"
)

// MemoryStore keeps balances and stats in process memory. It's the offline
// fallback when no DATABASE_URL is set, and the store the tests use.
type MemoryStore struct {
	mu             sync.Mutex
	startingTokens int64
	tokens         map[string]models.TokenBalance
	stats          map[string]models.PlayerStats
}

// NewMemoryStore creates an empty store. New players start with startingTokens.
func NewMemoryStore(startingTokens int64) *MemoryStore {
	return &MemoryStore{
		startingTokens: startingTokens,
		tokens:         make(map[string]models.TokenBalance),
		stats:          make(map[string]models.PlayerStats),
	}
}

func (m *MemoryStore) balance(playerID string) models.TokenBalance {
	b, ok := m.tokens[playerID]
	if !ok {
		b = models.TokenBalance{PlayerID: playerID, Tokens: m.startingTokens}
	}
	return b
}

// GetTokens returns a balance
func (m *MemoryStore) GetTokens(_ context.Context, playerID string) (models.TokenBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.balance(playerID)
	m.tokens[playerID] = b
	return copyBalance(b), nil
}

// UpdateTokens applies fn to a copy and stores it only if fn succeeds
func (m *MemoryStore) UpdateTokens(_ context.Context, playerID string, fn func(*models.TokenBalance) error) (models.TokenBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := copyBalance(m.balance(playerID))
	if err := fn(&b); err != nil {
		return models.TokenBalance{}, err
	}
	if b.Tokens < 0 {
		return models.TokenBalance{}, ErrNegativeBalance
	}
	m.tokens[playerID] = b
	return copyBalance(b), nil
}

// SetTokens overwrites a balance
func (m *MemoryStore) SetTokens(playerID string, tokens int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.balance(playerID)
	b.Tokens = tokens
	m.tokens[playerID] = b
}

// GetStats returns a copy of a player's stats
func (m *MemoryStore) GetStats(_ context.Context, playerID string) (models.PlayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[playerID]
	if !ok {
		return models.NewPlayerStats(playerID), nil
	}
	return s.Clone(), nil
}

// UpdateStats applies fn to a copy and stores it only if fn succeeds
func (m *MemoryStore) UpdateStats(_ context.Context, playerID string, fn func(*models.PlayerStats) error) (models.PlayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[playerID]
	if !ok {
		s = models.NewPlayerStats(playerID)
	}
	s = s.Clone()
	if err := fn(&s); err != nil {
		return models.PlayerStats{}, err
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	m.stats[playerID] = s
	return s.Clone(), nil
}

// TopStats returns players ordered by wins, then total won
func (m *MemoryStore) TopStats(_ context.Context, limit int) ([]models.PlayerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.PlayerStats, 0, len(m.stats))
	for _, s := range m.stats {
		if s.Races > 0 {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		if out[i].TotalWon != out[j].TotalWon {
			return out[i].TotalWon > out[j].TotalWon
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ResetSeason drops all stats and keeps balances
func (m *MemoryStore) ResetSeason(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = make(map[string]models.PlayerStats)
	return nil
}

func copyBalance(b models.TokenBalance) models.TokenBalance {
	if b.LastDailyClaim != nil {
		t := *b.LastDailyClaim
		b.LastDailyClaim = &t
	}
	return b
}
