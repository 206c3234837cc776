package utils

import (
	"context"
	"sync"
	"time"

	"dice-derby/models"

	log "github.com/sirupsen/logrus"
)

// RaceStore is the persistence interface the race engine uses
type RaceStore interface {
	GetTokens(ctx context.Context, playerID string) (models.TokenBalance, error)
	UpdateTokens(ctx context.Context, playerID string, fn func(*models.TokenBalance) error) (models.TokenBalance, error)
	GetStats(ctx context.Context, playerID string) (models.PlayerStats, error)
	UpdateStats(ctx context.Context, playerID string, fn func(*models.PlayerStats) error) (models.PlayerStats, error)
	TopStats(ctx context.Context, limit int) ([]models.PlayerStats, error)
	ResetSeason(ctx context.Context) error
}

type statsEntry struct {
	stats     models.PlayerStats
	expiresAt time.Time
}

type boardEntry struct {
	limit     int
	players   []models.PlayerStats
	expiresAt time.Time
}

// CachedStore caches stats reads in front of another store. Token balances
// always go to the backing store; writes update the cache in place.
type CachedStore struct {
	RaceStore

	mu    sync.RWMutex
	ttl   time.Duration
	stats map[string]statsEntry
	board *boardEntry
	// gen moves on every write and clear. A miss only caches its read if gen
	// did not move while it was reading.
	gen uint64

	hits, misses int64
	now          func() time.Time
}

// CacheStats reports cache usage
type CacheStats struct {
	Size   int           `json:"size"`
	TTL    time.Duration `json:"ttl"`
	Hits   int64         `json:"hits"`
	Misses int64         `json:"misses"`
}

// NewCachedStore wraps a store with a stats cache
func NewCachedStore(inner RaceStore, ttl time.Duration) *CachedStore {
	return &CachedStore{
		RaceStore: inner,
		ttl:       ttl,
		stats:     make(map[string]statsEntry),
		now:       time.Now,
	}
}

// GetStats returns cached stats, loading them on a miss
func (c *CachedStore) GetStats(ctx context.Context, playerID string) (models.PlayerStats, error) {
	c.mu.RLock()
	entry, ok := c.stats[playerID]
	gen := c.gen
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return entry.stats.Clone(), nil
	}

	stats, err := c.RaceStore.GetStats(ctx, playerID)
	if err != nil {
		return stats, err
	}
	c.mu.Lock()
	c.misses++
	if c.gen == gen {
		c.stats[playerID] = statsEntry{stats: stats.Clone(), expiresAt: c.now().Add(c.ttl)}
	}
	c.mu.Unlock()
	return stats, nil
}

// UpdateStats writes through and refreshes the cached copy
func (c *CachedStore) UpdateStats(ctx context.Context, playerID string, fn func(*models.PlayerStats) error) (models.PlayerStats, error) {
	stats, err := c.RaceStore.UpdateStats(ctx, playerID, fn)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if err != nil {
		delete(c.stats, playerID)
		return stats, err
	}
	c.stats[playerID] = statsEntry{stats: stats.Clone(), expiresAt: c.now().Add(c.ttl)}
	c.board = nil
	return stats, nil
}

// TopStats caches the most recent leaderboard until a stats write or expiry
func (c *CachedStore) TopStats(ctx context.Context, limit int) ([]models.PlayerStats, error) {
	c.mu.RLock()
	board := c.board
	gen := c.gen
	c.mu.RUnlock()
	if board != nil && board.limit == limit && c.now().Before(board.expiresAt) {
		return clonePlayers(board.players), nil
	}

	players, err := c.RaceStore.TopStats(ctx, limit)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.gen == gen {
		c.board = &boardEntry{limit: limit, players: clonePlayers(players), expiresAt: c.now().Add(c.ttl)}
	}
	c.mu.Unlock()
	return players, nil
}

// ResetSeason clears the backing store and the cache
func (c *CachedStore) ResetSeason(ctx context.Context) error {
	err := c.RaceStore.ResetSeason(ctx)
	c.Clear()
	return err
}

// Clear removes all entries from the cache
func (c *CachedStore) Clear() {
	c.mu.Lock()
	c.gen++
	c.stats = make(map[string]statsEntry)
	c.board = nil
	c.mu.Unlock()
}

// Cleanup removes expired entries and returns how many were dropped
func (c *CachedStore) Cleanup() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, entry := range c.stats {
		if !now.Before(entry.expiresAt) {
			delete(c.stats, id)
			removed++
		}
	}
	if c.board != nil && !now.Before(c.board.expiresAt) {
		c.board = nil
	}
	if removed > 0 {
		log.WithFields(log.Fields{"removed": removed, "size": len(c.stats)}).Debug("Cleaned up expired stats cache entries")
	}
	return removed
}

// Stats returns cache usage counters
func (c *CachedStore) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Size: len(c.stats), TTL: c.ttl, Hits: c.hits, Misses: c.misses}
}

func clonePlayers(in []models.PlayerStats) []models.PlayerStats {
	out := make([]models.PlayerStats, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}
