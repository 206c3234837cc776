package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"dice-derby/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// ErrNegativeBalance is returned when an update would leave a balance below zero
var ErrNegativeBalance = errors.New("token balance cannot go negative")

var (
	DB            *pgxpool.Pool
	dbInitialized = false
	dbMutex       sync.RWMutex
)

// SetupDatabase initializes the database connection pool and makes sure the tables exist
func SetupDatabase(ctx context.Context, databaseURL string) error {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	if dbInitialized {
		return nil
	}
	if databaseURL == "" {
		return errors.New("DATABASE_URL is empty")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 45 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second
	config.ConnConfig.RuntimeParams = map[string]string{
		"application_name":                    "dice-derby",
		"timezone":                            "UTC",
		"statement_timeout":                   "30s",
		"idle_in_transaction_session_timeout": "60s",
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to reach database: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return err
	}

	DB = pool
	dbInitialized = true
	return nil
}

// CloseDatabase closes the database connection pool
func CloseDatabase() {
	dbMutex.Lock()
	defer dbMutex.Unlock()

	if DB != nil {
		DB.Close()
		DB = nil
		dbInitialized = false
	}
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	query := `CREATE TABLE IF NOT EXISTS race_tokens (
		player_id TEXT PRIMARY KEY,
		tokens BIGINT NOT NULL DEFAULT 0 CHECK (tokens >= 0),
		last_daily_claim TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS race_stats (
		player_id TEXT PRIMARY KEY,
		races INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		total_won BIGINT NOT NULL DEFAULT 0,
		best_finish INTEGER NOT NULL DEFAULT 0,
		podiums INTEGER NOT NULL DEFAULT 0,
		win_streak INTEGER NOT NULL DEFAULT 0,
		best_win_streak INTEGER NOT NULL DEFAULT 0,
		achievements JSONB NOT NULL DEFAULT '{}'::jsonb,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_race_stats_board ON race_stats(wins DESC, total_won DESC);
	CREATE TABLE IF NOT EXISTS race_audit (
		id BIGSERIAL PRIMARY KEY,
		race_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		seed BIGINT NOT NULL,
		tier TEXT NOT NULL,
		guild_id TEXT NOT NULL DEFAULT '',
		record JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_race_audit_race ON race_audit(race_id);`
	if _, err := pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create race tables: %w", err)
	}
	return nil
}

// PostgresStore keeps token balances and season stats in PostgreSQL.
// Updates lock the row with SELECT ... FOR UPDATE for the length of the callback.
type PostgresStore struct {
	pool           *pgxpool.Pool
	startingTokens int64
}

// NewPostgresStore creates a store on an open pool
func NewPostgresStore(pool *pgxpool.Pool, startingTokens int64) *PostgresStore {
	return &PostgresStore{pool: pool, startingTokens: startingTokens}
}

const statsColumns = `player_id, races, wins, total_won, best_finish, podiums, win_streak, best_win_streak, achievements, updated_at`

// GetTokens returns a balance, creating it with the starting allowance on first access
func (s *PostgresStore) GetTokens(ctx context.Context, playerID string) (models.TokenBalance, error) {
	b := models.TokenBalance{PlayerID: playerID}
	err := s.pool.QueryRow(ctx, `SELECT tokens, last_daily_claim FROM race_tokens WHERE player_id = $1`, playerID).
		Scan(&b.Tokens, &b.LastDailyClaim)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.UpdateTokens(ctx, playerID, func(*models.TokenBalance) error { return nil })
	}
	if err != nil {
		return models.TokenBalance{}, fmt.Errorf("failed to get tokens: %w", err)
	}
	return b, nil
}

// UpdateTokens runs fn against the locked balance and writes the result
func (s *PostgresStore) UpdateTokens(ctx context.Context, playerID string, fn func(*models.TokenBalance) error) (models.TokenBalance, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.TokenBalance{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO race_tokens (player_id, tokens) VALUES ($1, $2) ON CONFLICT (player_id) DO NOTHING`,
		playerID, s.startingTokens); err != nil {
		return models.TokenBalance{}, fmt.Errorf("failed to create token balance: %w", err)
	}

	b := models.TokenBalance{PlayerID: playerID}
	if err := tx.QueryRow(ctx, `SELECT tokens, last_daily_claim FROM race_tokens WHERE player_id = $1 FOR UPDATE`, playerID).
		Scan(&b.Tokens, &b.LastDailyClaim); err != nil {
		return models.TokenBalance{}, fmt.Errorf("failed to lock token balance: %w", err)
	}

	if err := fn(&b); err != nil {
		return models.TokenBalance{}, err
	}
	if b.Tokens < 0 {
		return models.TokenBalance{}, ErrNegativeBalance
	}

	if _, err := tx.Exec(ctx, `UPDATE race_tokens SET tokens = $2, last_daily_claim = $3 WHERE player_id = $1`,
		playerID, b.Tokens, b.LastDailyClaim); err != nil {
		return models.TokenBalance{}, fmt.Errorf("failed to update tokens: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.TokenBalance{}, fmt.Errorf("failed to commit tokens: %w", err)
	}
	return b, nil
}

// GetStats returns a player's stats, or empty stats if they have none this season
func (s *PostgresStore) GetStats(ctx context.Context, playerID string) (models.PlayerStats, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+statsColumns+` FROM race_stats WHERE player_id = $1`, playerID)
	stats, err := scanStats(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.NewPlayerStats(playerID), nil
	}
	if err != nil {
		return models.PlayerStats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// UpdateStats runs fn against the locked stats row and writes the result
func (s *PostgresStore) UpdateStats(ctx context.Context, playerID string, fn func(*models.PlayerStats) error) (models.PlayerStats, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.PlayerStats{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO race_stats (player_id) VALUES ($1) ON CONFLICT (player_id) DO NOTHING`, playerID); err != nil {
		return models.PlayerStats{}, fmt.Errorf("failed to create stats: %w", err)
	}

	stats, err := scanStats(tx.QueryRow(ctx, `SELECT `+statsColumns+` FROM race_stats WHERE player_id = $1 FOR UPDATE`, playerID))
	if err != nil {
		return models.PlayerStats{}, fmt.Errorf("failed to lock stats: %w", err)
	}

	if err := fn(&stats); err != nil {
		return models.PlayerStats{}, err
	}

	achievements, err := json.Marshal(stats.Achievements)
	if err != nil {
		return models.PlayerStats{}, fmt.Errorf("failed to encode achievements: %w", err)
	}
	if stats.UpdatedAt.IsZero() {
		stats.UpdatedAt = time.Now()
	}

	if _, err := tx.Exec(ctx, `UPDATE race_stats SET
		races = $2, wins = $3, total_won = $4, best_finish = $5, podiums = $6,
		win_streak = $7, best_win_streak = $8, achievements = $9::jsonb, updated_at = $10
		WHERE player_id = $1`,
		playerID, stats.Races, stats.Wins, stats.TotalWon, stats.BestFinish, stats.Podiums,
		stats.WinStreak, stats.BestWinStreak, string(achievements), stats.UpdatedAt); err != nil {
		return models.PlayerStats{}, fmt.Errorf("failed to update stats: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return models.PlayerStats{}, fmt.Errorf("failed to commit stats: %w", err)
	}
	return stats, nil
}

// TopStats returns the season leaderboard
func (s *PostgresStore) TopStats(ctx context.Context, limit int) ([]models.PlayerStats, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+statsColumns+` FROM race_stats
		WHERE races > 0
		ORDER BY wins DESC, total_won DESC, player_id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []models.PlayerStats
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

// ResetSeason deletes every stats row. Token balances live in their own table and are untouched.
func (s *PostgresStore) ResetSeason(ctx context.Context) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM race_stats`)
	if err != nil {
		return fmt.Errorf("failed to clear stats: %w", err)
	}
	log.WithField("rows", tag.RowsAffected()).Info("Season stats cleared")
	return nil
}

func scanStats(row pgx.Row) (models.PlayerStats, error) {
	var stats models.PlayerStats
	var achievements []byte
	if err := row.Scan(&stats.PlayerID, &stats.Races, &stats.Wins, &stats.TotalWon, &stats.BestFinish,
		&stats.Podiums, &stats.WinStreak, &stats.BestWinStreak, &achievements, &stats.UpdatedAt); err != nil {
		return models.PlayerStats{}, err
	}
	stats.Achievements = make(map[string]time.Time)
	if len(achievements) > 0 {
		if err := json.Unmarshal(achievements, &stats.Achievements); err != nil {
			// a corrupt blob shouldn't lock a player out of racing
			log.WithField("player_id", stats.PlayerID).WithError(err).Warn("Discarding unreadable achievements")
			stats.Achievements = make(map[string]time.Time)
		}
	}
	return stats, nil
}
