package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"dice-derby/models"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// AuditSink is anything that can keep a race audit record
type AuditSink interface {
	Record(ctx context.Context, rec models.AuditRecord) error
}

// AuditReader looks up the records written for a race, oldest first
type AuditReader interface {
	Lookup(ctx context.Context, raceID string) ([]models.AuditRecord, error)
}

// ErrAuditNotFound is returned when no records exist for a race
var ErrAuditNotFound = errors.New("no audit records for race")

// LogAudit writes audit records to the application log
type LogAudit struct{}

func (LogAudit) Record(_ context.Context, rec models.AuditRecord) error {
	entry := log.WithFields(log.Fields{
		"audit":    rec.Kind,
		"race_id":  rec.RaceID,
		"seed":     rec.Seed,
		"tier":     rec.Tier,
		"mode":     rec.Mode,
		"guild_id": rec.GuildID,
	})
	switch rec.Kind {
	case models.AuditRaceStart:
		entry.WithField("participants", len(rec.Participants)).Info("Race audit")
	case models.AuditRaceFailed:
		entry.WithField("error", rec.Error).Warn("Race audit")
	default:
		entry.WithFields(log.Fields{
			"photo_finish": rec.PhotoFinish,
			"payouts":      len(rec.Payouts),
			"frozen":       rec.Frozen,
		}).Info("Race audit")
	}
	return nil
}

// MultiAudit fans a record out to several sinks
type MultiAudit []AuditSink

func (m MultiAudit) Record(ctx context.Context, rec models.AuditRecord) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RedisAudit keeps audit records in Redis: one list per race with a TTL, plus
// a capped list of recent race ids.
type RedisAudit struct {
	client    *redis.Client
	ttl       time.Duration
	recentCap int64
}

const (
	redisAuditPrefix = "derby:audit:race:"
	redisRecentKey   = "derby:audit:recent"
)

// NewRedisClient connects to Redis and checks the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisAudit creates a Redis audit sink
func NewRedisAudit(client *redis.Client, ttl time.Duration) *RedisAudit {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisAudit{client: client, ttl: ttl, recentCap: 1000}
}

func (r *RedisAudit) Record(ctx context.Context, rec models.AuditRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}
	key := redisAuditPrefix + rec.RaceID
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.Expire(ctx, key, r.ttl)
		if rec.Kind == models.AuditRaceStart {
			pipe.LPush(ctx, redisRecentKey, rec.RaceID)
			pipe.LTrim(ctx, redisRecentKey, 0, r.recentCap-1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

func (r *RedisAudit) Lookup(ctx context.Context, raceID string) ([]models.AuditRecord, error) {
	raw, err := r.client.LRange(ctx, redisAuditPrefix+raceID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read audit records: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrAuditNotFound
	}
	return decodeAuditRecords(raw)
}

// Recent returns the most recently started race ids
func (r *RedisAudit) Recent(ctx context.Context, n int64) ([]string, error) {
	ids, err := r.client.LRange(ctx, redisRecentKey, 0, n-1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read recent races: %w", err)
	}
	return ids, nil
}

// PostgresAudit appends audit records to the race_audit table
type PostgresAudit struct {
	pool *pgxpool.Pool
}

// NewPostgresAudit creates a PostgreSQL audit sink
func NewPostgresAudit(pool *pgxpool.Pool) *PostgresAudit {
	return &PostgresAudit{pool: pool}
}

func (p *PostgresAudit) Record(ctx context.Context, rec models.AuditRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}
	if _, err := p.pool.Exec(ctx, `INSERT INTO race_audit (race_id, kind, seed, tier, guild_id, record)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)`,
		rec.RaceID, rec.Kind, int64(rec.Seed), rec.Tier, rec.GuildID, string(payload)); err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

func (p *PostgresAudit) Lookup(ctx context.Context, raceID string) ([]models.AuditRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT record::text FROM race_audit WHERE race_id = $1 ORDER BY id`, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var raw []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		raw = append(raw, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrAuditNotFound
	}
	return decodeAuditRecords(raw)
}

// MemoryAudit keeps records in memory. Used when neither Redis nor PostgreSQL is configured.
type MemoryAudit struct {
	mu      sync.Mutex
	records map[string][]models.AuditRecord
}

// NewMemoryAudit creates an in-memory audit sink
func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{records: make(map[string][]models.AuditRecord)}
}

func (m *MemoryAudit) Record(_ context.Context, rec models.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.RaceID] = append(m.records[rec.RaceID], rec)
	return nil
}

func (m *MemoryAudit) Lookup(_ context.Context, raceID string) ([]models.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs, ok := m.records[raceID]
	if !ok {
		return nil, ErrAuditNotFound
	}
	return append([]models.AuditRecord(nil), recs...), nil
}

func decodeAuditRecords(raw []string) ([]models.AuditRecord, error) {
	out := make([]models.AuditRecord, 0, len(raw))
	for _, s := range raw {
		var rec models.AuditRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode audit record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
