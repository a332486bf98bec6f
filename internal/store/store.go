package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrClosed = errors.New("store closed")

// RoundRecord is one completed round: every pose was performed and the
// exact time was revealed.
type RoundRecord struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	KioskCode   string    `gorm:"index;not null" json:"kiosk"`
	Round       uint64    `gorm:"not null" json:"round"`
	Poses       []int     `gorm:"serializer:json" json:"poses"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `gorm:"index" json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

func NewRoundRecord(code string, round uint64, poses []int, started, completed time.Time) RoundRecord {
	return RoundRecord{
		ID:          uuid.NewString(),
		KioskCode:   code,
		Round:       round,
		Poses:       slices.Clone(poses),
		StartedAt:   started,
		CompletedAt: completed,
		DurationMs:  completed.Sub(started).Milliseconds(),
	}
}

type Store interface {
	RecordRound(ctx context.Context, r RoundRecord) error
	RecentRounds(ctx context.Context, code string, limit int) ([]RoundRecord, error)
	Close() error
}

var _ Store = (*Postgres)(nil)
var _ Store = (*Memory)(nil)

// Postgres persists rounds with gorm over the pgx-backed postgres driver.
type Postgres struct {
	db *gorm.DB
}

func Open(dsn string) (*Postgres, error) {
	return open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// open releases the connection pool on every failure path.
func open(dialector gorm.Dialector, cfg *gorm.Config) (*Postgres, error) {
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		if db != nil && db.ConnPool != nil {
			err = multierr.Append(err, closeDB(db))
		}
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&RoundRecord{}); err != nil {
		return nil, multierr.Append(fmt.Errorf("migrate: %w", err), closeDB(db))
	}
	return &Postgres{db: db}, nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Postgres) RecordRound(ctx context.Context, r RoundRecord) error {
	if err := p.db.WithContext(ctx).Create(&r).Error; err != nil {
		return fmt.Errorf("insert round %s: %w", r.ID, err)
	}
	return nil
}

func (p *Postgres) RecentRounds(ctx context.Context, code string, limit int) ([]RoundRecord, error) {
	var out []RoundRecord
	err := p.db.WithContext(ctx).
		Where("kiosk_code = ?", code).
		Order("completed_at desc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query rounds for %s: %w", code, err)
	}
	return out, nil
}

func (p *Postgres) Close() error { return closeDB(p.db) }

// Memory keeps rounds in process. Used when no database is configured.
type Memory struct {
	mu     sync.Mutex
	rounds []RoundRecord
	closed bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) RecordRound(ctx context.Context, r RoundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.rounds = append(m.rounds, r)
	return nil
}

// RecentRounds returns newest first.
func (m *Memory) RecentRounds(ctx context.Context, code string, limit int) ([]RoundRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := []RoundRecord{}
	for i := len(m.rounds) - 1; i >= 0 && len(out) < limit; i-- {
		if m.rounds[i].KioskCode == code {
			out = append(out, m.rounds[i])
		}
	}
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
