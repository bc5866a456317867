// Package ledger persists positions with Gorm + SQLite so a restart can pick
// up exactly where the previous process stopped.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// ErrConflict is returned when an entry is attempted while another position
// is still pending or open.
var ErrConflict = errors.New("a live position already exists")

type Store struct {
	db    *gorm.DB
	nowFn func() time.Time
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger: db path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Position{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a little parallelism for HTTP status reads while the
	// session loop writes.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db, nowFn: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Open records a new pending position. At most one live position may exist
// at a time; a second insert fails with ErrConflict.
func (s *Store) Open(ctx context.Context, pos *Position) error {
	now := s.nowFn().Unix()
	pos.Status = StatusPending
	pos.CreatedAtUnix = now
	pos.UpdatedAtUnix = now
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Position{}).
			Where("status IN ?", []Status{StatusPending, StatusOpen}).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrConflict
		}
		return tx.Create(pos).Error
	})
}

// Update persists the current state of a live position.
func (s *Store) Update(ctx context.Context, pos *Position) error {
	pos.UpdatedAtUnix = s.nowFn().Unix()
	return s.db.WithContext(ctx).Save(pos).Error
}

// CloseOut marks the position closed with the given reason and exit fill,
// computing realized PnL from the premiums.
func (s *Store) CloseOut(ctx context.Context, pos *Position, reason string, exitOrderID string, exitPremium float64) error {
	pos.Status = StatusClosed
	pos.ExitReason = reason
	pos.ExitOrderID = exitOrderID
	pos.ExitPremium = exitPremium
	pos.PnL = (exitPremium - pos.EntryPremium) * float64(pos.Quantity)
	return s.Update(ctx, pos)
}

// Live returns the pending or open position, or nil when flat.
func (s *Store) Live(ctx context.Context) (*Position, error) {
	var pos Position
	err := s.db.WithContext(ctx).
		Where("status IN ?", []Status{StatusPending, StatusOpen}).
		Order("id DESC").
		First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// ForDay returns all positions recorded for a trading day, oldest first.
func (s *Store) ForDay(ctx context.Context, day string) ([]Position, error) {
	var out []Position
	err := s.db.WithContext(ctx).
		Where("day = ?", day).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
