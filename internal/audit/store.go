package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// EntryModel is the database row for one audit entry.
type EntryModel struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"index"`
	Tool      string    `gorm:"size:64;index"`
	Arguments string    `gorm:"type:text"` // JSON-encoded raw arguments.
	Success   bool
	Output    string `gorm:"type:text"`
	Error     string `gorm:"type:text"`
	ExitCode  int
	ElapsedMS int64
	SandboxID string `gorm:"size:128"`
	UserID    string `gorm:"size:128;index"`
	SessionID string `gorm:"size:128"`
}

// TableName keeps the table name stable across gorm naming strategies.
func (EntryModel) TableName() string { return "audit_entries" }

// GormStore implements Store on a gorm database handle.
// Append-only: this is the only write method on the type.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the audit table and returns the store.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&EntryModel{}); err != nil {
		return nil, fmt.Errorf("migrating audit table: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Append inserts a single entry.
func (s *GormStore) Append(ctx context.Context, e Entry) error {
	args, _ := json.Marshal(e.Arguments)
	model := EntryModel{
		CreatedAt: e.Timestamp,
		Tool:      e.Tool,
		Arguments: string(args),
		Success:   e.Success,
		Output:    e.Output,
		Error:     e.Error,
		ExitCode:  e.ExitCode,
		ElapsedMS: e.ElapsedMS,
		SandboxID: e.SandboxID,
		UserID:    e.UserID,
		SessionID: e.SessionID,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. Limit defaults to 100.
func (s *GormStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	var models []EntryModel
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}

	entries := make([]Entry, len(models))
	for i, m := range models {
		var args map[string]any
		_ = json.Unmarshal([]byte(m.Arguments), &args)
		entries[i] = Entry{
			Timestamp: m.CreatedAt,
			Tool:      m.Tool,
			Arguments: args,
			Success:   m.Success,
			Output:    m.Output,
			Error:     m.Error,
			ExitCode:  m.ExitCode,
			ElapsedMS: m.ElapsedMS,
			SandboxID: m.SandboxID,
			UserID:    m.UserID,
			SessionID: m.SessionID,
		}
	}
	return entries, nil
}

// OpenSQLite opens (or creates) a SQLite-backed audit store.
// Uses modernc sqlite through the glebarez GORM driver — pure Go, no CGO.
func OpenSQLite(path string) (*GormStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	return NewGormStore(db)
}

// OpenPostgres opens a PostgreSQL-backed audit store for shared deployments.
func OpenPostgres(dsn string) (*GormStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}
	return NewGormStore(db)
}
