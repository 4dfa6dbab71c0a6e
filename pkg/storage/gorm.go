// Package storage provides the GORM-backed post store, with SQLite and
// PostgreSQL drivers.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/publora/publora/pkg/core"
)

// ErrPostNotFound is returned when a post ID does not exist.
var ErrPostNotFound = errors.New("storage: post not found")

// Open connects to the database behind a DSN. A postgres:// or postgresql://
// prefix selects PostgreSQL, everything else is treated as a SQLite path
// (use ":memory:" for tests).
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return gorm.Open(postgres.Open(dsn), cfg)
	}
	return gorm.Open(sqlite.Open(dsn), cfg)
}

// GormPostStore implements core.PostStore using GORM.
type GormPostStore struct {
	db *gorm.DB
}

// NewGormPostStore creates a GORM-backed post store.
func NewGormPostStore(db *gorm.DB) *GormPostStore {
	return &GormPostStore{db: db}
}

// Migrate creates the necessary tables.
func (s *GormPostStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&core.ScheduledPost{})
}

// Create persists a new post. Missing IDs are generated; a zero status
// defaults to scheduled.
func (s *GormPostStore) Create(ctx context.Context, post *core.ScheduledPost) error {
	if post.ID == "" {
		post.ID = uuid.New().String()
	}
	if post.Status == "" {
		post.Status = core.PostStatusScheduled
	}
	return s.db.WithContext(ctx).Create(post).Error
}

// Get loads a post by ID.
func (s *GormPostStore) Get(ctx context.Context, id string) (*core.ScheduledPost, error) {
	var post core.ScheduledPost
	err := s.db.WithContext(ctx).First(&post, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// LoadDuePosts returns scheduled posts whose time has arrived, oldest first.
func (s *GormPostStore) LoadDuePosts(ctx context.Context, now time.Time, limit int) ([]*core.ScheduledPost, error) {
	var posts []*core.ScheduledPost
	q := s.db.WithContext(ctx).
		Where("status = ?", core.PostStatusScheduled).
		Where("scheduled_for <= ?", now).
		Order("scheduled_for ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// MarkProcessing flips a post from scheduled to processing. The status guard
// in the WHERE clause makes concurrent dispatchers race safely: exactly one
// caller sees true.
func (s *GormPostStore) MarkProcessing(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&core.ScheduledPost{}).
		Where("id = ?", id).
		Where("status = ?", core.PostStatusScheduled).
		Update("status", core.PostStatusProcessing)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// UpdateStatus sets the post status and, when results is non-nil, replaces
// the per-platform result map.
func (s *GormPostStore) UpdateStatus(ctx context.Context, id string, status core.PostStatus, results map[core.Platform]core.PublishResult) error {
	updates := map[string]any{"status": status}
	if results != nil {
		updates["results"] = results
	}

	result := s.db.WithContext(ctx).
		Model(&core.ScheduledPost{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}
	return nil
}

// SaveResult merges one platform result into the post's result map without
// touching the status. Read-modify-write inside a transaction keeps
// concurrent per-platform saves from clobbering each other.
func (s *GormPostStore) SaveResult(ctx context.Context, id string, result core.PublishResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx
		if tx.Dialector.Name() != "sqlite" {
			// SQLite serializes writers on its own; everything else takes a
			// row lock for the read-modify-write.
			q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var post core.ScheduledPost
		err := q.First(&post, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrPostNotFound, id)
		}
		if err != nil {
			return err
		}

		if post.Results == nil {
			post.Results = make(map[core.Platform]core.PublishResult)
		}
		post.Results[result.Platform] = result

		return tx.Model(&core.ScheduledPost{}).
			Where("id = ?", id).
			Update("results", post.Results).Error
	})
}

// CountOverdue counts scheduled posts whose scheduled_for is already past.
func (s *GormPostStore) CountOverdue(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&core.ScheduledPost{}).
		Where("status = ?", core.PostStatusScheduled).
		Where("scheduled_for < ?", now).
		Count(&count).Error
	return count, err
}
