// Package repo implements the data persistence layer. This file provides
// repository helpers for the Idempotency model, used to answer redelivered
// interactions (submit, claim, resolve) with their original response.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
)

var (
	// ErrNotFound is returned when no live idempotency record matches.
	// It aliases gorm.ErrRecordNotFound.
	ErrNotFound = gorm.ErrRecordNotFound

	// ErrDuplicate indicates that an idempotency record already exists for the
	// given (user_id, target, key) tuple.
	ErrDuplicate = errors.New("duplicate")
)

// GetIdempotency returns a non-expired record or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, target, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(target) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("user_id = ? AND target = ? AND key = ? AND expires_at > ?", userID, target, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency inserts a record and returns ErrDuplicate on unique violation.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, target, key, caseID string, status int, response []byte, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:        uuid.NewString(),
		UserID:    userID,
		Target:    target,
		Key:       key,
		CaseID:    caseID,
		Status:    status,
		Response:  string(response),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// IdempotencyRepo binds the idempotency helpers to a database handle and a
// retention window, for consumers that depend on an interface.
type IdempotencyRepo struct {
	DB  *gorm.DB
	TTL time.Duration
}

// Lookup proxies GetIdempotency.
func (r IdempotencyRepo) Lookup(ctx context.Context, userID, target, key string, now time.Time) (*domain.Idempotency, error) {
	return GetIdempotency(ctx, r.DB, userID, target, key, now)
}

// Save proxies CreateIdempotency. A duplicate is not an error: the first
// stored response wins.
func (r IdempotencyRepo) Save(ctx context.Context, userID, target, key, caseID string, status int, response []byte) error {
	ttl := r.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := CreateIdempotency(ctx, r.DB, userID, target, key, caseID, status, response, ttl)
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}

// PurgeExpiredIdempotency deletes records whose window closed at or before
// now and returns how many were removed.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}

// Purge proxies PurgeExpiredIdempotency.
func (r IdempotencyRepo) Purge(ctx context.Context, now time.Time) (int64, error) {
	return PurgeExpiredIdempotency(ctx, r.DB, now)
}
