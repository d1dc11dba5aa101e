// Package repo implements the data persistence layer for the room event log,
// backed by GORM. This file provides the append-only event repository.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/duochat/duochat/internal/domain"
)

// AppendEvent inserts one event row and returns it with the store-assigned
// id. Appends for a given room must be serialized by the caller; under that
// single-writer discipline SQLite's rowid assignment keeps ids strictly
// increasing with no gaps.
func AppendEvent(ctx context.Context, db *gorm.DB, kind, author, text string, timestamp int64) (*domain.ChatEvent, error) {
	e := &domain.ChatEvent{
		Kind:      kind,
		Author:    author,
		Text:      text,
		Timestamp: timestamp,
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// RecentEvents returns up to limit events ordered newest first. Read-only.
func RecentEvents(ctx context.Context, db *gorm.DB, limit int) ([]domain.ChatEvent, error) {
	var out []domain.ChatEvent
	q := db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountEvents uses a raw COUNT so a missing table surfaces as an error.
func CountEvents(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM events").Scan(&total).Error
	return total, err
}
