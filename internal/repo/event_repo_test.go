package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/duochat/duochat/internal/domain"
)

// test DB helper
func newEventDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("events_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.ChatEvent{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestAppendEvent_AssignsStrictlyIncreasingIDs(t *testing.T) {
	db := newEventDB(t)
	ctx := context.Background()

	var last uint64
	for i := 0; i < 5; i++ {
		e, err := AppendEvent(ctx, db, domain.KindMessage, "alice", fmt.Sprintf("msg %d", i), int64(i))
		if err != nil {
			t.Fatalf("AppendEvent(%d): %v", i, err)
		}
		if e.ID != last+1 {
			t.Fatalf("event %d assigned id %d; want %d (gap-free, strictly increasing)", i, e.ID, last+1)
		}
		last = e.ID
	}
}

func TestRecentEvents_NewestFirstAndCapped(t *testing.T) {
	db := newEventDB(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := AppendEvent(ctx, db, domain.KindMessage, "bob", fmt.Sprintf("msg %d", i), int64(i)); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	got, err := RecentEvents(ctx, db, 3)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d; want 3", len(got))
	}
	// Newest first, and a suffix of the full log.
	if got[0].ID != 8 || got[1].ID != 7 || got[2].ID != 6 {
		t.Fatalf("ids = %d,%d,%d; want 8,7,6", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestRecentEvents_NoLimitReturnsAll(t *testing.T) {
	db := newEventDB(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := AppendEvent(ctx, db, domain.KindSystem, "", "notice", int64(i)); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	got, err := RecentEvents(ctx, db, 0)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d; want 4", len(got))
	}
}

func TestCountEvents(t *testing.T) {
	db := newEventDB(t)
	ctx := context.Background()

	if _, err := AppendEvent(ctx, db, domain.KindMessage, "alice", "hi", 1); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	total, err := CountEvents(ctx, db)
	if err != nil {
		t.Fatalf("CountEvents: %v", err)
	}
	if total != 1 {
		t.Fatalf("total = %d; want 1", total)
	}
}
