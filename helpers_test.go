package main

import (
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v9"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB creates an in-memory store with all migrations applied and
// closes it when the test completes.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("creating test db: %v", err)
	}
	if err := db.AutoMigrate(new(User), new(UserInterest), new(Alert), new(Notification)); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
	})
	return mr, rdb
}

func seedUser(t *testing.T, db *gorm.DB, lon, lat, radius float64, interests ...string) string {
	t.Helper()

	id := uuid.NewString()
	if err := db.Create(&User{
		UsersID:     id,
		Longitude:   lon,
		Latitude:    lat,
		AlertRadius: radius,
	}).Error; err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	for _, tag := range interests {
		if err := db.Create(&UserInterest{UsersID: id, Tag: tag}).Error; err != nil {
			t.Fatalf("seeding interest: %v", err)
		}
	}
	return id
}

func seedAlert(t *testing.T, db *gorm.DB, category string, lon, lat float64) Alert {
	t.Helper()

	a := Alert{
		AlertsID:  uuid.NewString(),
		Title:     "test " + category,
		Category:  category,
		Longitude: lon,
		Latitude:  lat,
		CreatedBy: uuid.NewString(),
	}
	if err := db.Create(&a).Error; err != nil {
		t.Fatalf("seeding alert: %v", err)
	}
	return a
}

type sentEvent struct {
	ConnID string
	Event  ClientEvent
}

// fakeSender records every delivered event.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (f *fakeSender) Send(connID string, ev ClientEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{ConnID: connID, Event: ev})
	return nil
}

func (f *fakeSender) events() []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentEvent, len(f.sent))
	copy(out, f.sent)
	return out
}
