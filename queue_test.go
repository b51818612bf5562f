package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func seedAlertAt(t *testing.T, db *gorm.DB, category string, createdAt time.Time) Alert {
	t.Helper()

	a := Alert{
		AlertsID:  uuid.NewString(),
		Title:     "test " + category,
		Category:  category,
		CreatedBy: uuid.NewString(),
	}
	a.CreatedAt = createdAt
	if err := db.Create(&a).Error; err != nil {
		t.Fatalf("seeding alert: %v", err)
	}
	return a
}

func TestQueueEnqueueSetsTTL(t *testing.T) {
	db := newTestDB(t)
	mr, rdb := newTestRedis(t)
	q := NewOfflineQueue(rdb, db)
	ctx := context.Background()

	user := uuid.NewString()
	a := seedAlert(t, db, "jobs", 0, 0)
	if err := q.Enqueue(ctx, user, a.AlertsID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ttl := mr.TTL(queueKey(user))
	if ttl <= 0 || ttl > offlineQueueTTL {
		t.Errorf("queue TTL = %v, want (0, %v]", ttl, offlineQueueTTL)
	}
}

func TestQueueDrainNewestFirst(t *testing.T) {
	db := newTestDB(t)
	_, rdb := newTestRedis(t)
	q := NewOfflineQueue(rdb, db)
	ctx := context.Background()

	now := time.Now()
	older := seedAlertAt(t, db, "jobs", now.Add(-time.Hour))
	newer := seedAlertAt(t, db, "jobs", now)

	user := uuid.NewString()
	// Enqueue oldest first, as distribution would.
	if err := q.Enqueue(ctx, user, older.AlertsID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, user, newer.AlertsID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	alerts, err := q.DrainAndFetch(ctx, user)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("drained %d alerts, want 2", len(alerts))
	}
	if alerts[0].AlertsID != newer.AlertsID || alerts[1].AlertsID != older.AlertsID {
		t.Errorf("drain order = [%s %s], want newest first", alerts[0].AlertsID, alerts[1].AlertsID)
	}
}

func TestQueueDrainClearsQueue(t *testing.T) {
	db := newTestDB(t)
	_, rdb := newTestRedis(t)
	q := NewOfflineQueue(rdb, db)
	ctx := context.Background()

	user := uuid.NewString()
	a := seedAlert(t, db, "jobs", 0, 0)
	if err := q.Enqueue(ctx, user, a.AlertsID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	first, err := q.DrainAndFetch(ctx, user)
	if err != nil {
		t.Fatalf("first drain: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first drain = %d alerts, want 1", len(first))
	}

	second, err := q.DrainAndFetch(ctx, user)
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second drain = %d alerts, want 0", len(second))
	}
}

func TestQueueDrainEmptyIsNotAnError(t *testing.T) {
	db := newTestDB(t)
	_, rdb := newTestRedis(t)
	q := NewOfflineQueue(rdb, db)

	alerts, err := q.DrainAndFetch(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("drain empty: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("drain empty = %d alerts, want 0", len(alerts))
	}
}

func TestQueueDrainDropsInvalidIDs(t *testing.T) {
	db := newTestDB(t)
	mr, rdb := newTestRedis(t)
	q := NewOfflineQueue(rdb, db)
	ctx := context.Background()

	user := uuid.NewString()
	a := seedAlert(t, db, "jobs", 0, 0)
	if err := q.Enqueue(ctx, user, "not-a-uuid"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, user, a.AlertsID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	alerts, err := q.DrainAndFetch(ctx, user)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(alerts) != 1 || alerts[0].AlertsID != a.AlertsID {
		t.Fatalf("drain = %+v, want just the valid alert", alerts)
	}

	// All-garbage queue is cleared outright.
	if err := q.Enqueue(ctx, user, "garbage"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	alerts, err = q.DrainAndFetch(ctx, user)
	if err != nil {
		t.Fatalf("drain garbage: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("drain garbage = %d alerts, want 0", len(alerts))
	}
	if mr.Exists(queueKey(user)) {
		t.Error("garbage queue still exists after drain")
	}
}

func TestQueueDrainSkipsDeletedAlerts(t *testing.T) {
	db := newTestDB(t)
	_, rdb := newTestRedis(t)
	q := NewOfflineQueue(rdb, db)
	ctx := context.Background()

	user := uuid.NewString()
	a := seedAlert(t, db, "jobs", 0, 0)
	if err := q.Enqueue(ctx, user, a.AlertsID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := db.Where("alertid = ?", a.AlertsID).Delete(&Alert{}).Error; err != nil {
		t.Fatalf("deleting alert: %v", err)
	}

	alerts, err := q.DrainAndFetch(ctx, user)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("drain = %d alerts, want 0 for deleted alert", len(alerts))
	}
}
