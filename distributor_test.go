package main

import (
	"context"
	"errors"
	"testing"
)

func TestDistributeQueuesForOfflineUser(t *testing.T) {
	db := newTestDB(t)
	mr, rdb := newTestRedis(t)
	registry := NewRegistry()
	ledger := NewLedger(db)
	queue := NewOfflineQueue(rdb, db)
	sender := &fakeSender{}
	d := NewDistributor(db, registry, ledger, queue, sender)
	ctx := context.Background()

	user := seedUser(t, db, 0, 0, 3000, "jobs")
	alert := seedAlert(t, db, "jobs", 0, 0.02) // ~2,225 m away

	d.Distribute(ctx, NewAlertPayload(alert))

	if got := sender.events(); len(got) != 0 {
		t.Errorf("offline user got %d live events, want 0", len(got))
	}

	var count int64
	if err := db.Model(&Notification{}).
		Where("userid = ? AND kind = ?", user, DeliveryQueued).
		Count(&count).Error; err != nil {
		t.Fatalf("counting notifications: %v", err)
	}
	if count != 1 {
		t.Errorf("queued notifications = %d, want 1", count)
	}

	ids, err := mr.List(queueKey(user))
	if err != nil {
		t.Fatalf("reading queue: %v", err)
	}
	if len(ids) != 1 || ids[0] != alert.AlertsID {
		t.Errorf("queue = %v, want [%s]", ids, alert.AlertsID)
	}
}

func TestDistributeSkipsUserOutsidePersonalRadius(t *testing.T) {
	db := newTestDB(t)
	mr, rdb := newTestRedis(t)
	registry := NewRegistry()
	ledger := NewLedger(db)
	queue := NewOfflineQueue(rdb, db)
	sender := &fakeSender{}
	d := NewDistributor(db, registry, ledger, queue, sender)

	// Inside the hard cap but outside the personal 1,000 m radius.
	user := seedUser(t, db, 0, 0, 1000, "jobs")
	alert := seedAlert(t, db, "jobs", 0, 0.02)

	d.Distribute(context.Background(), NewAlertPayload(alert))

	var count int64
	if err := db.Model(&Notification{}).Where("userid = ?", user).Count(&count).Error; err != nil {
		t.Fatalf("counting notifications: %v", err)
	}
	if count != 0 {
		t.Errorf("notifications = %d, want 0", count)
	}
	if got := sender.events(); len(got) != 0 {
		t.Errorf("live events = %d, want 0", len(got))
	}
	if mr.Exists(queueKey(user)) {
		t.Error("queue entry exists for non-admitted user")
	}
}

func TestDistributeSkipsUninterestedUser(t *testing.T) {
	db := newTestDB(t)
	_, rdb := newTestRedis(t)
	d := NewDistributor(db, NewRegistry(), NewLedger(db), NewOfflineQueue(rdb, db), &fakeSender{})

	user := seedUser(t, db, 0, 0, 3000, "tutoring")
	alert := seedAlert(t, db, "jobs", 0, 0)

	d.Distribute(context.Background(), NewAlertPayload(alert))

	var count int64
	if err := db.Model(&Notification{}).Where("userid = ?", user).Count(&count).Error; err != nil {
		t.Fatalf("counting notifications: %v", err)
	}
	if count != 0 {
		t.Errorf("notifications = %d, want 0 for uninterested user", count)
	}
}

func TestDistributeFansOutToAllConnections(t *testing.T) {
	db := newTestDB(t)
	mr, rdb := newTestRedis(t)
	registry := NewRegistry()
	ledger := NewLedger(db)
	queue := NewOfflineQueue(rdb, db)
	sender := &fakeSender{}
	d := NewDistributor(db, registry, ledger, queue, sender)

	user := seedUser(t, db, 0, 0, 3000, "jobs")
	registry.Register(user, "tab-1")
	registry.Register(user, "tab-2")

	alert := seedAlert(t, db, "jobs", 0, 0.02)
	d.Distribute(context.Background(), NewAlertPayload(alert))

	got := sender.events()
	if len(got) != 2 {
		t.Fatalf("live events = %d, want 2", len(got))
	}
	conns := map[string]bool{}
	for _, ev := range got {
		conns[ev.ConnID] = true
		if ev.Event.Type != EventNewAlert {
			t.Errorf("event type = %s, want %s", ev.Event.Type, EventNewAlert)
		}
		if ev.Event.Alert == nil || ev.Event.Alert.ID != alert.AlertsID {
			t.Errorf("event alert = %+v, want %s", ev.Event.Alert, alert.AlertsID)
		}
	}
	if !conns["tab-1"] || !conns["tab-2"] {
		t.Errorf("delivered to %v, want both tabs", conns)
	}

	var count int64
	if err := db.Model(&Notification{}).
		Where("userid = ? AND kind = ?", user, DeliveryLive).
		Count(&count).Error; err != nil {
		t.Fatalf("counting notifications: %v", err)
	}
	if count != 1 {
		t.Errorf("live notifications = %d, want exactly 1", count)
	}
	if mr.Exists(queueKey(user)) {
		t.Error("queue entry exists for online user")
	}
}

type failingSender struct{}

func (failingSender) Send(connID string, ev ClientEvent) error {
	return errors.New("connection gone")
}

func TestDistributeSendFailureDoesNotAbortPass(t *testing.T) {
	db := newTestDB(t)
	_, rdb := newTestRedis(t)
	registry := NewRegistry()
	ledger := NewLedger(db)
	queue := NewOfflineQueue(rdb, db)
	d := NewDistributor(db, registry, ledger, queue, failingSender{})

	u1 := seedUser(t, db, 0, 0, 3000, "jobs")
	u2 := seedUser(t, db, 0.01, 0, 3000, "jobs")
	registry.Register(u1, "c1")
	registry.Register(u2, "c2")

	alert := seedAlert(t, db, "jobs", 0, 0)
	d.Distribute(context.Background(), NewAlertPayload(alert))

	var count int64
	if err := db.Model(&Notification{}).Count(&count).Error; err != nil {
		t.Fatalf("counting notifications: %v", err)
	}
	if count != 2 {
		t.Errorf("notifications = %d, want 2 despite send failures", count)
	}
}

func TestDistributeThenReconnectDrain(t *testing.T) {
	db := newTestDB(t)
	_, rdb := newTestRedis(t)
	registry := NewRegistry()
	ledger := NewLedger(db)
	queue := NewOfflineQueue(rdb, db)
	sender := &fakeSender{}
	d := NewDistributor(db, registry, ledger, queue, sender)
	ctx := context.Background()

	user := seedUser(t, db, 0, 0, 3000, "jobs")
	alert := seedAlert(t, db, "jobs", 0, 0.02)
	d.Distribute(ctx, NewAlertPayload(alert))

	alerts, err := queue.DrainAndFetch(ctx, user)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(alerts) != 1 || alerts[0].AlertsID != alert.AlertsID {
		t.Fatalf("drain = %+v, want the queued alert", alerts)
	}
}
