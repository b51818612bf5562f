package main

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ConnectionSender pushes one event to one live connection. Sends are
// best-effort and must not block waiting on the client.
type ConnectionSender interface {
	Send(connID string, ev ClientEvent) error
}

// Distributor runs one distribution pass per newly created alert: it finds
// the interested in-range users, always records a notification for each, and
// either fans the alert out to every live connection or queues it for the
// next reconnect. It holds no state of its own between passes.
type Distributor struct {
	db       *gorm.DB
	presence Presence
	ledger   *Ledger
	queue    *OfflineQueue
	sender   ConnectionSender
}

func NewDistributor(db *gorm.DB, presence Presence, ledger *Ledger, queue *OfflineQueue, sender ConnectionSender) *Distributor {
	return &Distributor{
		db:       db,
		presence: presence,
		ledger:   ledger,
		queue:    queue,
		sender:   sender,
	}
}

// Distribute runs the pass for one alert. A failure on one recipient never
// aborts the rest; there is no retry, at most one effort per recipient.
func (d *Distributor) Distribute(ctx context.Context, alert AlertPayload) {
	log := zap.S().With("method", "Distribute", "alert", alert.ID)

	candidates, err := d.candidates(alert)
	if err != nil {
		log.Error("db:find candidates:", err)
		return
	}
	log.Info("candidates for ", alert.Category, ": ", len(candidates))

	for _, u := range candidates {
		dist := HaversineDistance(alert.Longitude, alert.Latitude, u.Longitude, u.Latitude)
		if dist > u.AlertRadius {
			continue
		}

		conns := d.presence.ConnectionsFor(u.UsersID)
		kind := DeliveryQueued
		if len(conns) > 0 {
			kind = DeliveryLive
		}

		if err := d.ledger.Record(u.UsersID, alert, kind); err != nil {
			log.Error("db:record notification for ", u.UsersID, ": ", err)
			continue
		}

		if kind == DeliveryLive {
			ev := ClientEvent{Type: EventNewAlert, Alert: &alert}
			for _, connID := range conns {
				if err := d.sender.Send(connID, ev); err != nil {
					log.Error("send to ", connID, ": ", err)
				}
			}
			log.Info("sent live to ", u.UsersID, " (", len(conns), " connections)")
		} else {
			if err := d.queue.Enqueue(ctx, u.UsersID, alert.ID); err != nil {
				log.Error("queue for ", u.UsersID, ": ", err)
				continue
			}
			log.Info("queued for offline user ", u.UsersID)
		}
	}
}

// candidates runs the coarse filter: interest matches the category and the
// user sits inside a bounding box derived from the hard cap. The exact
// per-user radius check happens afterwards in Distribute.
func (d *Distributor) candidates(alert AlertPayload) ([]User, error) {
	dLat, dLon := BoundingBox(alert.Latitude, HardCapMeters)

	users := []User{}
	err := d.db.Model(&User{}).
		Joins("JOIN user_interests ON user_interests.userid = users.userid AND user_interests.deleted_at IS NULL").
		Where("user_interests.tag = ?", alert.Category).
		Where("users.latitude BETWEEN ? AND ?", alert.Latitude-dLat, alert.Latitude+dLat).
		Where("users.longitude BETWEEN ? AND ?", alert.Longitude-dLon, alert.Longitude+dLon).
		Find(&users).Error
	return users, err
}
