package main

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v9"
	"go.uber.org/zap"
)

// Bus decouples the HTTP tier that creates alerts from the distribution
// logic. Creators publish exactly one message per alert; the single instance
// running the trigger subscribes and runs the pass.
type Bus struct {
	rdb     *redis.Client
	channel string
}

func NewBus(rdb *redis.Client, channel string) *Bus {
	return &Bus{rdb: rdb, channel: channel}
}

func (b *Bus) PublishAlert(ctx context.Context, alert AlertPayload) error {
	data, err := json.Marshal(AlertMessage{AlertID: alert.ID, Alert: alert})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, data).Err()
}

// Trigger listens on the bus channel and runs one distribution pass per
// message. Run it in its own goroutine; it resubscribes after a panic so a
// bad message can never take the subscription down permanently.
func (b *Bus) Trigger(ctx context.Context, d *Distributor) {
	log := zap.S().With("method", "Trigger", "channel", b.channel)
	defer func() {
		if err := recover(); err != nil {
			log.Error("trigger recovered:", err)
			go b.Trigger(ctx, d)
		}
	}()

	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()
	log.Info("subscribed for distribution")

	for msg := range sub.Channel() {
		b.handleMessage(ctx, d, []byte(msg.Payload))
	}
}

// handleMessage parses one bus payload and distributes it. Malformed
// messages are logged and dropped, never republished.
func (b *Bus) handleMessage(ctx context.Context, d *Distributor, payload []byte) {
	log := zap.S().With("method", "handleMessage", "channel", b.channel)

	m := AlertMessage{}
	if err := json.Unmarshal(payload, &m); err != nil {
		log.Error("drop malformed message:", err)
		return
	}
	if m.AlertID == "" || m.Alert.ID == "" {
		log.Error("drop message without alert id")
		return
	}
	log.Info("received alert for distribution:", m.AlertID)
	d.Distribute(ctx, m.Alert)
}
