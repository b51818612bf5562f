package main

import (
	"context"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const offlineQueueTTL = 7 * 24 * time.Hour

// OfflineQueue holds, per user, the alert ids that could not be delivered
// live. Backed by a redis list with a TTL refreshed on every push, so a user
// who never returns costs nothing after seven days.
type OfflineQueue struct {
	rdb *redis.Client
	db  *gorm.DB
}

func NewOfflineQueue(rdb *redis.Client, db *gorm.DB) *OfflineQueue {
	return &OfflineQueue{rdb: rdb, db: db}
}

func queueKey(userID string) string {
	return "user:" + userID + ":alerts"
}

// Enqueue pushes alertID to the front of the user's queue and resets the
// queue's expiry.
func (q *OfflineQueue) Enqueue(ctx context.Context, userID, alertID string) error {
	key := queueKey(userID)
	if err := q.rdb.LPush(ctx, key, alertID).Err(); err != nil {
		return err
	}
	return q.rdb.Expire(ctx, key, offlineQueueTTL).Err()
}

// DrainAndFetch reads everything queued for the user, resolves the ids that
// still point at existing alerts sorted by alert creation time descending,
// and clears the queue. Ids that are not valid UUIDs are dropped; if nothing
// in the queue is valid the key is deleted outright so the garbage is not
// re-resolved on every reconnect. Draining an empty queue returns nil, nil.
func (q *OfflineQueue) DrainAndFetch(ctx context.Context, userID string) ([]Alert, error) {
	log := zap.S().With("method", "DrainAndFetch", "user", userID)
	key := queueKey(userID)

	// Read and clear in one transaction so an enqueue racing the drain
	// either lands before it (and is delivered now) or after it (and waits
	// for the next drain). It is never dropped.
	var rng *redis.StringSliceCmd
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rng = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	ids := rng.Val()
	if len(ids) == 0 {
		return nil, nil
	}

	valid := ids[:0]
	for _, id := range ids {
		if uuid.Validate(id) == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		log.Info("dropped all-invalid queue")
		return nil, nil
	}

	alerts := []Alert{}
	if err := q.db.Where("alertid IN ?", valid).
		Order("created_at DESC").
		Find(&alerts).Error; err != nil {
		return nil, err
	}
	log.Info("drained queued alerts:", len(alerts))
	return alerts, nil
}
