package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisIndex keeps a materialized last-seen record per (plate, location).
// A hit inside the window answers directly; a miss, a stale record or a
// redis error falls through to the authoritative fallback index.
type RedisIndex struct {
	client   *redis.Client
	fallback Index
	ttl      time.Duration
}

func NewRedisIndex(client *redis.Client, fallback Index, ttl time.Duration) *RedisIndex {
	return &RedisIndex{client: client, fallback: fallback, ttl: ttl}
}

func presenceKey(plate, locationID string) string {
	return "presence:" + plate + ":" + locationID
}

func (r *RedisIndex) Touch(ctx context.Context, d models.Detection) error {
	if models.IsSentinelPlate(d.PlateNumber) {
		return nil
	}
	data, err := json.Marshal(Sighting{DetectionID: d.ID, ImagePath: d.ImagePath, SeenAt: d.DetectedAt})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, presenceKey(d.PlateNumber, d.LocationID), data, r.ttl).Err()
}

func (r *RedisIndex) LastSeen(ctx context.Context, plate, locationID string, since time.Time) (*Sighting, error) {
	if models.IsSentinelPlate(plate) {
		return nil, nil
	}

	data, err := r.client.Get(ctx, presenceKey(plate, locationID)).Bytes()
	switch {
	case err == redis.Nil:
	case err != nil:
		logrus.WithError(err).WithField("plate", plate).Warn("⚠️ [PRESENCE] Redis lookup failed, using detections table")
	default:
		var s Sighting
		if jsonErr := json.Unmarshal(data, &s); jsonErr == nil && !s.SeenAt.Before(since) {
			return &s, nil
		}
	}

	return r.fallback.LastSeen(ctx, plate, locationID, since)
}
