// Package redisbus mirrors site state into Redis and publishes snapshots and
// alerts on pub/sub channels for external consumers.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kavach/opsengine/internal/config"
	"github.com/kavach/opsengine/pkg/core"
)

// RecentAlerts bounds the per-site list of recent alerts.
const RecentAlerts = 100

// StateKey is the hash holding the latest state of a site.
func StateKey(site string) string { return fmt.Sprintf("site:%s:state", site) }

// GeoKey is the geo set of vehicle positions of a site.
func GeoKey(site string) string { return fmt.Sprintf("site:%s:geo", site) }

// RecentAlertsKey is the capped list of a site's latest alerts, newest first.
func RecentAlertsKey(site string) string { return fmt.Sprintf("site:%s:alerts:recent", site) }

// SnapshotChannel carries every published snapshot of a site.
func SnapshotChannel(site string) string { return fmt.Sprintf("site:%s:snapshot", site) }

// AlertChannel carries every alert of a site.
func AlertChannel(site string) string { return fmt.Sprintf("site:%s:alerts", site) }

// Publisher writes snapshots and alerts to Redis.
type Publisher struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(client, cfg.StateTTL, logger), nil
}

// NewWithClient wraps an existing client. A zero ttl keeps state keys forever.
func NewWithClient(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, ttl: ttl, logger: logger}
}

// Name identifies the sink in logs.
func (p *Publisher) Name() string { return "redis" }

func stateFields(snap core.OperationalSnapshot, payload []byte) map[string]any {
	return map[string]any{
		"sequence":     snap.Sequence,
		"hazard":       string(snap.HazardState),
		"risk_level":   string(snap.AggregateRisk.Level),
		"safety_score": snap.AggregateRisk.SafetyScore,
		"active_shift": snap.ActiveShift,
		"vehicles":     len(snap.Vehicles),
		"overspeeding": len(snap.Overspeed),
		"workers":      len(snap.WorkerFatigue),
		"generated_at": snap.GeneratedAt.Unix(),
		"snapshot":     string(payload),
	}
}

// WriteSnapshot stores the site state hash, rebuilds the vehicle geo set and
// publishes the snapshot in one pipeline.
func (p *Publisher) WriteSnapshot(ctx context.Context, snap core.OperationalSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	stateKey := StateKey(snap.SiteID)
	geoKey := GeoKey(snap.SiteID)

	pipe := p.client.Pipeline()
	pipe.HSet(ctx, stateKey, stateFields(snap, payload))
	pipe.Del(ctx, geoKey)
	if len(snap.Vehicles) > 0 {
		locs := make([]*redis.GeoLocation, len(snap.Vehicles))
		for i, v := range snap.Vehicles {
			locs[i] = &redis.GeoLocation{Name: v.ID, Longitude: v.Position.Lng, Latitude: v.Position.Lat}
		}
		pipe.GeoAdd(ctx, geoKey, locs...)
	}
	if p.ttl > 0 {
		pipe.Expire(ctx, stateKey, p.ttl)
		pipe.Expire(ctx, geoKey, p.ttl)
	}
	pipe.Publish(ctx, SnapshotChannel(snap.SiteID), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// WriteAlert publishes an alert and prepends it to the recent alerts list.
func (p *Publisher) WriteAlert(ctx context.Context, a core.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	key := RecentAlertsKey(a.SiteID)

	pipe := p.client.Pipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, RecentAlerts-1)
	pipe.Publish(ctx, AlertChannel(a.SiteID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	p.logger.Debug("Alert published", "site", a.SiteID, "kind", a.Kind, "subject", a.Subject)
	return nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
