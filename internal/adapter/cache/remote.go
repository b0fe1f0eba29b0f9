package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/domain"
)

const (
	// remoteKeyPrefix namespaces verdict keys so Clear can scan-delete them
	// without touching anything else sharing the database.
	remoteKeyPrefix = "paddock:scan:"

	remoteClearBatchSize = 128
)

// remoteTier stores verdicts in Redis as JSON with a server-side TTL, so
// every proxy instance pointed at the same database shares one verdict set.
type remoteTier struct {
	client *redis.Client
	ttl    time.Duration

	hits     atomic.Int64
	misses   atomic.Int64
	failures atomic.Int64
}

func newRemoteTier(cfg config.RemoteCacheConfig, ttl time.Duration) *remoteTier {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultRemotePoolSize
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &remoteTier{
		client: client,
		ttl:    ttl,
	}
}

func (t *remoteTier) addr() string {
	return t.client.Options().Addr
}

func (t *remoteTier) key(fingerprint string) string {
	return remoteKeyPrefix + fingerprint
}

func (t *remoteTier) get(ctx context.Context, fingerprint string) (*domain.ScanResult, error) {
	data, err := t.client.Get(ctx, t.key(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		t.misses.Add(1)
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		t.failures.Add(1)
		return nil, fmt.Errorf("remote cache get: %w", err)
	}

	var verdict domain.ScanResult
	if err := json.Unmarshal(data, &verdict); err != nil {
		// A corrupt entry is unreadable forever; drop it so the slot heals.
		t.failures.Add(1)
		_ = t.client.Del(ctx, t.key(fingerprint)).Err()
		return nil, fmt.Errorf("remote cache decode: %w", err)
	}

	t.hits.Add(1)
	return &verdict, nil
}

func (t *remoteTier) set(ctx context.Context, fingerprint string, verdict *domain.ScanResult) error {
	data, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("remote cache encode: %w", err)
	}

	if err := t.client.Set(ctx, t.key(fingerprint), data, t.ttl).Err(); err != nil {
		t.failures.Add(1)
		return fmt.Errorf("remote cache set: %w", err)
	}
	return nil
}

func (t *remoteTier) ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// clear scan-deletes every verdict key under the prefix. SCAN keeps the
// server responsive; FLUSHDB would take out unrelated keys.
func (t *remoteTier) clear(ctx context.Context) error {
	iter := t.client.Scan(ctx, 0, remoteKeyPrefix+"*", remoteClearBatchSize).Iterator()

	batch := make([]string, 0, remoteClearBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := t.client.Del(ctx, batch...).Err(); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= remoteClearBatchSize {
			if err := flush(); err != nil {
				t.failures.Add(1)
				return fmt.Errorf("remote cache clear: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		t.failures.Add(1)
		return fmt.Errorf("remote cache clear: %w", err)
	}
	if err := flush(); err != nil {
		t.failures.Add(1)
		return fmt.Errorf("remote cache clear: %w", err)
	}
	return nil
}

func (t *remoteTier) close() error {
	return t.client.Close()
}
