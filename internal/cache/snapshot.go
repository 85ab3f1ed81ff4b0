// Package cache mirrors balance snapshots into Redis so other processes
// can read the latest values and follow updates.
package cache

import (
	"context"
	"encoding/json"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/internal/config"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

const keyPrefix = "stakebet:snapshot:"

// SnapshotCache stores each account's latest snapshot in a hash and
// publishes it on a channel.
type SnapshotCache struct {
	rdb     *redis.Client
	channel string
	ttl     time.Duration
	logger  *logrus.Entry
}

// NewSnapshotCache connects to Redis and verifies the connection.
func NewSnapshotCache(ctx context.Context, cfg config.RedisConfig) (*SnapshotCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, utils.WrapError(utils.ErrCodeConnection, "redis ping failed", err)
	}
	return newSnapshotCache(rdb, cfg), nil
}

func newSnapshotCache(rdb *redis.Client, cfg config.RedisConfig) *SnapshotCache {
	return &SnapshotCache{
		rdb:     rdb,
		channel: cfg.Channel,
		ttl:     cfg.SnapshotTTL,
		logger:  utils.Component("cache").WithField("addr", cfg.Addr),
	}
}

func snapshotKey(account common.Address) string {
	return keyPrefix + account.Hex()
}

// PublishSnapshot stores snapshot and announces it on the channel.
func (c *SnapshotCache) PublishSnapshot(ctx context.Context, snapshot *models.BalanceSnapshot) error {
	key := snapshotKey(snapshot.Account)
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return utils.WrapError(utils.ErrCodeInternal, "failed to encode snapshot", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeFields(snapshot))
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		if c.channel != "" {
			pipe.Publish(ctx, c.channel, payload)
		}
		return nil
	})
	if err != nil {
		return utils.WrapError(utils.ErrCodeConnection, "failed to publish snapshot", err)
	}
	return nil
}

// Get returns the cached snapshot for account.
func (c *SnapshotCache) Get(ctx context.Context, account common.Address) (*models.BalanceSnapshot, error) {
	vals, err := c.rdb.HGetAll(ctx, snapshotKey(account)).Result()
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeConnection, "failed to read snapshot", err)
	}
	if len(vals) == 0 {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "snapshot not cached", account.Hex())
	}
	return decodeFields(account, vals)
}

// Subscribe follows published snapshots until ctx is cancelled.
func (c *SnapshotCache) Subscribe(ctx context.Context) (<-chan *models.BalanceSnapshot, error) {
	pubsub := c.rdb.Subscribe(ctx, c.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, utils.WrapError(utils.ErrCodeConnection, "failed to subscribe", err)
	}

	out := make(chan *models.BalanceSnapshot, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var snap models.BalanceSnapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					c.logger.WithError(err).Debug("Dropping malformed snapshot message")
					continue
				}
				select {
				case out <- &snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis connection.
func (c *SnapshotCache) Close() error {
	return c.rdb.Close()
}

func encodeFields(s *models.BalanceSnapshot) map[string]interface{} {
	fields := map[string]interface{}{
		"block_number": strconv.FormatUint(s.BlockNumber, 10),
		"updated_at":   strconv.FormatInt(s.UpdatedAt.UnixNano(), 10),
	}
	for _, name := range []string{models.FieldTokenBalance, models.FieldClaimableFromManager, models.FieldClaimableFromPool} {
		if v := s.Field(name); v != nil {
			fields[name] = v.String()
		}
	}
	return fields
}

func decodeFields(account common.Address, vals map[string]string) (*models.BalanceSnapshot, error) {
	snap := &models.BalanceSnapshot{Account: account}

	block, err := strconv.ParseUint(vals["block_number"], 10, 64)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeInternal, "malformed cached block number", err)
	}
	snap.BlockNumber = block

	if ts, err := strconv.ParseInt(vals["updated_at"], 10, 64); err == nil {
		snap.UpdatedAt = time.Unix(0, ts)
	}

	targets := map[string]**big.Int{
		models.FieldTokenBalance:         &snap.TokenBalance,
		models.FieldClaimableFromManager: &snap.ClaimableFromManager,
		models.FieldClaimableFromPool:    &snap.ClaimableFromPool,
	}
	for name, dst := range targets {
		raw, ok := vals[name]
		if !ok {
			continue
		}
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, utils.NewAppError(utils.ErrCodeInternal, "malformed cached amount", name)
		}
		*dst = v
	}
	return snap, nil
}
