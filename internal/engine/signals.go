package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/infra"
)

// releaseScript снимает лок, только если он все еще наш (owner = run id)
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock — распределенная блокировка (SetNX), чтобы два прогона
// не гоняли mark-and-sweep по одному хозяйству одновременно.
type RedisRunLock struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisRunLock(rdb *redis.Client, ttl time.Duration) *RedisRunLock {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisRunLock{rdb: rdb, ttl: ttl}
}

func (l *RedisRunLock) Acquire(ctx context.Context, key, owner string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: setnx run lock: %w", err)
	}
	return ok, nil
}

func (l *RedisRunLock) Release(ctx context.Context, key, owner string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{key}, owner).Err(); err != nil {
		return fmt.Errorf("redis: release run lock: %w", err)
	}
	return nil
}

// RunEvent — сообщение в канал RedisChanRunCompleted
type RunEvent struct {
	RunID        string           `json:"runId"`
	TenantScope  string           `json:"tenantScope"`
	Status       domain.RunStatus `json:"status"`
	FindingCount int              `json:"findingCount"`
	ArisingCount int              `json:"arisingFindingCount"`
	Error        string           `json:"error,omitempty"`
	FinishedAt   time.Time        `json:"finishedAt"`
}

// RedisRunEvents публикует итог прогона для внешних подписчиков (дашборды, чат-боты)
type RedisRunEvents struct {
	rdb *redis.Client
}

func NewRedisRunEvents(rdb *redis.Client) *RedisRunEvents {
	return &RedisRunEvents{rdb: rdb}
}

func (p *RedisRunEvents) RunCompleted(ctx context.Context, ev RunEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, infra.RedisChanRunCompleted, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish run event: %w", err)
	}
	return nil
}
