package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// UpdateDeduper помнит обработанные update_id Telegram
type UpdateDeduper interface {
	Seen(ctx context.Context, updateID int64) (bool, error)
}

// NewUpdateDeduper использует Redis, если клиент есть, иначе память процесса
func NewUpdateDeduper(client *redis.Client, ttl time.Duration) UpdateDeduper {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if client == nil {
		return NewMemoryDeduper(ttl)
	}
	return &redisDeduper{client: client, prefix: "tg:update", ttl: ttl}
}

type redisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (d *redisDeduper) Seen(ctx context.Context, updateID int64) (bool, error) {
	key := d.prefix + ":" + strconv.FormatInt(updateID, 10)
	ok, err := d.client.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, err
	}
	// ключ уже был, значит повтор
	return !ok, nil
}

type MemoryDeduper struct {
	mu     sync.Mutex
	seen   map[int64]time.Time
	ttl    time.Duration
	nextGC time.Time
	now    func() time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{
		seen: make(map[int64]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (d *MemoryDeduper) Seen(_ context.Context, updateID int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.seen[updateID]; ok && exp.After(now) {
		return true, nil
	}
	d.seen[updateID] = now.Add(d.ttl)

	if now.After(d.nextGC) {
		for id, exp := range d.seen {
			if !exp.After(now) {
				delete(d.seen, id)
			}
		}
		d.nextGC = now.Add(d.ttl)
	}
	return false, nil
}
