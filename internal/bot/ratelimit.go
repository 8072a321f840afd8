package bot

import (
	"sync"
	"time"
)

// RateLimiter ограничение частоты команд на пользователя, в памяти процесса
type RateLimiter struct {
	mu       sync.Mutex
	lastCall map[int64]map[string]time.Time
	limits   map[string]time.Duration
	exempt   int64
	now      func() time.Time
}

// NewRateLimiter exempt: владелец бота, его не ограничиваем
func NewRateLimiter(exempt int64) *RateLimiter {
	return &RateLimiter{
		lastCall: make(map[int64]map[string]time.Time),
		limits: map[string]time.Duration{
			"/deposit":      5 * time.Second,
			"/join":         5 * time.Second,
			"/balance":      3 * time.Second,
			"/memberships":  3 * time.Second,
			"/admin_backup": 60 * time.Second,
			payMethodPrefix: 5 * time.Second,
			joinPrefix:      5 * time.Second,
		},
		exempt: exempt,
		now:    time.Now,
	}
}

// IsLimited true, если пользователь вызывает команду слишком часто
func (r *RateLimiter) IsLimited(userID int64, cmd string) bool {
	if r.exempt != 0 && userID == r.exempt {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if r.lastCall[userID] == nil {
		r.lastCall[userID] = make(map[string]time.Time)
	}
	limit, ok := r.limits[cmd]
	if !ok {
		limit = 2 * time.Second
	}
	last := r.lastCall[userID][cmd]
	if now.Sub(last) < limit {
		return true
	}
	r.lastCall[userID][cmd] = now
	return false
}
