package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/openatrium/atrium/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyLoginUser = "login:user:%s"
	keyLoginIP   = "login:ip:%s"

	// One attempt every five seconds sustained, five back to back.
	loginUserRate  = 0.2
	loginUserBurst = 5

	// An IP may front many users behind NAT, so the cap is looser.
	loginIPRate  = 2.0
	loginIPBurst = 30
)

// LoginLimiter throttles login attempts per username and per source IP. A
// nil limiter (no Redis configured) allows everything.
type LoginLimiter struct {
	bucket *TokenBucket
}

func NewLoginLimiter(cfg config.Config) *LoginLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &LoginLimiter{bucket: NewTokenBucket(client)}
}

func (l *LoginLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *LoginLimiter) AllowUser(ctx context.Context, username string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyLoginUser, strings.ToLower(strings.TrimSpace(username))), loginUserRate, loginUserBurst)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (l *LoginLimiter) AllowIP(ctx context.Context, ip string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyLoginIP, strings.TrimSpace(ip)), loginIPRate, loginIPBurst)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}
