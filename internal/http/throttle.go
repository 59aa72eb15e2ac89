package http

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Failed-login counters live in redis with a sliding TTL window. The
// throttle is best effort: without redis every check passes, and a redis
// error never blocks a legitimate login.

func loginAttemptKey(username, ip string) string {
	return "login:fail:" + username + ":" + ip
}

func (s *Server) loginBlocked(ctx context.Context, username, ip string) bool {
	if s.redis == nil || s.cfg.LoginMaxAttempts <= 0 {
		return false
	}
	value, err := s.redis.Get(ctx, loginAttemptKey(username, ip)).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		return false
	}
	attempts, err := strconv.Atoi(value)
	if err != nil {
		return false
	}
	return attempts >= s.cfg.LoginMaxAttempts
}

func (s *Server) recordLoginFailure(ctx context.Context, username, ip string) {
	if s.redis == nil {
		return
	}
	key := loginAttemptKey(username, ip)
	attempts, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	if attempts == 1 {
		_ = s.redis.Expire(ctx, key, s.cfg.LoginAttemptWindow).Err()
	}
}

func (s *Server) clearLoginFailures(ctx context.Context, username, ip string) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, loginAttemptKey(username, ip)).Err()
}
