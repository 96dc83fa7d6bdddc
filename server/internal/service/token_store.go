package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

/*
KeyValueStore 最小键值存储接口
*database.RedisClient 实现该接口；Redis 未配置时传 nil
*/
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

const revokedTokenKeyPrefix = "auth:revoked:"

/*
TokenStore 已吊销令牌（按 jti）
功能：本进程内存记录 + 可选 Redis 共享；记录在令牌原本的过期时间自动失效
*/
type TokenStore struct {
	kv      KeyValueStore
	mu      sync.Mutex
	revoked map[string]time.Time /* jti → 令牌过期时间 */
	now     func() time.Time
	logger  *zap.Logger
}

func NewTokenStore(kv KeyValueStore) *TokenStore {
	return &TokenStore{
		kv:      kv,
		revoked: make(map[string]time.Time),
		now:     time.Now,
		logger:  zap.L().Named("token-store"),
	}
}

/*
Revoke 吊销令牌直到 expiresAt
已过期的令牌无需记录
*/
func (s *TokenStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if tokenID == "" || ttl <= 0 {
		return nil
	}

	s.mu.Lock()
	s.revoked[tokenID] = expiresAt
	s.pruneLocked()
	s.mu.Unlock()

	if s.kv == nil {
		return nil
	}
	return s.kv.Set(ctx, revokedTokenKeyPrefix+tokenID, "1", ttl)
}

/* IsRevoked Redis 出错时只以内存记录为准 */
func (s *TokenStore) IsRevoked(ctx context.Context, tokenID string) bool {
	if tokenID == "" {
		return false
	}

	s.mu.Lock()
	exp, ok := s.revoked[tokenID]
	if ok && !s.now().Before(exp) {
		delete(s.revoked, tokenID)
		ok = false
	}
	s.mu.Unlock()
	if ok {
		return true
	}

	if s.kv == nil {
		return false
	}
	exists, err := s.kv.Exists(ctx, revokedTokenKeyPrefix+tokenID)
	if err != nil {
		s.logger.Warn("查询令牌吊销状态失败", zap.Error(err))
		return false
	}
	return exists
}

func (s *TokenStore) pruneLocked() {
	now := s.now()
	for id, exp := range s.revoked {
		if !now.Before(exp) {
			delete(s.revoked, id)
		}
	}
}
