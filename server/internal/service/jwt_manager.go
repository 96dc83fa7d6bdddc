package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	JWTSecretRedisKey        = "system:jwt:secret"
	JWTSecretRefreshInterval = 10 * time.Minute
	JWTSecretLength          = 64
)

/*
JWTManager JWT 签名密钥来源
优先级：配置文件中的密钥 > Redis 中共享的密钥 > 本进程随机生成。
随机生成的密钥在 Redis 可用时写回，供多实例共用；进程重启后旧令牌是否有效取决于密钥能否从 Redis 取回。
*/
type JWTManager struct {
	kv         KeyValueStore
	configured string

	mu      sync.RWMutex
	current string

	stopChan chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func NewJWTManager(kv KeyValueStore, configuredSecret string) *JWTManager {
	return &JWTManager{
		kv:         kv,
		configured: configuredSecret,
		stopChan:   make(chan struct{}),
		logger:     zap.L().Named("jwt-manager"),
	}
}

/*
Start 确定当前密钥
仅在使用 Redis 共享密钥时启动同步协程
*/
func (m *JWTManager) Start(ctx context.Context) error {
	if m.configured != "" {
		m.setSecret(m.configured)
		m.logger.Info("✓ 使用配置文件中的 JWT 密钥")
		return nil
	}

	secret, err := m.loadOrGenerate(ctx)
	if err != nil {
		return fmt.Errorf("初始化 JWT 密钥失败: %w", err)
	}
	m.setSecret(secret)

	if m.kv != nil {
		go m.syncLoop()
	}
	return nil
}

func (m *JWTManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

func (m *JWTManager) GetSecret() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *JWTManager) setSecret(secret string) {
	m.mu.Lock()
	m.current = secret
	m.mu.Unlock()
}

func (m *JWTManager) loadOrGenerate(ctx context.Context) (string, error) {
	if m.kv != nil {
		if secret, err := m.kv.Get(ctx, JWTSecretRedisKey); err == nil && secret != "" {
			m.logger.Info("✓ 从 Redis 加载 JWT 密钥")
			return secret, nil
		}
	}

	secret, err := generateSecret(JWTSecretLength)
	if err != nil {
		return "", err
	}

	if m.kv == nil {
		m.logger.Warn("未配置 JWT 密钥且 Redis 不可用，使用进程内随机密钥（重启后所有令牌失效）")
		return secret, nil
	}
	if err := m.kv.Set(ctx, JWTSecretRedisKey, secret, 0); err != nil {
		m.logger.Warn("保存 JWT 密钥到 Redis 失败（将仅使用内存密钥）", zap.Error(err))
	} else {
		m.logger.Info("✓ 已生成新的 JWT 密钥并写入 Redis")
	}
	return secret, nil
}

/*
syncLoop 定期与 Redis 中的密钥对齐（多实例部署时另一实例可能先写入）
不自动轮换：轮换会让所有已发放的令牌立即失效
*/
func (m *JWTManager) syncLoop() {
	ticker := time.NewTicker(JWTSecretRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			secret, err := m.kv.Get(ctx, JWTSecretRedisKey)
			cancel()
			if err == nil && secret != "" && secret != m.GetSecret() {
				m.setSecret(secret)
				m.logger.Info("JWT 密钥已从 Redis 同步")
			}
		case <-m.stopChan:
			return
		}
	}
}

func generateSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("生成随机密钥失败: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
