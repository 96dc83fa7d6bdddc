package service

import (
	"sync"
	"time"

	"ugcleaks/server/internal/config"

	"go.uber.org/zap"
)

/*
LimitConfig 单个用途的限流参数
Window 内最多 MaxRequests 次，超出后封禁 BlockDuration
*/
type LimitConfig struct {
	Window        time.Duration
	MaxRequests   int
	BlockDuration time.Duration
}

/* NewLimitConfig 从配置文件的秒值转换 */
func NewLimitConfig(c config.LimitConfig) LimitConfig {
	return LimitConfig{
		Window:        time.Duration(c.WindowSeconds) * time.Second,
		MaxRequests:   c.MaxRequests,
		BlockDuration: time.Duration(c.BlockSeconds) * time.Second,
	}
}

/*
LimitResult 限流判定结果
ResetIn：放行时为窗口剩余时间，拒绝时为封禁剩余时间
*/
type LimitResult struct {
	Allowed bool
	Blocked bool
	ResetIn time.Duration
}

type attemptRecord struct {
	count        int
	windowStart  time.Time
	window       time.Duration
	blockedUntil time.Time
}

/*
LoginLimiter 登录/注册限流器
功能：按 "<用途>:<客户端地址>" 计数，窗口内超出次数后封禁一段时间。
封禁优先于窗口过期：封禁期内即使计数窗口已结束也继续拒绝。
后台每 5 分钟清理窗口和封禁都已结束的记录。
*/
type LoginLimiter struct {
	mu       sync.Mutex
	records  map[string]*attemptRecord
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

func NewLoginLimiter() *LoginLimiter {
	l := &LoginLimiter{
		records:  make(map[string]*attemptRecord),
		now:      time.Now,
		stopChan: make(chan struct{}),
		logger:   zap.L().Named("login-limiter"),
	}
	go l.cleanupLoop(5 * time.Minute)
	return l
}

/*
Check 记录一次尝试并返回是否放行
*/
func (l *LoginLimiter) Check(key string, cfg LimitConfig) LimitResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[key]
	if !ok {
		rec = &attemptRecord{windowStart: now, window: cfg.Window}
		l.records[key] = rec
	}

	if now.Before(rec.blockedUntil) {
		return LimitResult{Blocked: true, ResetIn: rec.blockedUntil.Sub(now)}
	}

	if now.Sub(rec.windowStart) >= cfg.Window {
		rec.count = 0
		rec.windowStart = now
		rec.blockedUntil = time.Time{}
	}
	rec.window = cfg.Window

	if rec.count < cfg.MaxRequests {
		rec.count++
		return LimitResult{Allowed: true, ResetIn: rec.windowStart.Add(cfg.Window).Sub(now)}
	}

	rec.blockedUntil = now.Add(cfg.BlockDuration)
	l.logger.Warn("认证尝试超限，开始封禁",
		zap.String("key", key),
		zap.Int("attempts", rec.count),
		zap.Duration("block", cfg.BlockDuration))
	return LimitResult{Blocked: true, ResetIn: cfg.BlockDuration}
}

/* Clear 登录成功后清除该键的全部状态 */
func (l *LoginLimiter) Clear(key string) {
	l.mu.Lock()
	delete(l.records, key)
	l.mu.Unlock()
}

/* Stop 停止后台清理，可重复调用 */
func (l *LoginLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
}

func (l *LoginLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := l.sweep(); n > 0 {
				l.logger.Debug("清理过期限流记录", zap.Int("removed", n))
			}
		case <-l.stopChan:
			return
		}
	}
}

/* sweep 删除封禁和计数窗口都已结束的记录 */
func (l *LoginLimiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, rec := range l.records {
		if !now.Before(rec.blockedUntil) && now.Sub(rec.windowStart) >= rec.window {
			delete(l.records, key)
			removed++
		}
	}
	return removed
}
