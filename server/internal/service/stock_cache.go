package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"ugcleaks/server/internal/config"
	"ugcleaks/server/internal/pkg/metrics"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNoAssetIDs      = &ValidationError{Message: "no ids provided"}
	ErrTooManyAssetIDs = &ValidationError{Message: "too many ids"}
)

/* StockStatus 库存结果标签 */
type StockStatus string

const (
	StockOK          StockStatus = "ok"
	StockNotLimited  StockStatus = "not_limited"
	StockRateLimited StockStatus = "rate_limited"
	StockError       StockStatus = "error"
)

/*
StockInfo 单个物品的库存结果
只有 Status 为 ok 时 CurrentStock/TotalStock 有效，其余状态通过 Error 说明原因
*/
type StockInfo struct {
	Status       StockStatus `json:"status"`
	CurrentStock int         `json:"current_stock"`
	TotalStock   int         `json:"total_stock"`
	Error        string      `json:"error,omitempty"`
}

/* IsError 非 ok 结果按错误 TTL 缓存 */
func (s StockInfo) IsError() bool {
	return s.Status != StockOK
}

type stockEntry struct {
	info      StockInfo
	fetchedAt time.Time
}

/*
StockCacheConfig 库存缓存参数
ErrorTTL 必须短于 SuccessTTL
*/
type StockCacheConfig struct {
	MaxIDs             int
	BatchSize          int
	BatchDelay         time.Duration
	MinRequestInterval time.Duration
	RequestTimeout     time.Duration
	SuccessTTL         time.Duration
	ErrorTTL           time.Duration
	RateLimitCooldown  time.Duration
}

/* NewStockCacheConfig 从配置文件的毫秒值转换 */
func NewStockCacheConfig(c config.StockConfig) StockCacheConfig {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return StockCacheConfig{
		MaxIDs:             c.MaxIDs,
		BatchSize:          c.BatchSize,
		BatchDelay:         ms(c.BatchDelayMs),
		MinRequestInterval: ms(c.MinRequestIntervalMs),
		RequestTimeout:     ms(c.RequestTimeoutMs),
		SuccessTTL:         ms(c.SuccessTTLMs),
		ErrorTTL:           ms(c.ErrorTTLMs),
		RateLimitCooldown:  ms(c.RateLimitCooldownMs),
	}
}

/*
StockCacheStats 供健康检查展示
剩余冷却时间向上取整到秒
*/
type StockCacheStats struct {
	Entries                 int   `json:"entries"`
	RateLimited             bool  `json:"rate_limited"`
	RateLimitResetInSeconds int64 `json:"rate_limit_reset_in_seconds"`
}

/*
StockCache 库存轮询缓存
功能：
  - 按物品 ID 缓存上游结果，成功与失败使用不同 TTL
  - 未命中的 ID 分批并发查询，批次之间停顿
  - 所有出站请求经过间隔闸门，相邻两次至少间隔 MinRequestInterval
  - 上游 429 后进入冷却期，冷却期内不发请求，返回旧数据或合成的限流结果
*/
type StockCache struct {
	fetcher StockFetcher
	cfg     StockCacheConfig
	logger  *zap.Logger

	mu      sync.RWMutex
	entries map[string]stockEntry

	/* 限流状态 */
	rateMu      sync.Mutex
	rateLimited bool
	resetAt     time.Time

	/* 间隔闸门，持锁期间等待以串行化出站请求 */
	gateMu      sync.Mutex
	lastRequest time.Time

	flight singleflight.Group

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewStockCache(fetcher StockFetcher, cfg StockCacheConfig) *StockCache {
	return &StockCache{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  zap.L().Named("stock-cache"),
		entries: make(map[string]stockEntry),
		now:     time.Now,
		sleep:   defaultSleep,
	}
}

/*
GetStock 查询一组物品的库存
重复 ID 合并；空输入返回 ErrNoAssetIDs，超过 MaxIDs 返回 ErrTooManyAssetIDs，
非纯数字 ID 返回 ValidationError 且不发出站请求。
上游失败不会返回 error，而是体现在对应 ID 的 StockInfo 中；
调用方 ctx 被取消时返回 ctx.Err()，取消不会写入缓存。
*/
func (c *StockCache) GetStock(ctx context.Context, assetIDs []string) (map[string]StockInfo, error) {
	ids := normalizeIDs(assetIDs)
	if len(ids) == 0 {
		return nil, ErrNoAssetIDs
	}
	if len(ids) > c.cfg.MaxIDs {
		return nil, ErrTooManyAssetIDs
	}
	for _, id := range ids {
		if !isDigits(id) {
			return nil, NewValidationError(fmt.Sprintf("invalid id: %q", id))
		}
	}

	result := make(map[string]StockInfo, len(ids))
	var misses []string

	now := c.now()
	c.mu.RLock()
	for _, id := range ids {
		if entry, ok := c.entries[id]; ok && c.isFresh(entry, now) {
			result[id] = entry.info
			continue
		}
		misses = append(misses, id)
	}
	c.mu.RUnlock()

	metrics.StockCacheLookups.WithLabelValues("hit").Add(float64(len(result)))
	metrics.StockCacheLookups.WithLabelValues("miss").Add(float64(len(misses)))

	if len(misses) == 0 {
		return result, nil
	}

	var resultMu sync.Mutex
	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	for start := 0; start < len(misses); start += batchSize {
		if start > 0 {
			if err := c.sleep(ctx, c.cfg.BatchDelay); err != nil {
				return nil, err
			}
		}

		end := min(start+batchSize, len(misses))

		var g errgroup.Group
		for _, id := range misses[start:end] {
			g.Go(func() error {
				info, err := c.lookup(ctx, id)
				if err != nil {
					return err
				}
				resultMu.Lock()
				result[id] = info
				resultMu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return result, nil
}

/* isFresh 调用方需持有 c.mu */
func (c *StockCache) isFresh(entry stockEntry, now time.Time) bool {
	ttl := c.cfg.SuccessTTL
	if entry.info.IsError() {
		ttl = c.cfg.ErrorTTL
	}
	return now.Sub(entry.fetchedAt) < ttl
}

/*
lookup 处理单个未命中的 ID
限流期间直接走回退逻辑；否则同一 ID 的并发请求共享一次上游调用。
共享调用脱离调用方的取消信号，只受 RequestTimeout 约束；
调用方提前离开时返回 ctx.Err()，上游结果照常写入缓存。
*/
func (c *StockCache) lookup(ctx context.Context, id string) (StockInfo, error) {
	if c.isRateLimited() {
		return c.rateLimitedFallback(id), nil
	}
	if err := ctx.Err(); err != nil {
		return StockInfo{}, err
	}

	ch := c.flight.DoChan(id, func() (interface{}, error) {
		return c.refresh(context.WithoutCancel(ctx), id), nil
	})
	select {
	case <-ctx.Done():
		return StockInfo{}, ctx.Err()
	case r := <-ch:
		return r.Val.(StockInfo), nil
	}
}

/* refresh 的 ctx 不会被调用方取消，超时只来自 RequestTimeout */
func (c *StockCache) refresh(ctx context.Context, id string) StockInfo {
	if err := c.waitForSlot(ctx); err != nil {
		return StockInfo{Status: StockError, Error: err.Error()}
	}

	/* 等待期间同批次的其他请求可能触发了限流 */
	if c.isRateLimited() {
		return c.rateLimitedFallback(id)
	}

	reqCtx := ctx
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	started := time.Now()
	details, err := c.fetcher.FetchAssetDetails(reqCtx, id)
	metrics.StockUpstreamDuration.Observe(time.Since(started).Seconds())

	switch {
	case errors.Is(err, ErrUpstreamRateLimited):
		metrics.StockUpstreamRequests.WithLabelValues(string(StockRateLimited)).Inc()
		c.tripRateLimit()
		return c.rateLimitedFallback(id)
	case err != nil:
		metrics.StockUpstreamRequests.WithLabelValues(string(StockError)).Inc()
		c.logger.Warn("查询上游库存失败", zap.String("asset_id", id), zap.Error(err))
		return c.store(id, StockInfo{Status: StockError, Error: err.Error()})
	case details.Kind == AssetNotLimited:
		metrics.StockUpstreamRequests.WithLabelValues(string(StockNotLimited)).Inc()
		return c.store(id, StockInfo{Status: StockNotLimited, Error: "not a limited item"})
	default:
		metrics.StockUpstreamRequests.WithLabelValues(string(StockOK)).Inc()
		return c.store(id, StockInfo{
			Status:       StockOK,
			CurrentStock: details.Available,
			TotalStock:   details.Total,
		})
	}
}

/*
waitForSlot 间隔闸门
距上次出站请求不足 MinRequestInterval 时补足剩余时间
*/
func (c *StockCache) waitForSlot(ctx context.Context) error {
	c.gateMu.Lock()
	defer c.gateMu.Unlock()

	if !c.lastRequest.IsZero() {
		if wait := c.cfg.MinRequestInterval - c.now().Sub(c.lastRequest); wait > 0 {
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	c.lastRequest = c.now()
	return nil
}

/* rateLimitedFallback 冷却期内优先返回旧数据（即使已过期），否则缓存一条限流结果 */
func (c *StockCache) rateLimitedFallback(id string) StockInfo {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if ok {
		return entry.info
	}
	return c.store(id, StockInfo{Status: StockRateLimited, Error: "rate limited, retry later"})
}

func (c *StockCache) store(id string, info StockInfo) StockInfo {
	c.mu.Lock()
	c.entries[id] = stockEntry{info: info, fetchedAt: c.now()}
	c.mu.Unlock()
	return info
}

/* isRateLimited 到达重置时间后惰性恢复为正常状态 */
func (c *StockCache) isRateLimited() bool {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	if c.rateLimited && !c.now().Before(c.resetAt) {
		c.rateLimited = false
		c.logger.Info("上游限流冷却结束，恢复查询")
	}
	return c.rateLimited
}

func (c *StockCache) tripRateLimit() {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	c.resetAt = c.now().Add(c.cfg.RateLimitCooldown)
	if !c.rateLimited {
		c.rateLimited = true
		metrics.StockRateLimitTrips.Inc()
		c.logger.Warn("上游返回 429，进入冷却期", zap.Duration("cooldown", c.cfg.RateLimitCooldown))
	}
}

/*
Purge 删除早于 maxAge 的条目
返回删除数量
*/
func (c *StockCache) Purge(maxAge time.Duration) int {
	cutoff := c.now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, entry := range c.entries {
		if entry.fetchedAt.Before(cutoff) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

func (c *StockCache) Stats() StockCacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	stats := StockCacheStats{Entries: entries, RateLimited: c.isRateLimited()}
	if stats.RateLimited {
		c.rateMu.Lock()
		remaining := c.resetAt.Sub(c.now())
		c.rateMu.Unlock()
		stats.RateLimitResetInSeconds = int64(math.Ceil(remaining.Seconds()))
	}
	return stats
}

/* MaxIDs 单次 GetStock 允许的最大 ID 数 */
func (c *StockCache) MaxIDs() int {
	return c.cfg.MaxIDs
}

/* SuccessTTL 清理任务按它推算过期阈值 */
func (c *StockCache) SuccessTTL() time.Duration {
	return c.cfg.SuccessTTL
}

/* normalizeIDs 去空白、去重，保持首次出现顺序 */
func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
