package service

import (
	"sync"
	"time"

	"ugcleaks/server/internal/db/dao"
	"ugcleaks/server/internal/pkg/logger"

	"go.uber.org/zap"
)

const (
	cleanupInterval = 5 * time.Minute
	/* releaseGrace 发售时间过去多久后自动标记为 released */
	releaseGrace = 24 * time.Hour
	/* stockRetention 缓存条目保留为成功 TTL 的倍数 */
	stockRetention = 10
)

/*
CleanupService 定时任务
功能：清理长期未访问的库存缓存条目，并把已过发售时间的 upcoming 条目标记为 released
*/
type CleanupService struct {
	dao      *dao.DAO
	stock    *StockCache
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewCleanupService(d *dao.DAO, stock *StockCache) *CleanupService {
	return &CleanupService{
		dao:      d,
		stock:    stock,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

/* Start 阻塞运行，应在独立 goroutine 中调用 */
func (s *CleanupService) Start() {
	s.runCleanup()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCleanup()
		case <-s.stopChan:
			return
		}
	}
}

func (s *CleanupService) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *CleanupService) runCleanup() {
	logger.Debug("执行定时清理任务")
	s.purgeStockCache()
	s.releasePastItems()
}

func (s *CleanupService) purgeStockCache() {
	if s.stock == nil {
		return
	}
	if n := s.stock.Purge(stockRetention * s.stock.SuccessTTL()); n > 0 {
		logger.Info("已清理过期库存缓存", zap.Int("count", n))
	}
}

func (s *CleanupService) releasePastItems() {
	count, err := s.dao.MarkReleasedBefore(s.now().Add(-releaseGrace))
	if err != nil {
		logger.Error("批量更新发售状态失败", zap.Error(err))
		return
	}
	if count > 0 {
		logger.Info("已将过期条目标记为 released", zap.Int64("count", count))
	}
}
