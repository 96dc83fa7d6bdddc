package types

import (
	"ugcleaks/server/internal/config"
	"ugcleaks/server/internal/db"
	"ugcleaks/server/internal/db/dao"
	"ugcleaks/server/internal/service"
)

/*
App 应用上下文
功能：启动时构建一次，持有配置、数据库和各个长生命周期服务，通过引用传给 handler
*/
type App struct {
	Config *config.Config
	DB     *db.Manager
	DAO    *dao.DAO

	Auth    *service.AuthService
	Users   *service.UserService
	Items   *service.ItemService
	Stock   *service.StockCache
	Limiter *service.LoginLimiter
}

/*
NewApp 组装服务
auth/stock/limiter 由调用方创建（依赖 JWT 密钥、上游客户端等外部资源）
*/
func NewApp(cfg *config.Config, dbManager *db.Manager, auth *service.AuthService, stock *service.StockCache, limiter *service.LoginLimiter) *App {
	d := dao.New(dbManager.GormDB)
	return &App{
		Config:  cfg,
		DB:      dbManager,
		DAO:     d,
		Auth:    auth,
		Users:   service.NewUserService(d),
		Items:   service.NewItemService(d, stock),
		Stock:   stock,
		Limiter: limiter,
	}
}
