package api

import (
	"net"
	"net/http"

	"ugcleaks/server/internal/api/handler/item"
	"ugcleaks/server/internal/api/handler/security"
	"ugcleaks/server/internal/api/handler/stock"
	"ugcleaks/server/internal/api/handler/user"
	"ugcleaks/server/internal/api/middleware"
	"ugcleaks/server/internal/api/response"
	"ugcleaks/server/internal/db/models"
	"ugcleaks/server/internal/service"
	"ugcleaks/server/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/* maxBodyBytes 请求体上限 2MB */
const maxBodyBytes = 2 << 20

// SetupRouter 设置路由
func SetupRouter(app *types.App) *gin.Engine {
	if app.Config.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodyLimit(maxBodyBytes))
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(app.Config.Server.CORSAllowedOrigins))

	router.GET("/health", healthHandler(app))

	/* 运行指标仅允许本机访问 */
	router.GET("/metrics", localOnlyGuard(), gin.WrapH(promhttp.Handler()))

	editor := string(models.RoleEditor)
	owner := string(models.RoleOwner)

	v1 := router.Group("/api/v1")
	{
		stockHandler := stock.NewStockHandler(app)
		v1.GET("/roblox-stock", stockHandler.Get)

		auth := v1.Group("/auth")
		{
			authHandler := security.NewAuthHandler(app)
			signin := service.NewLimitConfig(app.Config.Auth.Signin)
			signup := service.NewLimitConfig(app.Config.Auth.Signup)

			auth.POST("/signup", middleware.LoginRateLimit(app.Limiter, "signup", signup), authHandler.Signup)
			auth.POST("/signin", middleware.LoginRateLimit(app.Limiter, "signin", signin), authHandler.Signin)
			auth.POST("/logout", middleware.JWTAuth(app.Auth), authHandler.Logout)
		}

		items := v1.Group("/items")
		{
			itemHandler := item.NewItemHandler(app)

			items.GET("", itemHandler.List)
			items.GET("/:id", itemHandler.Get)

			items.POST("/create", middleware.RequireRole(app.Auth, editor), itemHandler.Create)
			items.POST("/:id/update", middleware.RequireRole(app.Auth, editor), itemHandler.Update)
			items.POST("/:id/delete", middleware.RequireRole(app.Auth, editor), itemHandler.Delete)
			items.POST("/:id/schedule", middleware.RequireRole(app.Auth, editor), itemHandler.Schedule)
			items.POST("/:id/sold-out", middleware.RequireRole(app.Auth, editor), itemHandler.SoldOut)
		}

		users := v1.Group("/users")
		users.Use(middleware.JWTAuth(app.Auth))
		{
			userHandler := user.NewUserHandler(app)

			users.GET("/me", userHandler.Me)
			users.GET("", middleware.RequireRole(app.Auth, owner), userHandler.List)
			users.POST("/:id/role/update", middleware.RequireRole(app.Auth, owner), userHandler.UpdateRole)
			users.POST("/:id/delete", middleware.RequireRole(app.Auth, owner), userHandler.Delete)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		response.GinNotFound(c, "route not found")
	})

	return router
}

/*
healthHandler 数据库不可达时返回 503
*/
func healthHandler(app *types.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "ok"
		if sqlDB, err := app.DB.GormDB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			dbStatus = "unavailable"
		}

		c.JSON(status, gin.H{
			"status":   dbStatus,
			"cache":    app.DB.HasCache(),
			"stock":    app.Stock.Stats(),
			"database": app.Config.Database.Type,
		})
	}
}

/*
localOnlyGuard 仅允许回环地址访问
*/
func localOnlyGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip == nil || !ip.IsLoopback() {
			response.GinForbidden(c, "local access only")
			return
		}
		c.Next()
	}
}
