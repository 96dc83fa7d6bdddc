package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ugcleaks/server/internal/api"
	"ugcleaks/server/internal/config"
	"ugcleaks/server/internal/db"
	"ugcleaks/server/internal/pkg/initializer"
	"ugcleaks/server/internal/pkg/logger"
	"ugcleaks/server/internal/server"
	"ugcleaks/server/internal/service"
	"ugcleaks/server/internal/types"

	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "./config.yaml", "配置文件路径")
	port       = flag.Int("port", 0, "覆盖服务器端口")
)

/*
main 程序入口
启动流程：
 1. 引导日志 → 首次运行生成配置和目录
 2. 加载配置 → 用配置重新初始化日志
 3. 数据库（SQLite/MySQL/Postgres + 可选 Redis）
 4. JWT 密钥、令牌吊销、库存缓存、登录限流、清理服务
 5. 组装路由 → 启动 HTTP（+ 可选 HTTP/3）服务器
 6. 等待 SIGINT/SIGTERM → 优雅关闭
*/
func main() {
	startupBegin := time.Now()
	flag.Parse()

	if err := logger.Init(&logger.Config{Level: "info", Format: "console"}); err != nil {
		log.Fatalf("初始化日志系统失败: %v", err)
	}
	defer logger.Sync()

	if err := initializer.InitDirectories(); err != nil {
		logger.Fatal("初始化目录失败", zap.Error(err))
	}
	if initializer.IsFirstRun(*configPath) {
		initializer.PrintWelcome(*configPath)
		if err := initializer.InitConfig(*configPath); err != nil {
			logger.Fatal("初始化配置失败", zap.Error(err))
		}
	}

	cfg := config.LoadConfigOrDefault(*configPath)
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if err := logger.Init(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		logger.Fatal("重新初始化日志系统失败", zap.Error(err))
	}

	rootCtx, stopRoot := context.WithCancel(context.Background())
	defer stopRoot()

	/* 数据库 */
	dbStart := time.Now()
	dbManager, err := db.NewManager(rootCtx, &db.Config{
		DBType:            cfg.Database.Type,
		SQLitePath:        cfg.Database.SQLitePath,
		DBHost:            cfg.Database.Host,
		DBPort:            cfg.Database.Port,
		DBUser:            cfg.Database.User,
		DBPassword:        cfg.Database.Password,
		DBName:            cfg.Database.DBName,
		DBSSLMode:         cfg.Database.SSLMode,
		DBCharset:         cfg.Database.Charset,
		MaxOpenConns:      cfg.Database.MaxOpenConns,
		MaxIdleConns:      cfg.Database.MaxIdleConns,
		DBLogLevel:        cfg.Database.LogLevel,
		RedisAddr:         cfg.Redis.Addr,
		RedisPassword:     cfg.Redis.Password,
		RedisDB:           cfg.Redis.DB,
		RedisPoolSize:     cfg.Redis.PoolSize,
		RedisMinIdleConns: cfg.Redis.MinIdleConns,
		RedisMaxRetries:   cfg.Redis.MaxRetries,
	})
	if err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer dbManager.Close()
	logger.Info("✓ 数据库初始化完成", zap.Duration("耗时", time.Since(dbStart)))

	/* 接口值必须是真正的 nil，不能是 (*RedisClient)(nil) */
	var kv service.KeyValueStore
	if dbManager.HasCache() {
		kv = dbManager.Redis
	}

	/* 认证 */
	jwtManager := service.NewJWTManager(kv, cfg.Auth.JWTSecret)
	if err := jwtManager.Start(rootCtx); err != nil {
		logger.Fatal("初始化 JWT 管理器失败", zap.Error(err))
	}
	defer jwtManager.Stop()

	tokenTTL := time.Duration(cfg.Auth.JWTExpiration) * time.Hour
	authService := service.NewAuthService(jwtManager, tokenTTL, service.NewTokenStore(kv))

	/* 库存缓存 */
	stockCfg := service.NewStockCacheConfig(cfg.Stock)
	catalog := service.NewRobloxCatalogClient(cfg.Stock.BaseURL, cfg.Stock.UserAgent, &http.Client{
		Timeout: stockCfg.RequestTimeout,
	})
	stockCache := service.NewStockCache(catalog, stockCfg)

	limiter := service.NewLoginLimiter()
	defer limiter.Stop()

	app := types.NewApp(cfg, dbManager, authService, stockCache, limiter)

	cleanupService := service.NewCleanupService(app.DAO, stockCache)
	go cleanupService.Start()
	defer cleanupService.Stop()

	/* 路由与服务器 */
	router := api.SetupRouter(app)
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled {
		tlsConfig = loadTLSConfig(cfg)
	}

	var handler http.Handler = router
	var http3Server *server.HTTP3Server
	if cfg.Server.EnableHTTP3 && tlsConfig != nil {
		http3Addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTP3Port)
		http3Server = server.NewHTTP3Server(http3Addr, router, tlsConfig)
		handler = http3Server.AltSvc(router)
		go func() {
			logger.Info("✓ HTTP/3 (QUIC) 服务器启动", zap.String("addr", http3Addr))
			if err := http3Server.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP/3 服务器错误", zap.Error(err))
			}
		}()
	} else if cfg.Server.EnableHTTP3 {
		logger.Warn("HTTP/3 已启用但 TLS 未配置，跳过 HTTP/3 服务器")
	}

	httpServer := server.NewHTTP2Server(
		httpAddr, handler, tlsConfig,
		time.Duration(cfg.Server.ReadTimeout)*time.Second,
		time.Duration(cfg.Server.WriteTimeout)*time.Second,
	)
	go func() {
		var err error
		if tlsConfig != nil {
			logger.Info("✓ HTTPS 服务器启动", zap.String("addr", httpAddr))
			err = httpServer.Start(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			logger.Info("✓ HTTP 服务器启动", zap.String("addr", httpAddr))
			err = httpServer.StartInsecure()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常退出", zap.Error(err))
		}
	}()

	logger.Info("✓ UGC Leaks 启动完成",
		zap.Duration("总耗时", time.Since(startupBegin)),
		zap.String("监听地址", httpAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到退出信号，正在优雅关闭...")
	stopRoot()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("关闭 HTTP 服务器失败", zap.Error(err))
	}
	if http3Server != nil {
		if err := http3Server.Shutdown(ctx); err != nil {
			logger.Error("关闭 HTTP/3 服务器失败", zap.Error(err))
		}
	}

	logger.Info("✓ 所有服务器已停止")
}

/*
loadTLSConfig 加载 TLS 证书
未配置证书路径时生成 ./certs 下的自签名证书（仅适合开发）
*/
func loadTLSConfig(cfg *config.Config) *tls.Config {
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		certFile, keyFile, err := initializer.InitCertificates("./certs")
		if err != nil {
			logger.Fatal("生成自签名证书失败", zap.Error(err))
		}
		logger.Warn("⚠ 未配置 TLS 证书，使用自签名证书", zap.String("cert", certFile))
		cfg.TLS.CertFile, cfg.TLS.KeyFile = certFile, keyFile
	}

	tlsConfig, err := server.NewTLSConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		logger.Fatal("加载 TLS 证书失败", zap.Error(err))
	}
	return tlsConfig
}
