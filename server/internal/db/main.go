package db

import (
	"context"
	"fmt"
	"time"

	"ugcleaks/server/internal/db/database"
	"ugcleaks/server/internal/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

/*
Manager 数据库管理器
功能：持有 GORM 连接（PostgreSQL/MySQL/SQLite）和可选的 Redis 客户端
*/
type Manager struct {
	GormDB *gorm.DB
	Redis  *database.RedisClient /* 未配置或连接失败时为 nil */
}

/*
Config 数据库配置
*/
type Config struct {
	DBType string

	SQLitePath string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBCharset  string

	MaxOpenConns int
	MaxIdleConns int
	DBLogLevel   string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisPoolSize     int
	RedisMinIdleConns int
	RedisMaxRetries   int
}

/*
NewManager 创建数据库管理器
功能：连接数据库并执行 AutoMigrate；Redis 失败只告警，不阻止启动
*/
func NewManager(ctx context.Context, cfg *Config) (*Manager, error) {
	dbType := cfg.DBType
	if dbType == "" {
		dbType = string(database.DBTypePostgres)
	}

	gormCfg := &database.Config{
		Type:            database.DBType(dbType),
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		DBName:          cfg.DBName,
		SSLMode:         cfg.DBSSLMode,
		Charset:         cfg.DBCharset,
		SQLitePath:      cfg.SQLitePath,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		LogLevel:        cfg.DBLogLevel,
	}
	if gormCfg.MaxOpenConns == 0 {
		gormCfg.MaxOpenConns = 25
	}
	if gormCfg.MaxIdleConns == 0 {
		gormCfg.MaxIdleConns = 5
	}

	gormDB, err := database.NewDatabase(gormCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}
	if err := database.AutoMigrate(gormDB); err != nil {
		return nil, err
	}

	manager := &Manager{GormDB: gormDB}

	if cfg.RedisAddr != "" {
		client, err := database.NewRedisClient(ctx, &database.RedisConfig{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.RedisPoolSize,
			MinIdleConns: cfg.RedisMinIdleConns,
			MaxRetries:   cfg.RedisMaxRetries,
		})
		if err != nil {
			logger.Warn("⚠ Redis 连接失败，继续运行（令牌吊销仅在本进程生效）", zap.Error(err))
		} else {
			manager.Redis = client
			logger.Info("✓ Redis 已连接", zap.String("addr", cfg.RedisAddr))
		}
	}

	return manager, nil
}

/* HasCache 是否有可用的 Redis */
func (m *Manager) HasCache() bool {
	return m.Redis != nil
}

/*
Close 关闭数据库和 Redis 连接
*/
func (m *Manager) Close() error {
	if m.Redis != nil {
		if err := m.Redis.Close(); err != nil {
			logger.Warn("关闭 Redis 失败", zap.Error(err))
		}
	}
	if m.GormDB != nil {
		sqlDB, err := m.GormDB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
