/*
Package config YAML 配置文件

加载顺序：DefaultConfig → 配置文件 → 环境变量（仅密钥类字段）→ Validate
*/
package config

import (
	"fmt"
	"os"
	"strconv"

	"ugcleaks/server/internal/pkg/logger"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const insecureDefaultSecret = "change-this-secret-in-production"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Stock    StockConfig    `yaml:"stock"`
	TLS      TLSConfig      `yaml:"tls"`
	Log      LogConfig      `yaml:"log"`
}

/* ServerConfig 监听地址与超时（秒） */
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Mode         string `yaml:"mode"` /* debug / release */
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`

	/* HTTP/3 需要 TLS 同时启用 */
	EnableHTTP3 bool `yaml:"enable_http3"`
	HTTP3Port   int  `yaml:"http3_port"`

	/* ["*"] 允许所有来源，仅用于开发 */
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

/*
DatabaseConfig 数据库连接
Type 为 postgres（默认）、mysql 或 sqlite；sqlite 只读取 SQLitePath
*/
type DatabaseConfig struct {
	Type       string `yaml:"type"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	DBName     string `yaml:"db_name"`
	SSLMode    string `yaml:"ssl_mode"`
	Charset    string `yaml:"charset"`
	SQLitePath string `yaml:"sqlite_path"`

	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	LogLevel     string `yaml:"log_level"` /* silent / error / warn / info */
}

/* RedisConfig 可选；Addr 为空时 JWT 密钥与令牌吊销只在本进程生效 */
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns"`
	MaxRetries   int    `yaml:"max_retries"`
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`     /* 为空时由 JWTManager 生成（有 Redis 则共享） */
	JWTExpiration int    `yaml:"jwt_expiration"` /* 小时 */

	Signin LimitConfig `yaml:"signin"`
	Signup LimitConfig `yaml:"signup"`
}

/*
LimitConfig 登录/注册限流
窗口内最多 MaxRequests 次尝试，超限后封禁 BlockSeconds 秒
*/
type LimitConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
	MaxRequests   int `yaml:"max_requests"`
	BlockSeconds  int `yaml:"block_seconds"`
}

/*
StockConfig Roblox 库存轮询
时间单位均为毫秒，与上游接口的节流参数保持一致
*/
type StockConfig struct {
	BaseURL              string `yaml:"base_url"`
	UserAgent            string `yaml:"user_agent"`
	MaxIDs               int    `yaml:"max_ids"`
	BatchSize            int    `yaml:"batch_size"`
	BatchDelayMs         int    `yaml:"batch_delay_ms"`
	MinRequestIntervalMs int    `yaml:"min_request_interval_ms"`
	RequestTimeoutMs     int    `yaml:"request_timeout_ms"`
	SuccessTTLMs         int    `yaml:"success_ttl_ms"`
	ErrorTTLMs           int    `yaml:"error_ttl_ms"`
	RateLimitCooldownMs  int    `yaml:"rate_limit_cooldown_ms"`
}

/* TLSConfig 启用但未给证书路径时使用 ./certs 下的自签名证书 */
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

/* LogConfig 对应 logger.Config */
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	OutputPath string `yaml:"output_path"` /* 为空只输出到控制台 */
	MaxSize    int    `yaml:"max_size"`    /* MB */
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` /* 天 */
	Compress   bool   `yaml:"compress"`
}

/*
LoadConfig 从文件加载配置
文件中未出现的字段保留默认值
*/
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.warnInsecureDefaults()
	return cfg, nil
}

/*
applyEnvOverrides 密钥类字段允许用环境变量覆盖，避免写入配置文件
*/
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("UGCLEAKS_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("UGCLEAKS_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("UGCLEAKS_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("UGCLEAKS_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("UGCLEAKS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
}

/*
Validate 校验配置的一致性
错误结果的缓存时长必须严格短于成功结果，否则失败条目会比正常数据更晚刷新
*/
func (c *Config) Validate() error {
	s := c.Stock
	if s.ErrorTTLMs <= 0 || s.SuccessTTLMs <= 0 {
		return fmt.Errorf("stock ttl must be positive")
	}
	if s.ErrorTTLMs >= s.SuccessTTLMs {
		return fmt.Errorf("stock.error_ttl_ms (%d) must be shorter than stock.success_ttl_ms (%d)", s.ErrorTTLMs, s.SuccessTTLMs)
	}
	if s.BatchSize <= 0 {
		return fmt.Errorf("stock.batch_size must be positive")
	}
	if s.MaxIDs <= 0 {
		return fmt.Errorf("stock.max_ids must be positive")
	}
	for name, l := range map[string]LimitConfig{"signin": c.Auth.Signin, "signup": c.Auth.Signup} {
		if l.MaxRequests <= 0 || l.WindowSeconds <= 0 || l.BlockSeconds <= 0 {
			return fmt.Errorf("auth.%s limit values must be positive", name)
		}
	}
	if c.Auth.JWTExpiration <= 0 {
		return fmt.Errorf("auth.jwt_expiration must be positive")
	}
	return nil
}

/* warnInsecureDefaults release 模式下提示默认密钥和通配 CORS */
func (c *Config) warnInsecureDefaults() {
	if c.Server.Mode != "release" {
		return
	}

	if c.Auth.JWTSecret == insecureDefaultSecret || (c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16) {
		logger.Warn("[SECURITY] 生产环境使用了默认或过短的 JWT 密钥，请修改 auth.jwt_secret")
	}
	for _, o := range c.Server.CORSAllowedOrigins {
		if o == "*" {
			logger.Warn("[SECURITY] 生产环境 CORS 允许所有来源，请配置 server.cors_allowed_origins")
			break
		}
	}
}

/* LoadConfigOrDefault 加载失败时记录原因并回退到默认配置 */
func LoadConfigOrDefault(path string) *Config {
	if path == "" {
		return DefaultConfig()
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		logger.Warn("加载配置失败，使用默认配置", zap.String("path", path), zap.Error(err))
		return DefaultConfig()
	}
	return cfg
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			Mode:               "debug",
			ReadTimeout:        15,
			WriteTimeout:       30,
			EnableHTTP3:        false,
			HTTP3Port:          8443,
			CORSAllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Type:         "postgres",
			Host:         "localhost",
			Port:         5432,
			User:         "postgres",
			DBName:       "ugcleaks",
			SSLMode:      "disable",
			Charset:      "utf8mb4",
			SQLitePath:   "./data/ugcleaks.db",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			LogLevel:     "warn",
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 3,
			MaxRetries:   3,
		},
		Auth: AuthConfig{
			JWTSecret:     insecureDefaultSecret,
			JWTExpiration: 24 * 7,
			Signin: LimitConfig{
				WindowSeconds: 15 * 60,
				MaxRequests:   5,
				BlockSeconds:  15 * 60,
			},
			Signup: LimitConfig{
				WindowSeconds: 60 * 60,
				MaxRequests:   3,
				BlockSeconds:  60 * 60,
			},
		},
		Stock: StockConfig{
			BaseURL:              "https://economy.roblox.com",
			UserAgent:            "ugcleaks-stock/1.0",
			MaxIDs:               50,
			BatchSize:            5,
			BatchDelayMs:         1000,
			MinRequestIntervalMs: 100,
			RequestTimeoutMs:     10000,
			SuccessTTLMs:         60000,
			ErrorTTLMs:           30000,
			RateLimitCooldownMs:  60000,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "./logs/ugcleaks.log",
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		},
	}
}

/* SaveConfig 写入 YAML，权限 0600（含密钥和数据库密码） */
func SaveConfig(cfg *Config, path string) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}
