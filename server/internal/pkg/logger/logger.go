/*
Package logger 全局 zap 日志

Init 之后 zap.L() 与本包的 Logger 指向同一实例，服务内部统一用
zap.L().Named("模块名")。输出到控制台，配置了 OutputPath 时同时写入
lumberjack 轮转文件。级别可在运行时通过 SetLevel 调整。

	logger.Init(&logger.Config{Level: "info", Format: "console"})
	logger.Named("stock-cache").Warn("上游限流", zap.Duration("cooldown", time.Minute))
*/
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	/* Logger Init 之前为 Nop */
	Logger = zap.NewNop()

	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

type Config struct {
	Level      string /* debug / info / warn / error */
	Format     string /* console / json */
	OutputPath string
	MaxSize    int /* MB */
	MaxBackups int
	MaxAge     int /* 天 */
	Compress   bool

	/* 测试用：替代 stdout */
	Console io.Writer
}

/*
Init 构建并替换全局日志器，可重复调用
启动时先以 console 引导，加载配置文件后再次调用
*/
func Init(cfg *Config) error {
	if err := SetLevel(cfg.Level); err != nil {
		return err
	}

	console := cfg.Console
	if console == nil {
		console = os.Stdout
	}
	sinks := []zapcore.WriteSyncer{zapcore.AddSync(console)}

	if cfg.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0755); err != nil {
			return fmt.Errorf("创建日志目录失败: %w", err)
		}
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.OutputPath,
			MaxSize:    orDefault(cfg.MaxSize, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAge, 14),
			Compress:   cfg.Compress,
		}))
	}

	var core zapcore.Core = zapcore.NewCore(newEncoder(cfg.Format), zapcore.NewMultiWriteSyncer(sinks...), level)
	if cfg.Format == "json" {
		/* 同一消息每秒前 100 条全部输出，之后每 100 条取 1 条 */
		core = zapcore.NewSamplerWithOptions(core, 1e9, 100, 100)
	}

	Logger = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	zap.ReplaceGlobals(Logger)
	return nil
}

/* SetLevel 运行时修改级别，空字符串视为 info */
func SetLevel(name string) error {
	if name == "" {
		name = "info"
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("未知日志级别 %q", name)
	}
	level.SetLevel(l)
	return nil
}

func GetLevel() string {
	return level.Level().String()
}

/* newEncoder json 用于日志收集，其余格式为带颜色的 console */
func newEncoder(format string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	if format == "json" {
		return zapcore.NewJSONEncoder(encCfg)
	}
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encCfg)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

/* Sync 退出前刷新缓冲 */
func Sync() {
	_ = Logger.Sync()
}

func Named(name string) *zap.Logger {
	return Logger.Named(name)
}

func Debug(msg string, fields ...zap.Field) { Logger.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field) { Logger.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field) { Logger.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Logger.Error(msg, fields...) }

/* Fatal 记录后 os.Exit(1)，defer 不会执行 */
func Fatal(msg string, fields ...zap.Field) { Logger.Fatal(msg, fields...) }
