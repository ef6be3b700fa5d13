// Package logger 基于 zap 的全局日志封装，文件输出走 lumberjack 滚动。
package logger

import (
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

var Lg *zap.Logger

// Init 初始化全局 logger。release 模式只写 JSON 文件，dev 模式额外输出
// 彩色终端日志，error 及以上进 stderr。
func Init(cfg *LogConfig, mode string) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	fileCore := zapcore.NewCore(jsonEncoder(), logWriter(cfg), level)

	core := fileCore
	if mode == "dev" || mode == "development" || mode == "debug" {
		enc := consoleEncoder()
		core = zapcore.NewTee(
			fileCore,
			zapcore.NewCore(enc, zapcore.Lock(os.Stdout), zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl < zapcore.ErrorLevel
			})),
			zapcore.NewCore(enc, zapcore.Lock(os.Stderr), zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= zapcore.ErrorLevel
			})),
		)
	}

	Lg = zap.New(core, zap.AddCaller())
	zap.ReplaceGlobals(Lg)

	Info("init logger success")
	return nil
}

func jsonEncoder() zapcore.Encoder {
	c := zap.NewProductionEncoderConfig()
	c.TimeKey = "time"
	c.EncodeTime = zapcore.ISO8601TimeEncoder
	c.EncodeLevel = zapcore.CapitalLevelEncoder
	c.EncodeDuration = zapcore.SecondsDurationEncoder
	c.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewJSONEncoder(c)
}

// consoleEncoder 终端编码器，时间和调用方压暗，级别按颜色区分
func consoleEncoder() zapcore.Encoder {
	c := zap.NewDevelopmentEncoderConfig()
	c.TimeKey = "time"
	c.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("\x1b[90m" + t.Format("2006-01-02 15:04:05.000") + "\x1b[0m")
	}
	c.EncodeLevel = func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(levelColor(l) + "[" + l.CapitalString() + "]\x1b[0m")
	}
	c.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("\x1b[90m" + caller.TrimmedPath() + "\x1b[0m")
	}
	return zapcore.NewConsoleEncoder(c)
}

func levelColor(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "\x1b[35m"
	case zapcore.InfoLevel:
		return "\x1b[36m"
	case zapcore.WarnLevel:
		return "\x1b[33m"
	case zapcore.ErrorLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return "\x1b[31m"
	default:
		return "\x1b[0m"
	}
}

// logWriter 没配文件名时写 stdout，方便容器里直接收集；Daily 打开时
// 文件名按当天日期展开
func logWriter(cfg *LogConfig) zapcore.WriteSyncer {
	if cfg.Filename == "" {
		return zapcore.Lock(os.Stdout)
	}
	filename := cfg.Filename
	if cfg.Daily {
		ext := filepath.Ext(filename)
		filename = filename[:len(filename)-len(ext)] + "-" + time.Now().Format("2006-01-02") + ext
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		LocalTime:  true,
	})
}

// l 未初始化时退回 zap 全局 logger，测试里不必先 Init
func l() *zap.Logger {
	if Lg != nil {
		return Lg
	}
	return zap.L()
}

// Info 通用 info 日志方法
func Info(msg string, fields ...zap.Field) {
	l().Info(msg, fields...)
}

// Warn 通用 warn 日志方法
func Warn(msg string, fields ...zap.Field) {
	l().Warn(msg, fields...)
}

// Error 通用 error 日志方法
func Error(msg string, fields ...zap.Field) {
	l().Error(msg, fields...)
}

// Debug 通用 debug 日志方法
func Debug(msg string, fields ...zap.Field) {
	l().Debug(msg, fields...)
}

// Fatal 通用 fatal 日志方法
func Fatal(msg string, fields ...zap.Field) {
	l().Fatal(msg, fields...)
}

// Sync 刷新缓冲区
func Sync() {
	_ = l().Sync()
}
