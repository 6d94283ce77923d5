package sysutil

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log = zap.NewNop()
var LogSugar = Log.Sugar()

// InitLogger level 解析失败时退回 debug
func InitLogger(level string) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.DebugLevel
	}

	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder        // 格式化时间输出
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // 彩色级别
	// 开发模式：输出到控制台，带颜色和行号
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(config.EncoderConfig),
		zapcore.AddSync(os.Stdout),
		lvl,
	)
	Log = zap.New(core, zap.AddCaller())
	LogSugar = Log.Sugar()
}

// OrNop 组件未注入 logger 时不输出
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
