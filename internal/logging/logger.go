package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New 初始化日志
// debug 模式使用彩色控制台输出，否则输出 JSON
func New(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
