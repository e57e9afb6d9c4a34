// Package logger zap logger factory
// Package logger zap 日志器工厂
package logger

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 日志配置
type Config struct {
	// Level 日志级别，参见 zapcore.ParseLevel
	Level string
	// File 日志文件路径，为空时只输出到控制台
	File string
	// Production 文件输出使用 JSON 格式
	Production bool
}

// NewLogger builds a tee of a console core on stderr and, when File is set, a file core
// NewLogger 创建控制台（stderr）与文件（配置 File 时）双输出的日志器
func NewLogger(c Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if c.Level != "" {
		l, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "parse log level %q", c.Level)
		}
		level = l
	}

	consoleConfig := zap.NewDevelopmentEncoderConfig()
	consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.Lock(os.Stderr), level),
	}

	if c.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.File), 0754); err != nil {
			return nil, errors.Wrap(err, "create log directory failed")
		}
		f, err := os.OpenFile(c.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, errors.Wrap(err, "open log file failed")
		}

		var encoder zapcore.Encoder
		if c.Production {
			fileConfig := zap.NewProductionEncoderConfig()
			fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			encoder = zapcore.NewJSONEncoder(fileConfig)
		} else {
			fileConfig := zap.NewDevelopmentEncoderConfig()
			fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			encoder = zapcore.NewConsoleEncoder(fileConfig)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(f), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
