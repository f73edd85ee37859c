package commons

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the application-wide structured logging surface. Every
// component takes it as a dependency instead of reaching for a global.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
	Fatalf(template string, args ...interface{})

	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

type applicationLogger struct {
	*zap.SugaredLogger
}

// NewApplicationLogger builds the process logger: JSON to stdout at the
// level named by LOG_LEVEL (default info), plus a rotated file sink when
// LOG_FILE is set.
func NewApplicationLogger() (Logger, error) {
	level := zapcore.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.Set(raw); err != nil {
			level = zapcore.InfoLevel
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level)
	if path := os.Getenv("LOG_FILE"); path != "" {
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
		core = zapcore.NewTee(core, zapcore.NewCore(encoder, fileSink, level))
	}

	return &applicationLogger{zap.New(core, zap.AddCaller()).Sugar()}, nil
}
