package logger

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a JSON logger that writes to stdout and, when filename is set,
// to a rotating log file.
func New(level, filename string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	core := zapcore.NewCore(newEncoder(), newWriter(filename), lvl)
	return zap.New(core, zap.AddCaller()), nil
}

func newEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(cfg)
}

func newWriter(filename string) zapcore.WriteSyncer {
	console := zapcore.AddSync(os.Stdout)
	if filename == "" {
		return console
	}

	file := &zapcore.BufferedWriteSyncer{
		WS: zapcore.AddSync(&lumberjack.Logger{
			Filename:   filename,
			MaxSize:    20,
			MaxBackups: 3,
			MaxAge:     14,
		}),
		Size:          64 * 1024,
		FlushInterval: 5 * time.Second,
	}
	return zapcore.NewMultiWriteSyncer(console, file)
}
