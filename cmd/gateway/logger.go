package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger monta o logger zap. O nível fica em level para poder ser trocado
// sem reiniciar (OnConfigChange).
func newLogger(format string, level zap.AtomicLevel) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = level
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

func parseLevel(s string) zap.AtomicLevel {
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	return zap.NewAtomicLevelAt(lvl)
}
