package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New собирает production-логгер zap с уровнем из конфига
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func LogAdminAction(log *zap.Logger, adminID int64, action, params string) {
	log.Info("admin_action", zap.Int64("admin_id", adminID), zap.String("action", action), zap.String("params", params))
}
