package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger

// Init 로거 초기화. production 이면 JSON, 그 외에는 콘솔 인코더.
// 알 수 없는 level 은 에러
func Init(level, env string) error {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	cfg := zap.NewDevelopmentConfig()
	if env == "production" {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	built, err := cfg.Build(zap.Fields(zap.String("service", "duel-arena")))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	log = built.Sugar()
	return nil
}

// Named 컴포넌트용 구조화 로거. Init 전에는 Nop 로거
func Named(name string) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log.Desugar().Named(name)
}

// Sync 로거 플러시
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

// Debug 디버그 로그
func Debug(msg string, keysAndValues ...interface{}) {
	if log != nil {
		log.Debugw(msg, keysAndValues...)
	}
}

// Info 정보 로그
func Info(msg string, keysAndValues ...interface{}) {
	if log != nil {
		log.Infow(msg, keysAndValues...)
	}
}

// Warn 경고 로그
func Warn(msg string, keysAndValues ...interface{}) {
	if log != nil {
		log.Warnw(msg, keysAndValues...)
	}
}

// Error 에러 로그
func Error(msg string, keysAndValues ...interface{}) {
	if log != nil {
		log.Errorw(msg, keysAndValues...)
	}
}

// Fatal 치명적 에러 로그 (프로그램 종료)
func Fatal(msg string, keysAndValues ...interface{}) {
	if log == nil {
		log = zap.Must(zap.NewDevelopment()).Sugar()
	}
	log.Fatalw(msg, keysAndValues...)
}
