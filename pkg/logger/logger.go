package logger

import (
	"time"

	"identity-service/pkg/config"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

// InitLogger builds the process logger: JSON in production, colorized
// console output everywhere else. The level comes from LOG_LEVEL.
func InitLogger(cfg *config.Config) {
	var zapCfg zap.Config
	if cfg.Server.Env == "production" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level.SetLevel(level)

	built, err := zapCfg.Build()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	log = built

	log.Info("Logger initialized", zap.String("level", level.String()))
}

// GetLogger returns the process logger, building a production fallback when
// InitLogger has not run (tests, tooling).
func GetLogger() *zap.Logger {
	if log == nil {
		fallback, err := zap.NewProduction()
		if err != nil {
			panic("failed to create fallback logger: " + err.Error())
		}
		log = fallback
	}
	return log
}

// Middleware attaches a request-scoped logger to the context and emits one
// line per request. Server errors log at error level, client errors at warn.
func Middleware(base *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			scoped := base.With(zap.String("request_id", requestIDOf(c)))
			c.Set("logger", scoped)

			err := next(c)

			fields := []zapcore.Field{
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", c.RealIP()),
				zap.String("user_agent", c.Request().UserAgent()),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}

			switch {
			case err != nil || c.Response().Status >= 500:
				scoped.Error("HTTP request failed", fields...)
			case c.Response().Status >= 400:
				scoped.Warn("HTTP request rejected", fields...)
			default:
				scoped.Info("HTTP request completed", fields...)
			}

			return err
		}
	}
}
