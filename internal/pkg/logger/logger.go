// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger 是全局的 zerolog 实例，所有服务共享同一套输出格式
var Logger zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init 在服务启动时调用，为日志打上服务名，并根据环境变量调整日志级别
func Init(serviceName string) {
	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}
	Logger = Logger.Level(level).With().Str("service", serviceName).Logger()
}

// WithContext 将全局 Logger 挂载到 context 上，下游通过 Ctx 取回
func WithContext(ctx context.Context) context.Context {
	return Logger.WithContext(ctx)
}

// Ctx 从 context 中取出 Logger；如果当前存在活跃的 Span，
// 自动附加 trace_id/span_id，便于日志与链路追踪互查
func Ctx(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = &Logger
	}
	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		child := l.With().
			Str("trace_id", spanCtx.TraceID().String()).
			Str("span_id", spanCtx.SpanID().String()).
			Logger()
		return &child
	}
	return l
}
