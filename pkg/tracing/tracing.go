package tracing

import (
	"context"
	"fmt"

	"signal_engine/pkg/logger"

	"github.com/opentracing/opentracing-go"
	jCfg "github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"
)

var (
	serviceName = "default"
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

type Config struct {
	Enabled bool
	Host    string
	Port    int
}

// InitTracer регистрирует глобальный jaeger-трейсер. При Enabled=false остаётся noop.
func InitTracer(conf Config) (opentracing.Tracer, func(), error) {
	if !conf.Enabled {
		t := opentracing.NoopTracer{}
		opentracing.SetGlobalTracer(t)
		return t, func() {}, nil
	}

	cfg := &jCfg.Configuration{
		ServiceName: serviceName,
		Sampler: &jCfg.SamplerConfig{
			Type:  "const",
			Param: 1,
		},
		Reporter: &jCfg.ReporterConfig{
			LogSpans:           true,
			LocalAgentHostPort: fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		},
	}

	jMetricsFactory := metrics.NullFactory
	tracer, closer, err := cfg.NewTracer(
		jCfg.Metrics(jMetricsFactory),
	)
	if err != nil {
		return nil, nil, err
	}

	opentracing.SetGlobalTracer(tracer)
	return tracer, func() {
		if err := closer.Close(); err != nil {
			logger.Error("Error closing Jaeger tracer: %v", err)
		}
	}, nil
}

// StartSpan открывает span от глобального трейсера.
func StartSpan(ctx context.Context, operation string, tags map[string]any) (opentracing.Span, context.Context) {
	span, ctx := opentracing.StartSpanFromContext(ctx, operation)
	for k, v := range tags {
		span.SetTag(k, v)
	}
	return span, ctx
}

// Fail помечает span ошибкой.
func Fail(span opentracing.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.SetTag("error", true)
	span.LogKV("event", "error", "message", err.Error())
}
