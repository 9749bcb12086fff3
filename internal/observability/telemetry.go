package observability

import (
	"context"
	"time"

	"github.com/annel0/spawnsvc/internal/logging"
	"github.com/annel0/spawnsvc/internal/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// InitTelemetry настраивает TracerProvider и устанавливает его глобальным.
// export == true - спаны уходят в OTLP/HTTP экспортер (по умолчанию localhost:4318,
// переопределяется OTEL_EXPORTER_OTLP_ENDPOINT); иначе спаны только получают
// trace-ID для корреляции логов и событий.
// Возвращает функцию shutdown, которую нужно вызвать при завершении приложения.
func InitTelemetry(ctx context.Context, serviceName string, export bool) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(session.NetworkVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []trace.TracerProviderOption{trace.WithResource(res)}
	if export {
		exp, err := otlptracehttp.New(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, trace.WithBatcher(exp))
	}

	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	if export {
		logging.Info("📡 OpenTelemetry инициализирован (OTLP → 4318, service=%s)", serviceName)
	} else {
		logging.Info("📡 OpenTelemetry без экспорта (service=%s)", serviceName)
	}

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}
	return shutdown, nil
}
