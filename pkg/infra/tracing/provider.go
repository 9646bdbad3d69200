// Package tracing 初始化 OpenTelemetry TracerProvider，并提供文档处理与检索
// 链路使用的 span 辅助函数。未启用时不替换全局 provider，span 为 no-op。
package tracing

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials/insecure"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	options "github.com/kart-io/docvector/pkg/options/tracing"
)

// Provider 持有 TracerProvider，tp 为 nil 表示未启用。
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider 按配置创建 Provider。启用时会设置全局 TracerProvider 与
// W3C TraceContext/Baggage 传播器，向量模型请求据此透传 traceparent。
func NewProvider(ctx context.Context, opts *options.Options) (*Provider, error) {
	if opts == nil {
		opts = options.NewOptions()
	}
	if err := opts.Complete(); err != nil {
		return nil, fmt.Errorf("failed to complete options: %w", err)
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("failed to validate options: %w", utilerrors.NewAggregate(errs))
	}
	if !opts.Enabled {
		return &Provider{}, nil
	}

	res, err := newResource(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	exporter, err := newExporter(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(opts)),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(opts.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(opts.BatchMaxSize),
			sdktrace.WithExportTimeout(opts.ExportTimeout),
			sdktrace.WithMaxQueueSize(opts.MaxQueueSize),
		),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &Provider{tp: tp}, nil
}

// Enabled 报告是否导出 span。
func (p *Provider) Enabled() bool { return p.tp != nil }

// Tracer 返回指定名称的 Tracer，未启用时回退到全局 provider。
func (p *Provider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if p.tp == nil {
		return otel.Tracer(name, opts...)
	}
	return p.tp.Tracer(name, opts...)
}

// Shutdown 刷新未导出的 span 并释放 exporter。
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func newResource(ctx context.Context, opts *options.Options) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(opts.ServiceName)),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
	}
	if opts.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(opts.ServiceVersion)))
	}
	if opts.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.DeploymentEnvironment(opts.Environment)))
	}
	return resource.New(ctx, attrs...)
}

func newExporter(ctx context.Context, opts *options.Options) (sdktrace.SpanExporter, error) {
	switch opts.ExporterType {
	case options.ExporterOTLPGRPC:
		return otlptrace.New(ctx, otlptracegrpc.NewClient(grpcClientOptions(opts)...))
	case options.ExporterOTLPHTTP:
		return otlptrace.New(ctx, otlptracehttp.NewClient(httpClientOptions(opts)...))
	case options.ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(os.Stdout))
	case options.ExporterNoop:
		return noopExporter{}, nil
	}
	return nil, fmt.Errorf("unsupported exporter type: %s", opts.ExporterType)
}

func grpcClientOptions(opts *options.Options) []otlptracegrpc.Option {
	out := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		out = append(out, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	if len(opts.Headers) > 0 {
		out = append(out, otlptracegrpc.WithHeaders(opts.Headers))
	}
	return out
}

func httpClientOptions(opts *options.Options) []otlptracehttp.Option {
	out := []otlptracehttp.Option{otlptracehttp.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		out = append(out, otlptracehttp.WithInsecure())
	}
	if len(opts.Headers) > 0 {
		out = append(out, otlptracehttp.WithHeaders(opts.Headers))
	}
	return out
}

// noopExporter 丢弃全部 span，用于只需要 trace_id 关联日志的部署。
type noopExporter struct{}

func (noopExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (noopExporter) Shutdown(context.Context) error                             { return nil }

func newSampler(opts *options.Options) sdktrace.Sampler {
	switch opts.SamplerType {
	case options.SamplerAlwaysOn:
		return sdktrace.AlwaysSample()
	case options.SamplerAlwaysOff:
		return sdktrace.NeverSample()
	case options.SamplerRatio:
		return sdktrace.TraceIDRatioBased(opts.SamplerRatio)
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SamplerRatio))
	}
}
