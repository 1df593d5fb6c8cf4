package otelcol

import (
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// NewMetricReader is a manual reader: this repository has no metrics
// backend wired (no otlpmetric exporter in the dependency set), so metrics
// are collected in-process and exposed only for future scraping.
func NewMetricReader() metric.Reader {
	return metric.NewManualReader()
}

func defaultTraceProviderOption() []trace.TracerProviderOption {
	return []trace.TracerProviderOption{
		trace.WithResource(resource.Default()),
	}
}

func ProvideTrace(exporter trace.SpanExporter, opts ...trace.TracerProviderOption) *trace.TracerProvider {
	if len(opts) == 0 {
		opts = defaultTraceProviderOption()
	}

	opts = append(opts, trace.WithBatcher(exporter))

	return trace.NewTracerProvider(opts...)
}

func defaultMetricProviderOption() []metric.Option {
	return []metric.Option{
		metric.WithResource(resource.Default()),
	}
}

func ProvideMetric(reader metric.Reader, opts ...metric.Option) *metric.MeterProvider {
	if len(opts) == 0 {
		opts = defaultMetricProviderOption()
	}

	opts = append(opts, metric.WithReader(reader))

	return metric.NewMeterProvider(opts...)
}
