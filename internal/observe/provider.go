package observe

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitProvider installs a global meter provider that exports to registerer.
// A nil registerer uses the Prometheus default registry, which
// promhttp.Handler serves. The returned provider must be shut down on exit.
func InitProvider(registerer prometheus.Registerer) (*sdkmetric.MeterProvider, error) {
	opts := []promexporter.Option{}
	if registerer != nil {
		opts = append(opts, promexporter.WithRegisterer(registerer))
	}
	exporter, err := promexporter.New(opts...)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)
	return mp, nil
}
