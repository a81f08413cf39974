package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/jobcrew"
)

// Metrics holds the OpenTelemetry instruments for the session client
type Metrics struct {
	// Authenticated request metrics
	RequestsTotal metric.Int64Counter
	RetriesTotal  metric.Int64Counter

	// Token lifecycle metrics
	RefreshTotal          metric.Int64Counter
	RefreshFailuresTotal  metric.Int64Counter
	ValidationFailures    metric.Int64Counter
	RefreshCallsCoalesced metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates the instruments against the global meter provider. The
// global provider delegates, so instruments created before Init still export
// once it installs a real provider.
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.RequestsTotal, _ = meter.Int64Counter(
		"jobcrew.session.requests.total",
		metric.WithDescription("Total number of authenticated requests"),
		metric.WithUnit("{request}"),
	)

	m.RetriesTotal, _ = meter.Int64Counter(
		"jobcrew.session.retries.total",
		metric.WithDescription("Requests replayed after a successful token refresh"),
		metric.WithUnit("{request}"),
	)

	m.RefreshTotal, _ = meter.Int64Counter(
		"jobcrew.session.refresh.total",
		metric.WithDescription("Total number of refresh calls sent"),
		metric.WithUnit("{call}"),
	)

	m.RefreshFailuresTotal, _ = meter.Int64Counter(
		"jobcrew.session.refresh.failures.total",
		metric.WithDescription("Refresh calls that ended the session"),
		metric.WithUnit("{call}"),
	)

	m.ValidationFailures, _ = meter.Int64Counter(
		"jobcrew.session.validate.failures.total",
		metric.WithDescription("Session validations that ended the session"),
		metric.WithUnit("{call}"),
	)

	m.RefreshCallsCoalesced, _ = meter.Int64Counter(
		"jobcrew.session.refresh.coalesced.total",
		metric.WithDescription("Refresh attempts that shared a result with concurrent callers"),
		metric.WithUnit("{call}"),
	)

	return m
}
