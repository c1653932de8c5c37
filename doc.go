// Package streamlytics provides composable streaming analytics over
// uniform tagged measurement records.
//
// # Architecture
//
// Analytics are small, single-purpose operators. Each one subscribes to
// one or more named input channels, processes records one at a time,
// and publishes derived records to its output channels. Channels are
// NATS subjects; any analytic's output can feed any other analytic's
// input, so pipelines are assembled purely through channel naming.
//
// Records flow as data.Data values: a stream name, a source identifier,
// a timestamp, a numeric value, and optional auxiliary fields (string
// value, spatial x/y/z, free-form parameters). Every analytic keys its
// state by source identifier, so one instance handles an entire fleet
// of sensors independently.
//
// The layers, bottom up:
//
//   - data: the record type exchanged on every channel
//   - stats: incremental estimators (time-weighted moving averages,
//     Bollinger bands, windowed sums) shared by the analytics
//   - analytic: the operator runtime (lifecycle, channel wiring,
//     timers, management commands) and the built-in operators in its
//     subpackages (threshold, drift, spike, average, sum, compute,
//     missingdata, suppressor, peer)
//   - pipeline: named groups of analytics started and stopped as a
//     unit, with durable definitions in a JetStream KV bucket
//   - natsclient, metric, errors, config: the service substrate
//
// # Usage
//
// Build an analytic from a configuration and shared dependencies, then
// start it:
//
//	cfg := analytic.NewConfig("Threshold",
//		[]string{"plant.temperature"},
//		[]string{"plant.temperature.alarms"},
//		map[string]string{"threshold": "100", "direction": "rising"})
//	a, err := threshold.New(cfg, deps)
//	if err != nil {
//		return err
//	}
//	if err := a.Start(ctx); err != nil {
//		return err
//	}
//	defer a.Stop(5 * time.Second)
//
// The streamlyticsd command assembles the full service: it registers
// the built-in analytics, loads pipeline definitions from files and
// from the definition store, and serves Prometheus metrics.
package streamlytics
