package analytic

import (
	"log/slog"

	"github.com/c360/streamlytics/metric"
)

// Dependencies provides all external collaborators needed by analytics.
// Components receive properly structured dependencies rather than
// individual constructor parameters.
type Dependencies struct {
	Bus     Bus              // Channel pub/sub transport (can be nil for direct-wired instances)
	Metrics *metric.Registry // Metrics registry for Prometheus (can be nil)
	Logger  *slog.Logger     // Structured logger (can be nil, defaults to slog.Default())
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithAnalytic returns a logger configured with analytic context
func (d *Dependencies) GetLoggerWithAnalytic(name string) *slog.Logger {
	return d.GetLogger().With("analytic", name)
}
