package analytic

import (
	"context"
	"strings"
	"time"

	"github.com/c360/streamlytics/data"
)

// DefaultManagementChannel is the shared channel management commands
// arrive on unless an instance overrides it.
const DefaultManagementChannel = "analytics.management"

// Command is a management command addressed to an analytic instance
type Command string

// Management commands
const (
	CommandDelete Command = "DELETE"
	CommandReset  Command = "RESET"
	CommandStart  Command = "START"
	CommandStop   Command = "STOP"
)

// Management command param keys
const (
	// MgmtParamReset on START suppresses the default auto-reset when "false"
	MgmtParamReset = "reset"
)

const mgmtStopTimeout = 10 * time.Second

// NewManagementRecord builds the wire record for a management command.
// Commands ride the same Data transport as measurements: SValue carries
// the command, SourceID the target management ID.
func NewManagementRecord(channel, managementID string, cmd Command, params map[string]string) *data.Data {
	rec := &data.Data{
		StreamName: channel,
		Type:       data.TypeRaw,
		SourceID:   managementID,
		SValue:     string(cmd),
	}
	for k, v := range params {
		rec.SetParam(k, v)
	}
	return rec
}

// handleManagement reacts to management commands filtered by this
// instance's management ID. A deleted instance ignores everything:
// replay after deletion must never reactivate it.
func (c *Core) handleManagement(ctx context.Context, rec *data.Data) {
	if rec.SourceID != c.config.ManagementID {
		return
	}
	if c.deleted.Load() {
		return
	}

	cmd := Command(strings.ToUpper(strings.TrimSpace(rec.SValue)))
	c.logger.Debug("Management command received", "command", string(cmd))

	switch cmd {
	case CommandDelete:
		c.Delete()

	case CommandReset:
		c.Reset()

	case CommandStart:
		// START auto-resets unless explicitly suppressed
		if v, ok := rec.Param(MgmtParamReset); !ok || !strings.EqualFold(v, "false") {
			c.Reset()
		}
		if err := c.Start(ctx); err != nil {
			c.logger.Error("Management START failed", "error", err)
		}

	case CommandStop:
		if err := c.Stop(mgmtStopTimeout); err != nil {
			c.logger.Error("Management STOP failed", "error", err)
		}

	default:
		c.logger.Warn("Unknown management command", "command", rec.SValue)
	}
}
