package analytic

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/streamlytics/data"
	"github.com/c360/streamlytics/errors"
)

// Handlers holds the user-supplied algorithm callbacks of an operator.
// Process receives every matching input record. Stream, when set,
// receives the joined latest-record-per-channel map for grouped input.
// Reset must return the operator's partitioned state to empty. Delete
// runs once when the instance is deleted via management command.
type Handlers struct {
	Process func(context.Context, *data.Data)
	Stream  func(context.Context, map[string]*data.Data)
	Reset   func()
	Delete  func()
}

// Options tune the generic runtime behavior of one instance
type Options struct {
	// ManagementChannel carries management commands; defaults to
	// DefaultManagementChannel when the config has a management ID.
	ManagementChannel string
	// AlwaysBroadcast publishes output records to their channel even
	// when direct callbacks are registered for it.
	AlwaysBroadcast bool
	// QueryChannel, when set, additionally receives every output record.
	QueryChannel string
	// SynchronizedJoin delivers the grouped-input map only when every
	// tracked channel's latest record carries the same timestamp.
	SynchronizedJoin bool
}

// Core is the generic lifecycle and wiring engine every operator embeds.
// It subscribes to the configured input channels, dispatches records to
// the operator's Process handler strictly sequentially, routes emitted
// records to direct callbacks and/or channel broadcast, and reacts to
// management commands addressed to its management ID.
type Core struct {
	config   Config
	deps     Dependencies
	handlers Handlers
	opts     Options
	logger   *slog.Logger

	// procMu serializes Process/Stream/Reset and timer firings so
	// operator state needs no internal locking.
	procMu sync.Mutex

	mu           sync.Mutex // lifecycle state
	running      atomic.Bool
	deleted      atomic.Bool
	generation   atomic.Uint64 // bumped by Stop to fence in-flight listeners
	channelInput bool
	subs         []Subscription
	mgmtSub      Subscription

	// Output routing. Registration happens before Start; read without
	// locking on the hot path.
	callbacks map[string][]Callback

	timerMu sync.Mutex
	timers  map[string]*time.Timer

	latest map[string]*data.Data // grouped input: latest record per channel
}

// NewCore builds the runtime core for a validated config. The config
// must already have passed Validate; NewCore performs no I/O.
func NewCore(cfg Config, deps Dependencies, handlers Handlers, opts Options) *Core {
	if opts.ManagementChannel == "" {
		opts.ManagementChannel = DefaultManagementChannel
	}
	return &Core{
		config:       cfg,
		deps:         deps,
		handlers:     handlers,
		opts:         opts,
		logger:       deps.GetLoggerWithAnalytic(cfg.Name),
		channelInput: true,
		callbacks:    make(map[string][]Callback),
		timers:       make(map[string]*time.Timer),
		latest:       make(map[string]*data.Data),
	}
}

// Name returns the configured instance name
func (c *Core) Name() string {
	return c.config.Name
}

// Config returns the instance configuration
func (c *Core) Config() Config {
	return c.config
}

// Logger returns the instance-scoped logger
func (c *Core) Logger() *slog.Logger {
	return c.logger
}

// SetChannelInput toggles whether Start subscribes to the configured
// input channels. Disabled instances receive input exclusively through
// InputFunc callbacks wired by an upstream analytic. Must be called
// before Start.
func (c *Core) SetChannelInput(enable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelInput = enable
}

// InputFunc returns a callback that feeds records into this instance the
// same way a channel subscription would, for direct operator chaining.
func (c *Core) InputFunc() Callback {
	return func(ctx context.Context, rec *data.Data) {
		// Direct connections are explicit wiring, not subscriptions, so
		// they follow the current generation rather than being fenced.
		c.dispatch(ctx, c.generation.Load(), rec)
	}
}

// AddOutputConnection registers a direct callback for records emitted on
// the named output channel. Multiple callbacks per channel are invoked
// in registration order. Must be called before Start.
func (c *Core) AddOutputConnection(channel string, cb Callback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[channel] = append(c.callbacks[channel], cb)
}

// Start subscribes to every configured input channel and begins
// dispatching records. Idempotent: a second Start logs and is a no-op.
// A deleted instance can never be started again.
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deleted.Load() {
		return errors.WrapFatal(errors.ErrDeleted, "Core", "Start", "start deleted instance")
	}
	if c.running.Load() {
		c.logger.Info("Start called on running analytic, ignoring")
		return nil
	}

	needBus := (c.channelInput && len(c.config.InputChannels) > 0) || c.config.ManagementID != ""
	if needBus && c.deps.Bus == nil {
		return errors.WrapFatal(errors.ErrMissingConfig, "Core", "Start", "bus required for channel input")
	}

	gen := c.generation.Load()

	if c.channelInput {
		for _, channel := range c.config.InputChannels {
			ch := channel
			sub, err := c.deps.Bus.Subscribe(ctx, ch, func(ctx context.Context, rec *data.Data) {
				c.countReceived(ch)
				c.dispatch(ctx, gen, rec)
			})
			if err != nil {
				// No partial subscription: tear down whatever was wired.
				c.unsubscribeLocked()
				return errors.WrapTransient(err, "Core", "Start", "subscribe to "+ch)
			}
			c.subs = append(c.subs, sub)
		}
	}

	if c.config.ManagementID != "" && c.mgmtSub == nil {
		sub, err := c.deps.Bus.Subscribe(ctx, c.opts.ManagementChannel, c.handleManagement)
		if err != nil {
			c.unsubscribeLocked()
			return errors.WrapTransient(err, "Core", "Start", "subscribe to management channel")
		}
		c.mgmtSub = sub
	}

	c.running.Store(true)
	if c.deps.Metrics != nil {
		c.deps.Metrics.Metrics.AnalyticsRunning.Inc()
	}

	c.logger.Info("Analytic started",
		"inputs", c.config.InputChannels,
		"outputs", c.config.OutputChannels,
		"channel_input", c.channelInput)
	return nil
}

// Stop unsubscribes all input channels and fences in-flight listeners so
// they are not reused by a future Start. Idempotent. The management
// subscription survives so a stopped instance can be restarted remotely.
func (c *Core) Stop(_ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running.Load() {
		return nil
	}

	// Kill signal scoped to this instance: listeners created for the old
	// generation drop records even if their unsubscribe races delivery.
	c.generation.Add(1)
	c.running.Store(false)
	c.unsubscribeLocked()
	c.cancelAllTimers()

	if c.deps.Metrics != nil {
		c.deps.Metrics.Metrics.AnalyticsRunning.Dec()
	}
	c.logger.Info("Analytic stopped")
	return nil
}

// Reset invokes the operator reset callback, returning partitioned state
// to empty. Subscription state is unaffected.
func (c *Core) Reset() {
	c.procMu.Lock()
	defer c.procMu.Unlock()
	if c.handlers.Reset != nil {
		c.handlers.Reset()
	}
	c.clearJoinState()
	c.logger.Debug("Analytic reset")
}

// Delete stops the instance, runs the operator delete hook, cancels any
// outstanding timers and fences the instance against management replay.
func (c *Core) Delete() {
	if !c.deleted.CompareAndSwap(false, true) {
		return
	}
	_ = c.Stop(0)

	c.mu.Lock()
	if c.mgmtSub != nil {
		if err := c.mgmtSub.Unsubscribe(); err != nil {
			c.logger.Warn("Failed to drop management subscription", "error", err)
		}
		c.mgmtSub = nil
	}
	c.mu.Unlock()

	if c.handlers.Delete != nil {
		c.procMu.Lock()
		c.handlers.Delete()
		c.procMu.Unlock()
	}
	c.logger.Info("Analytic deleted")
}

// IsRunning reports whether the instance is started
func (c *Core) IsRunning() bool {
	return c.running.Load()
}

// IsDeleted reports whether the instance has been deleted
func (c *Core) IsDeleted() bool {
	return c.deleted.Load()
}

// SendData routes an emitted record: all registered callbacks for the
// record's channel are invoked in registration order; the record is
// additionally broadcast on its channel when no callback is registered
// or when AlwaysBroadcast is set, and on the query channel when one is
// configured.
func (c *Core) SendData(ctx context.Context, rec *data.Data) {
	cbs := c.callbacks[rec.StreamName]
	for _, cb := range cbs {
		cb(ctx, rec)
	}

	if c.deps.Bus != nil && (len(cbs) == 0 || c.opts.AlwaysBroadcast) {
		if err := c.deps.Bus.Publish(ctx, rec.StreamName, rec); err != nil {
			c.logger.Warn("Failed to publish record",
				"channel", rec.StreamName,
				"error", err)
		}
	}
	if c.deps.Bus != nil && c.opts.QueryChannel != "" {
		if err := c.deps.Bus.Publish(ctx, c.opts.QueryChannel, rec); err != nil {
			c.logger.Warn("Failed to publish record to query channel",
				"channel", c.opts.QueryChannel,
				"error", err)
		}
	}

	if c.deps.Metrics != nil {
		c.deps.Metrics.Metrics.RecordsPublished.WithLabelValues(c.config.Name, rec.StreamName).Inc()
		if rec.Type == data.TypeAnomaly {
			c.deps.Metrics.Metrics.AnomaliesEmitted.WithLabelValues(c.config.Name).Inc()
		}
	}
}

// StartTimer arms a single-shot timer owned by this instance. Re-arming
// the same key cancels the old handle first, and Stop/Delete cancels all
// outstanding timers, so a stopped instance cannot leak firings. The
// fire callback runs in the instance's sequential context.
func (c *Core) StartTimer(key string, d time.Duration, fire func()) {
	gen := c.generation.Load()

	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if old, ok := c.timers[key]; ok {
		old.Stop()
	}

	var handle *time.Timer
	handle = time.AfterFunc(d, func() {
		c.timerMu.Lock()
		current, ok := c.timers[key]
		if !ok || current != handle {
			// Replaced or cancelled between firing and locking
			c.timerMu.Unlock()
			return
		}
		delete(c.timers, key)
		c.timerMu.Unlock()

		if !c.running.Load() || c.generation.Load() != gen {
			return
		}
		c.procMu.Lock()
		defer c.procMu.Unlock()
		fire()
	})
	c.timers[key] = handle
}

// CancelTimer cancels the timer registered under key, if any
func (c *Core) CancelTimer(key string) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if handle, ok := c.timers[key]; ok {
		handle.Stop()
		delete(c.timers, key)
	}
}

func (c *Core) cancelAllTimers() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	for key, handle := range c.timers {
		handle.Stop()
		delete(c.timers, key)
	}
}

// dispatch runs the operator callbacks for one input record, strictly
// sequentially within this instance.
func (c *Core) dispatch(ctx context.Context, gen uint64, rec *data.Data) {
	if !c.running.Load() || c.generation.Load() != gen || c.deleted.Load() {
		return
	}

	start := time.Now()
	c.procMu.Lock()
	if c.handlers.Process != nil {
		c.handlers.Process(ctx, rec)
	}
	if c.handlers.Stream != nil {
		c.updateJoin(ctx, rec)
	}
	c.procMu.Unlock()

	if c.deps.Metrics != nil {
		c.deps.Metrics.Metrics.RecordsProcessed.WithLabelValues(c.config.Name, "ok").Inc()
		c.deps.Metrics.Metrics.ProcessingDuration.WithLabelValues(c.config.Name).
			Observe(time.Since(start).Seconds())
	}
}

// updateJoin tracks the most recent record per channel and delivers the
// joined map to the Stream handler: on every update, or only when all
// tracked channels carry the same timestamp in synchronized-join mode.
func (c *Core) updateJoin(ctx context.Context, rec *data.Data) {
	c.latest[rec.StreamName] = rec

	if c.opts.SynchronizedJoin {
		if len(c.latest) < len(c.config.InputChannels) {
			return
		}
		for _, other := range c.latest {
			if other.Timestamp != rec.Timestamp {
				return
			}
		}
	}

	joined := make(map[string]*data.Data, len(c.latest))
	for ch, r := range c.latest {
		joined[ch] = r
	}
	c.handlers.Stream(ctx, joined)
}

// clearJoinState must be called with procMu held
func (c *Core) clearJoinState() {
	for ch := range c.latest {
		delete(c.latest, ch)
	}
}

// unsubscribeLocked must be called with mu held
func (c *Core) unsubscribeLocked() {
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("Failed to unsubscribe input channel", "error", err)
		}
	}
	c.subs = nil
}

func (c *Core) countReceived(channel string) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.Metrics.RecordsReceived.WithLabelValues(c.config.Name, channel).Inc()
	}
}
