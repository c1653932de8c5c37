package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/streamlytics/analytic"
	"github.com/c360/streamlytics/errors"
)

// Engine instantiates pipeline definitions and runs their analytics as
// a group: all-or-nothing startup, reverse-order shutdown.
type Engine struct {
	registry *analytic.Registry
	deps     analytic.Dependencies
	logger   *slog.Logger

	mu      sync.Mutex
	running map[string][]analytic.Analytic
}

// NewEngine creates an engine building analytics from reg with shared deps
func NewEngine(reg *analytic.Registry, deps analytic.Dependencies) *Engine {
	return &Engine{
		registry: reg,
		deps:     deps,
		logger:   deps.GetLogger().With("component", "pipeline-engine"),
		running:  make(map[string][]analytic.Analytic),
	}
}

// Start validates, builds and starts every analytic of a definition.
// Construction is all-or-nothing: a failing analytic leaves nothing
// running. Analytics start in declaration order.
func (e *Engine) Start(ctx context.Context, def *Definition) error {
	if err := def.Validate(e.registry); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.running[def.Name]; ok {
		return errors.WrapInvalid(fmt.Errorf("%w: pipeline %q already running", errors.ErrAlreadyStarted, def.Name), "Engine", "Start", "check pipeline state")
	}

	instances := make([]analytic.Analytic, 0, len(def.Analytics))
	for i, cfg := range def.Analytics {
		instance, err := e.registry.Create(cfg, e.deps)
		if err != nil {
			return errors.WrapInvalid(fmt.Errorf("analytic %d (%s): %w", i, cfg.Name, err), "Engine", "Start", "construct pipeline")
		}
		instances = append(instances, instance)
	}

	for i, instance := range instances {
		if err := instance.Start(ctx); err != nil {
			e.stopInstances(instances[:i], time.Second)
			return errors.WrapTransient(fmt.Errorf("analytic %d (%s): %w", i, def.Analytics[i].Name, err), "Engine", "Start", "start pipeline")
		}
	}

	e.running[def.Name] = instances
	e.logger.Info("pipeline started", "pipeline", def.Name, "analytics", len(instances))
	return nil
}

// Stop stops a running pipeline's analytics in reverse order
func (e *Engine) Stop(name string, timeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	instances, ok := e.running[name]
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: pipeline %q not running", errors.ErrNotStarted, name), "Engine", "Stop", "resolve pipeline")
	}
	delete(e.running, name)
	e.stopInstances(instances, timeout)
	e.logger.Info("pipeline stopped", "pipeline", name)
	return nil
}

// StopAll stops every running pipeline
func (e *Engine) StopAll(timeout time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, instances := range e.running {
		delete(e.running, name)
		e.stopInstances(instances, timeout)
		e.logger.Info("pipeline stopped", "pipeline", name)
	}
}

// stopInstances stops in reverse declaration order so downstream
// analytics drain before their feeders go away
func (e *Engine) stopInstances(instances []analytic.Analytic, timeout time.Duration) {
	for i := len(instances) - 1; i >= 0; i-- {
		if err := instances[i].Stop(timeout); err != nil {
			e.logger.Warn("analytic stop failed", "analytic", instances[i].Name(), "error", err)
		}
	}
}

// Running lists the names of running pipelines, sorted
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.running))
	for name := range e.running {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRunning reports whether a pipeline is currently running
func (e *Engine) IsRunning(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[name]
	return ok
}
