package skills

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Watcher periodically sweeps the skills directory, hot-reloading changed
// skills and picking up new ones. It is the registry's only writer path; a
// sweep may run concurrently with any number of conversation loops, which
// bind the tool set per turn and therefore pick up the new snapshot on
// their next iteration.
type Watcher struct {
	loader   *Loader
	registry *Registry
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewWatcher creates a watcher sweeping on the given cron schedule
// (e.g. "@every 30s").
func NewWatcher(loader *Loader, registry *Registry, schedule string, logger *slog.Logger) (*Watcher, error) {
	w := &Watcher{
		loader:   loader,
		registry: registry,
		logger:   logger.With("component", "skill_watcher"),
		cron:     cron.New(),
	}
	if _, err := w.cron.AddFunc(schedule, w.Sweep); err != nil {
		return nil, fmt.Errorf("invalid reload schedule %q: %w", schedule, err)
	}
	return w, nil
}

// Start begins the sweep schedule in the cron's own goroutine.
func (w *Watcher) Start() {
	w.cron.Start()
	w.logger.Info("skill watcher started")
}

// Stop halts the schedule, waiting for a running sweep to finish.
func (w *Watcher) Stop() {
	<-w.cron.Stop().Done()
	w.logger.Info("skill watcher stopped")
}

// Sweep runs one pass: reload loaded skills whose files changed, and load
// and register newly discovered ones. A failed reload leaves the previously
// active skill fully intact.
func (w *Watcher) Sweep() {
	for _, name := range w.loader.LoadedNames() {
		if !w.loader.NeedsReload(name) {
			continue
		}
		skill, err := w.loader.Reload(name)
		if err != nil {
			w.logger.Warn("reload failed, keeping active version", "skill", name, "error", err)
			continue
		}
		if err := w.registry.Update(skill); err != nil {
			w.logger.Warn("reload publish rejected", "skill", name, "error", err)
			continue
		}
		w.logger.Info("skill hot-reloaded", "skill", name)
	}

	names, err := w.loader.Discover()
	if err != nil {
		w.logger.Warn("discovery failed during sweep", "error", err)
		return
	}
	loaded := make(map[string]bool)
	for _, n := range w.loader.LoadedNames() {
		loaded[n] = true
	}
	for _, name := range names {
		if loaded[name] {
			continue
		}
		skill, err := w.loader.Load(name)
		if err != nil {
			w.logger.Warn("new skill failed to load", "skill", name, "error", err)
			continue
		}
		// A skill whose earlier reload failed drops out of the loader cache
		// but stays registered; publishing it again is an update.
		if _, registered := w.registry.GetSkill(skill.Manifest.Name); registered {
			if err := w.registry.Update(skill); err != nil {
				w.logger.Warn("skill update rejected", "skill", name, "error", err)
			}
			continue
		}
		if err := w.registry.Register(skill); err != nil {
			w.logger.Warn("new skill rejected", "skill", name, "error", err)
		}
	}
}
