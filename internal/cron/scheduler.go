// Package cron schedules plugins' registered jobs and, on each tick,
// asks the plugin runtime to invoke the owning plugin's scheduled-job
// handler.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/celarye/discord-bot/internal/channels"
	"github.com/celarye/discord-bot/internal/plugin"
)

// Scheduler wraps a robfig/cron/v3 scheduler, dispatching each firing
// entry to the plugin runtime's message channel rather than acting on
// it directly.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	logger   *slog.Logger
	chans    *channels.Bundle
	entryIDs map[string]cron.EntryID // "pluginID/internalID" -> cron entry
	running  bool
}

// New builds a Scheduler. It does not start running jobs until Start
// is called.
func New(logger *slog.Logger, chans *channels.Bundle) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger,
		chans:    chans,
		entryIDs: make(map[string]cron.EntryID),
	}
}

// RegisterScheduledJobs schedules every job in registrations. A job
// whose cron expression fails to parse is logged and skipped; it does
// not prevent the rest from being scheduled.
func (s *Scheduler) RegisterScheduledJobs(registrations []plugin.ScheduledJobRegistration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, registration := range registrations {
		for _, expr := range registration.Crons {
			if err := s.scheduleJob(registration.PluginID, registration.InternalID, expr); err != nil {
				s.logger.Error("failed to schedule job", "plugin_id", registration.PluginID, "internal_id", registration.InternalID, "cron", expr, "error", err)
			}
		}
	}
}

// scheduleJob must be called with s.mu held.
func (s *Scheduler) scheduleJob(pluginID, internalID, expr string) error {
	key := jobKey(pluginID, internalID)

	entryID, err := s.cron.AddFunc(expr, s.fire(pluginID, internalID))
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	s.entryIDs[key] = entryID
	s.logger.Info("scheduled job", "plugin_id", pluginID, "internal_id", internalID, "cron", expr)
	return nil
}

// fire returns the function robfig/cron invokes on each tick: it
// enqueues a RuntimeScheduledJob message rather than calling the
// plugin directly, so job firing never blocks on plugin execution.
func (s *Scheduler) fire(pluginID, internalID string) func() {
	return func() {
		msg := channels.RuntimeMessage{
			ScheduledJob: &channels.RuntimeScheduledJob{PluginID: pluginID, InternalID: internalID},
		}
		select {
		case s.chans.Runtime <- msg:
		default:
			s.logger.Warn("runtime channel full, dropping scheduled job tick", "plugin_id", pluginID, "internal_id", internalID)
		}
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
}

// Shutdown implements shutdown.Stopper: it stops accepting new ticks
// and waits for any in-flight job function to return.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cronCtx := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func jobKey(pluginID, internalID string) string {
	return pluginID + "/" + internalID
}
