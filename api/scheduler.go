// scheduler.go - Follow-up alert scheduler
//
// PURPOSE:
//
//	Periodically sweeps leads that sit too long in one status and stores a
//	notification for each, so supervisors chase brokers before leads go cold.
//
// DESIGN:
//   - robfig/cron drives the sweep (default every 10 minutes)
//   - Runs once immediately on Start
//   - Rules and recurrence live in leads.EvaluateFollowUps; this file only
//     loads data, stores alerts and logs
//   - Overlapping sweeps are skipped, not queued
//
// USAGE:
//
//	scheduler, err := NewFollowUpScheduler(handler, "*/10 * * * *")
//	scheduler.Start()
//	// ... later
//	scheduler.Stop(ctx)
//
// SEE ALSO:
//   - leads/followup.go: Alert rules
//   - handlers.go: RunFollowUps endpoint (manual sweep)
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/warp/lead-engine/leads"
	"github.com/warp/lead-engine/logger"
)

// DefaultFollowUpSchedule runs the sweep every ten minutes.
const DefaultFollowUpSchedule = "*/10 * * * *"

// sweepTimeout bounds a single sweep.
const sweepTimeout = time.Minute

// FollowUpScheduler runs the follow-up sweep on a cron schedule.
type FollowUpScheduler struct {
	handler  *Handler
	schedule string
	cron     *cron.Cron
	log      zerolog.Logger

	// initial tracks the sweep Start fires outside the cron loop.
	initial sync.WaitGroup

	mu      sync.Mutex
	started bool
	lastRun time.Time
}

// NewFollowUpScheduler creates a scheduler for the given cron spec.
func NewFollowUpScheduler(h *Handler, schedule string) (*FollowUpScheduler, error) {
	if schedule == "" {
		schedule = DefaultFollowUpSchedule
	}
	s := &FollowUpScheduler{
		handler:  h,
		schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:      logger.Component(h.Log, "followups"),
	}
	if _, err := s.cron.AddFunc(schedule, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid follow-up schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs one sweep right away, then follows the schedule.
func (s *FollowUpScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.runOnce()
	}()
	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("follow-up scheduler started")
}

// Stop stops the schedule and waits for running sweeps, including the one
// fired by Start, or for ctx.
func (s *FollowUpScheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.initial.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("follow-up scheduler stopped")
	case <-ctx.Done():
		s.log.Warn().Msg("follow-up scheduler stop timed out")
	}
}

// LastRun returns when the last sweep finished.
func (s *FollowUpScheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// NextRun returns the next scheduled sweep, or zero when not started.
func (s *FollowUpScheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *FollowUpScheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	raised, err := s.handler.SweepFollowUps(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("follow-up sweep failed")
		return
	}

	s.mu.Lock()
	s.lastRun = s.handler.Now()
	s.mu.Unlock()

	if raised > 0 {
		s.log.Info().Int("raised", raised).Msg("follow-up alerts raised")
	}
}

// SweepFollowUps evaluates every open lead and stores the alerts that are
// due. Returns how many were raised.
func (h *Handler) SweepFollowUps(ctx context.Context) (int, error) {
	open, err := h.Store.ListOpenLeads(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open leads: %w", err)
	}
	last, err := h.Store.LastAlerts(ctx)
	if err != nil {
		return 0, fmt.Errorf("load last alerts: %w", err)
	}

	now := h.Now()
	alerts := leads.EvaluateFollowUps(open, last, now)
	if len(alerts) == 0 {
		return 0, nil
	}

	saved, err := h.Store.SaveAlerts(ctx, alerts, now)
	if err != nil {
		return 0, fmt.Errorf("save alerts: %w", err)
	}
	for _, n := range saved {
		h.Metrics.FollowUpAlert(string(n.Type))
	}
	return len(saved), nil
}
