package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iliyamo/project-tracker/internal/logger"
)

// ReminderScheduler runs the reminder workflow on a cron schedule.
type ReminderScheduler struct {
	reminders *ReminderService
	schedule  string
	timeout   time.Duration
	cron      *cron.Cron
}

// NewReminderScheduler accepts any schedule robfig/cron parses,
// including descriptors such as "@every 1m".
func NewReminderScheduler(reminders *ReminderService, schedule string) *ReminderScheduler {
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &ReminderScheduler{reminders: reminders, schedule: schedule, timeout: 30 * time.Second}
}

// Start registers the job and starts the cron loop. Overlapping runs are
// skipped rather than queued.
func (s *ReminderScheduler) Start() error {
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(s.schedule, s.tick); err != nil {
		return err
	}
	s.cron.Start()
	logger.Info().Str("schedule", s.schedule).Msg("reminder scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *ReminderScheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

func (s *ReminderScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.reminders.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("reminder run failed")
		return
	}
	if n > 0 {
		logger.Info().Int("sent", n).Msg("reminders dispatched")
	}
}
