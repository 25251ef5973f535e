package service

import (
	"context"
	"fmt"
	"time"

	"github.com/iliyamo/project-tracker/internal/logger"
	"github.com/iliyamo/project-tracker/internal/metrics"
	"github.com/iliyamo/project-tracker/internal/model"
	"github.com/iliyamo/project-tracker/internal/repository"
)

// ReminderService mails the one-shot pending and overdue reminders.
// It runs on the scheduler's behalf and is not gated per user.
type ReminderService struct {
	tasks  repository.TaskStore
	mailer Mailer
	from   string
	window time.Duration
	now    func() time.Time
}

func NewReminderService(tasks repository.TaskStore, mailer Mailer, from string, window time.Duration, now func() time.Time) *ReminderService {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = time.Hour
	}
	return &ReminderService{tasks: tasks, mailer: mailer, from: from, window: window, now: now}
}

// Run sends both reminder kinds and returns how many mails went out.
func (s *ReminderService) Run(ctx context.Context) (int, error) {
	sent := 0
	for _, kind := range []model.ReminderKind{model.ReminderOverdue, model.ReminderPending} {
		n, err := s.RunKind(ctx, kind)
		sent += n
		if err != nil {
			return sent, err
		}
	}
	return sent, nil
}

// RunKind sends one reminder kind. A task whose flag was already set by
// a concurrent run is skipped; a failed dispatch leaves the flag unset
// so the next tick retries it.
func (s *ReminderService) RunKind(ctx context.Context, kind model.ReminderKind) (int, error) {
	now := s.now()
	due, err := s.tasks.DueForReminder(ctx, kind, now, s.window)
	if err != nil {
		return 0, fmt.Errorf("load %s tasks: %w", kind, err)
	}
	sent := 0
	for _, t := range due {
		if err := s.mailer.Send(ctx, reminderMail(kind, t, s.from)); err != nil {
			logger.Error().Err(err).Uint64("task_id", t.ID).Str("kind", string(kind)).Msg("reminder not dispatched")
			continue
		}
		marked, err := s.tasks.MarkNotified(ctx, t.ID, kind)
		if err != nil {
			return sent, fmt.Errorf("mark task %d notified: %w", t.ID, err)
		}
		if !marked {
			continue
		}
		sent++
		metrics.RemindersSent.WithLabelValues(string(kind)).Inc()
	}
	return sent, nil
}

func reminderMail(kind model.ReminderKind, t *model.Task, from string) model.Mail {
	due := t.DueDate.UTC().Format(time.RFC1123)
	m := model.Mail{From: from, Recipients: reminderRecipients(t)}
	switch kind {
	case model.ReminderOverdue:
		m.Subject = fmt.Sprintf("Task overdue: %s", t.Title)
		m.Body = fmt.Sprintf("The task %q (#%d) was due on %s and is not done yet.", t.Title, t.ID, due)
	default:
		m.Subject = fmt.Sprintf("Task due soon: %s", t.Title)
		m.Body = fmt.Sprintf("The task %q (#%d) is due on %s.", t.Title, t.ID, due)
	}
	return m
}

// reminderRecipients is the creator plus the assignee when distinct.
func reminderRecipients(t *model.Task) []string {
	out := []string{t.Creator.Email}
	if t.Assignee != nil && t.Assignee.ID != t.CreatedBy && t.Assignee.Email != "" {
		out = append(out, t.Assignee.Email)
	}
	return out
}
