package model

import "time"

// TaskStatus mirrors the TINYINT status column of the `tasks` table.
type TaskStatus uint8

const (
	TaskToDo       TaskStatus = 1
	TaskInProgress TaskStatus = 2
	TaskReview     TaskStatus = 3
	TaskDone       TaskStatus = 4
)

// Valid reports whether s is one of the four known statuses.
func (s TaskStatus) Valid() bool {
	return s >= TaskToDo && s <= TaskDone
}

func (s TaskStatus) String() string {
	switch s {
	case TaskToDo:
		return "TO_DO"
	case TaskInProgress:
		return "IN_PROGRESS"
	case TaskReview:
		return "REVIEW"
	case TaskDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// Task represents a row in the `tasks` table. A task belongs to exactly
// one project and is removed with it. The two notification flags move
// from false to true once and are never reset.
type Task struct {
	ID                      uint64     // tasks.id
	ProjectID               uint64     // tasks.project_id (CASCADE)
	Title                   string     // tasks.title
	Description             string     // tasks.description
	Status                  TaskStatus // tasks.status
	AssigneeID              *uint64    // tasks.assignee_id (nullable, SET NULL)
	Assignee                *UserRef   // resolved assignee, if any
	DueDate                 time.Time  // tasks.due_date (UTC)
	CreatedBy               uint64     // tasks.created_by (RESTRICT)
	Creator                 UserRef    // resolved creator
	CreatedAt               time.Time  // tasks.created_at
	PendingNotificationSent bool       // tasks.pending_notification_sent
	OverdueNotificationSent bool       // tasks.overdue_notification_sent
}

// AssignedTo reports whether the task currently has the given assignee.
func (t *Task) AssignedTo(userID uint64) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

// TaskFilter narrows task listings. Nil/empty fields are ignored.
type TaskFilter struct {
	ProjectID   *uint64
	Title       string
	Description string
	Status      *TaskStatus
	AssigneeID  *uint64
	CreatedByID *uint64
	DueAfter    *time.Time // due_date >= DueAfter
	DueBefore   *time.Time // due_date <= DueBefore
}

// ReminderKind selects one of the two one-shot task notifications.
type ReminderKind string

const (
	ReminderPending ReminderKind = "pending"
	ReminderOverdue ReminderKind = "overdue"
)
