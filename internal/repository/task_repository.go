package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/project-tracker/internal/model"
)

// TaskRepo provides CRUD and reminder queries for the `tasks` table.
// All timestamps are stored in UTC.
type TaskRepo struct {
	q DBTX
}

func NewTaskRepo(q DBTX) *TaskRepo { return &TaskRepo{q: q} }

const taskSelect = `SELECT t.id, t.project_id, t.title, t.description, t.status,
	t.assignee_id, a.email, t.due_date, t.created_by, c.email, t.created_at,
	t.pending_notification_sent, t.overdue_notification_sent
	FROM tasks t
	JOIN users c ON c.id = t.created_by
	LEFT JOIN users a ON a.id = t.assignee_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(s rowScanner) (*model.Task, error) {
	var (
		t             model.Task
		description   sql.NullString
		assigneeID    sql.NullInt64
		assigneeEmail sql.NullString
	)
	err := s.Scan(&t.ID, &t.ProjectID, &t.Title, &description, &t.Status,
		&assigneeID, &assigneeEmail, &t.DueDate, &t.CreatedBy, &t.Creator.Email, &t.CreatedAt,
		&t.PendingNotificationSent, &t.OverdueNotificationSent)
	if err != nil {
		return nil, err
	}
	t.Description = description.String
	t.Creator.ID = t.CreatedBy
	if assigneeID.Valid {
		id := uint64(assigneeID.Int64)
		t.AssigneeID = &id
		t.Assignee = &model.UserRef{ID: id, Email: assigneeEmail.String}
	}
	return &t, nil
}

func nullableID(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}

// Create inserts a task and populates ID and CreatedAt.
func (r *TaskRepo) Create(ctx context.Context, t *model.Task) error {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO tasks (project_id, title, description, status, assignee_id, due_date, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ProjectID, t.Title, t.Description, uint8(t.Status), nullableID(t.AssigneeID), t.DueDate.UTC(), t.CreatedBy)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return r.q.QueryRowContext(ctx, "SELECT created_at FROM tasks WHERE id = ?", t.ID).Scan(&t.CreatedAt)
}

// Get fetches a task by id, or ErrNotFound.
func (r *TaskRepo) Get(ctx context.Context, id uint64) (*model.Task, error) {
	t, err := scanTask(r.q.QueryRowContext(ctx, taskSelect+" WHERE t.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// GetForUpdate locks the task row until the surrounding transaction ends
// and then reads the task.
func (r *TaskRepo) GetForUpdate(ctx context.Context, id uint64) (*model.Task, error) {
	if err := lockRow(ctx, r.q, "tasks", id); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// List returns tasks within scope that match the filter, ordered by id.
func (r *TaskRepo) List(ctx context.Context, scope TaskScope, f model.TaskFilter) ([]*model.Task, error) {
	if scope.Empty() {
		return nil, nil
	}
	var (
		where []string
		args  []any
	)
	if !scope.All {
		var vis []string
		if len(scope.TaskIDs) > 0 {
			in, ids := inClause(scope.TaskIDs)
			vis = append(vis, "t.id IN ("+in+")")
			args = append(args, ids...)
		}
		if len(scope.ProjectIDs) > 0 {
			in, ids := inClause(scope.ProjectIDs)
			vis = append(vis, "t.project_id IN ("+in+")")
			args = append(args, ids...)
		}
		where = append(where, "("+strings.Join(vis, " OR ")+")")
	}
	if f.ProjectID != nil {
		where = append(where, "t.project_id = ?")
		args = append(args, *f.ProjectID)
	}
	if f.Title != "" {
		where = append(where, "LOWER(t.title) LIKE ?")
		args = append(args, like(f.Title))
	}
	if f.Description != "" {
		where = append(where, "LOWER(t.description) LIKE ?")
		args = append(args, like(f.Description))
	}
	if f.Status != nil {
		where = append(where, "t.status = ?")
		args = append(args, uint8(*f.Status))
	}
	if f.AssigneeID != nil {
		where = append(where, "t.assignee_id = ?")
		args = append(args, *f.AssigneeID)
	}
	if f.CreatedByID != nil {
		where = append(where, "t.created_by = ?")
		args = append(args, *f.CreatedByID)
	}
	if f.DueAfter != nil {
		where = append(where, "t.due_date >= ?")
		args = append(args, f.DueAfter.UTC())
	}
	if f.DueBefore != nil {
		where = append(where, "t.due_date <= ?")
		args = append(args, f.DueBefore.UTC())
	}
	q := taskSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY t.id"
	return r.query(ctx, q, args...)
}

func (r *TaskRepo) query(ctx context.Context, q string, args ...any) ([]*model.Task, error) {
	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update writes the mutable columns of t. Notification flags are not
// touched here; see MarkNotified.
func (r *TaskRepo) Update(ctx context.Context, t *model.Task) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, status = ?, assignee_id = ?, due_date = ?
		 WHERE id = ?`,
		t.Title, t.Description, uint8(t.Status), nullableID(t.AssigneeID), t.DueDate.UTC(), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a task by id.
func (r *TaskRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IDsByProject lists the ids of every task in a project.
func (r *TaskRepo) IDsByProject(ctx context.Context, projectID uint64) ([]uint64, error) {
	rows, err := r.q.QueryContext(ctx, "SELECT id FROM tasks WHERE project_id = ? ORDER BY id", projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DueForReminder lists unfinished tasks that still owe the given
// reminder. Pending tasks are due within [now, now+window]; overdue
// tasks are due at or before now.
func (r *TaskRepo) DueForReminder(ctx context.Context, kind model.ReminderKind, now time.Time, window time.Duration) ([]*model.Task, error) {
	now = now.UTC()
	switch kind {
	case model.ReminderPending:
		return r.query(ctx, taskSelect+`
			WHERE t.due_date >= ? AND t.due_date <= ? AND t.status <> ? AND t.pending_notification_sent = FALSE
			ORDER BY t.id`, now, now.Add(window), uint8(model.TaskDone))
	case model.ReminderOverdue:
		return r.query(ctx, taskSelect+`
			WHERE t.due_date <= ? AND t.status <> ? AND t.overdue_notification_sent = FALSE
			ORDER BY t.id`, now, uint8(model.TaskDone))
	}
	return nil, fmt.Errorf("unknown reminder kind %q", kind)
}

// MarkNotified sets the reminder flag for kind. The update only matches
// while the flag is still false, so it reports true exactly once.
func (r *TaskRepo) MarkNotified(ctx context.Context, id uint64, kind model.ReminderKind) (bool, error) {
	var q string
	switch kind {
	case model.ReminderPending:
		q = "UPDATE tasks SET pending_notification_sent = TRUE WHERE id = ? AND pending_notification_sent = FALSE"
	case model.ReminderOverdue:
		q = "UPDATE tasks SET overdue_notification_sent = TRUE WHERE id = ? AND overdue_notification_sent = FALSE"
	default:
		return false, fmt.Errorf("unknown reminder kind %q", kind)
	}
	res, err := r.q.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
