package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/project-tracker/internal/model"
	"github.com/iliyamo/project-tracker/internal/repository"
)

const maxDescriptionLen = 10000

// TaskInput creates a task. A zero Status means TO_DO.
type TaskInput struct {
	Title       string
	Description string
	Status      model.TaskStatus
	AssigneeID  *uint64
	DueDate     time.Time
}

// TaskPatch updates a task. Nil fields are left unchanged.
// ClearAssignee unassigns the task and wins over AssigneeID.
type TaskPatch struct {
	Title         *string
	Description   *string
	Status        *model.TaskStatus
	AssigneeID    *uint64
	ClearAssignee bool
	DueDate       *time.Time
}

// TaskService implements the task commands and queries.
type TaskService struct {
	store  repository.Store
	policy *Policy
	perms  *Permissions
	now    func() time.Time
}

// NewTaskService builds the service. now defaults to time.Now.
func NewTaskService(store repository.Store, now func() time.Time) *TaskService {
	if now == nil {
		now = time.Now
	}
	return &TaskService{
		store:  store,
		policy: NewPolicy(store.Grants()),
		perms:  NewPermissions(store.Grants()),
		now:    now,
	}
}

// List returns the tasks the caller can view, directly or through the
// parent project.
func (s *TaskService) List(ctx context.Context, id model.Identity, f model.TaskFilter) ([]*model.Task, error) {
	tasks, err := s.perms.ObjectsForUser(ctx, id, model.CapView, model.ObjectTask)
	if err != nil {
		return nil, fmt.Errorf("list visible tasks: %w", err)
	}
	projects, err := s.perms.ObjectsForUser(ctx, id, model.CapView, model.ObjectProject)
	if err != nil {
		return nil, fmt.Errorf("list visible projects: %w", err)
	}
	scope := repository.TaskScope{
		All:        tasks.All || projects.All,
		TaskIDs:    tasks.IDs,
		ProjectIDs: projects.IDs,
	}
	return s.store.Tasks().List(ctx, scope, f)
}

// Get returns one task if the caller may view it.
func (s *TaskService) Get(ctx context.Context, id model.Identity, taskID uint64) (*model.Task, error) {
	t, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(ctx, id, OpViewTask, TaskResource(t)); err != nil {
		return nil, err
	}
	return t, nil
}

// Create adds a task to a project. The caller becomes its creator.
func (s *TaskService) Create(ctx context.Context, id model.Identity, projectID uint64, in TaskInput) (*model.Task, error) {
	if _, err := s.store.Projects().Get(ctx, projectID); err != nil {
		return nil, mapNotFound(err)
	}
	if err := s.policy.Authorize(ctx, id, OpCreateTask, ProjectResource(projectID)); err != nil {
		return nil, err
	}

	t := &model.Task{
		ProjectID:  projectID,
		Status:     in.Status,
		AssigneeID: in.AssigneeID,
		DueDate:    in.DueDate,
		CreatedBy:  id.UserID,
	}
	var err error
	if t.Title, err = validTitle(in.Title); err != nil {
		return nil, err
	}
	if t.Description, err = validDescription(in.Description); err != nil {
		return nil, err
	}
	if t.Status == 0 {
		t.Status = model.TaskToDo
	}
	if !t.Status.Valid() {
		return nil, invalid("status", "status must be between 1 and 4")
	}
	if err := s.validDueDate(t.DueDate); err != nil {
		return nil, err
	}
	if err := s.validAssignee(ctx, t.AssigneeID); err != nil {
		return nil, err
	}

	var out *model.Task
	err = s.store.WithinTx(ctx, func(r repository.Repos) error {
		if err := r.Tasks().Create(ctx, t); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		full, err := r.Tasks().Get(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("reload task: %w", err)
		}
		if err := taskCreated(ctx, r, full); err != nil {
			return fmt.Errorf("grant task capabilities: %w", err)
		}
		out = full
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies patch to a task. The patch is applied to the row read
// under a lock inside the transaction, and a changed assignee moves the
// assignee grants in that same transaction.
func (s *TaskService) Update(ctx context.Context, id model.Identity, taskID uint64, patch TaskPatch) (*model.Task, error) {
	t, err := s.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(ctx, id, OpUpdateTask, TaskResource(t)); err != nil {
		return nil, err
	}
	if patch, err = s.validPatch(ctx, patch); err != nil {
		return nil, err
	}

	var out *model.Task
	err = s.store.WithinTx(ctx, func(r repository.Repos) error {
		cur, err := r.Tasks().GetForUpdate(ctx, t.ID)
		if err != nil {
			return mapNotFound(err)
		}
		previous := cur.AssigneeID
		applyTaskPatch(cur, patch)
		if err := r.Tasks().Update(ctx, cur); err != nil {
			return mapNotFound(err)
		}
		if !sameAssignee(previous, cur.AssigneeID) {
			if err := taskAssigneeChanged(ctx, r, cur, previous); err != nil {
				return fmt.Errorf("sync assignee grants: %w", err)
			}
		}
		full, err := r.Tasks().Get(ctx, cur.ID)
		if err != nil {
			return mapNotFound(err)
		}
		out = full
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// validPatch checks every field the patch sets and returns it with
// title and description trimmed.
func (s *TaskService) validPatch(ctx context.Context, patch TaskPatch) (TaskPatch, error) {
	if patch.Title != nil {
		title, err := validTitle(*patch.Title)
		if err != nil {
			return patch, err
		}
		patch.Title = &title
	}
	if patch.Description != nil {
		desc, err := validDescription(*patch.Description)
		if err != nil {
			return patch, err
		}
		patch.Description = &desc
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return patch, invalid("status", "status must be between 1 and 4")
	}
	if patch.DueDate != nil {
		if err := s.validDueDate(*patch.DueDate); err != nil {
			return patch, err
		}
	}
	if !patch.ClearAssignee {
		if err := s.validAssignee(ctx, patch.AssigneeID); err != nil {
			return patch, err
		}
	}
	return patch, nil
}

func applyTaskPatch(t *model.Task, patch TaskPatch) {
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.DueDate != nil {
		t.DueDate = *patch.DueDate
	}
	switch {
	case patch.ClearAssignee:
		t.AssigneeID = nil
	case patch.AssigneeID != nil:
		a := *patch.AssigneeID
		t.AssigneeID = &a
	}
}

// Delete removes a task and its grants.
func (s *TaskService) Delete(ctx context.Context, id model.Identity, taskID uint64) error {
	t, err := s.load(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(ctx, id, OpDeleteTask, TaskResource(t)); err != nil {
		return err
	}
	return s.store.WithinTx(ctx, func(r repository.Repos) error {
		if err := r.Tasks().Delete(ctx, t.ID); err != nil {
			return mapNotFound(err)
		}
		if err := taskDeleted(ctx, r, t.ID); err != nil {
			return fmt.Errorf("drop task grants: %w", err)
		}
		return nil
	})
}

func (s *TaskService) load(ctx context.Context, taskID uint64) (*model.Task, error) {
	t, err := s.store.Tasks().Get(ctx, taskID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return t, nil
}

// validDueDate requires a due date strictly after the current time.
func (s *TaskService) validDueDate(due time.Time) error {
	if due.IsZero() {
		return invalid("due_date", "due_date is required")
	}
	if !due.After(s.now()) {
		return invalid("due_date", "due_date must be in the future")
	}
	return nil
}

func (s *TaskService) validAssignee(ctx context.Context, assignee *uint64) error {
	if assignee == nil {
		return nil
	}
	if _, err := s.store.Users().GetByID(ctx, *assignee); err != nil {
		if mapNotFound(err) == ErrNotFound {
			return invalid("assignee_id", fmt.Sprintf("user %d does not exist", *assignee))
		}
		return fmt.Errorf("check assignee: %w", err)
	}
	return nil
}

func validTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid("title", "title is required")
	}
	if utf8.RuneCountInString(title) > maxNameLen {
		return "", invalid("title", fmt.Sprintf("title must be at most %d characters", maxNameLen))
	}
	return title, nil
}

func validDescription(desc string) (string, error) {
	desc = strings.TrimSpace(desc)
	if utf8.RuneCountInString(desc) > maxDescriptionLen {
		return "", invalid("description", fmt.Sprintf("description must be at most %d characters", maxDescriptionLen))
	}
	return desc, nil
}

func sameAssignee(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
