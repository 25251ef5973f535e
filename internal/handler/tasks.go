package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/project-tracker/internal/middleware"
	"github.com/iliyamo/project-tracker/internal/model"
	"github.com/iliyamo/project-tracker/internal/service"
)

// Tasks is the task surface used by TaskHandler.
type Tasks interface {
	List(ctx context.Context, id model.Identity, f model.TaskFilter) ([]*model.Task, error)
	Get(ctx context.Context, id model.Identity, taskID uint64) (*model.Task, error)
	Create(ctx context.Context, id model.Identity, projectID uint64, in service.TaskInput) (*model.Task, error)
	Update(ctx context.Context, id model.Identity, taskID uint64, patch service.TaskPatch) (*model.Task, error)
	Delete(ctx context.Context, id model.Identity, taskID uint64) error
}

type TaskHandler struct {
	Tasks Tasks
}

func NewTaskHandler(t Tasks) *TaskHandler { return &TaskHandler{Tasks: t} }

type taskCreateReq struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description"`
	Status      uint8      `json:"status" validate:"omitempty,min=1,max=4"`
	AssigneeID  *uint64    `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
}

// nullableID tells an absent field apart from an explicit null.
type nullableID struct {
	Set   bool
	Value *uint64
}

func (n *nullableID) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(b, []byte("null")) {
		n.Value = nil
		return nil
	}
	var v uint64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

type taskPatchReq struct {
	Title       *string    `json:"title" validate:"omitempty,max=255"`
	Description *string    `json:"description"`
	Status      *uint8     `json:"status" validate:"omitempty,min=1,max=4"`
	AssigneeID  nullableID `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
}

type taskResp struct {
	ID          uint64         `json:"id"`
	ProjectID   uint64         `json:"project_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      uint8          `json:"status"`
	StatusName  string         `json:"status_name"`
	Assignee    *model.UserRef `json:"assignee"`
	CreatedBy   model.UserRef  `json:"created_by"`
	DueDate     time.Time      `json:"due_date"`
	CreatedAt   time.Time      `json:"created_at"`
}

func toTaskResp(t *model.Task) taskResp {
	return taskResp{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Status:      uint8(t.Status),
		StatusName:  t.Status.String(),
		Assignee:    t.Assignee,
		CreatedBy:   t.Creator,
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
	}
}

func taskLocation(id uint64) string { return fmt.Sprintf("/v1/tasks/%d", id) }

// List returns the tasks visible to the caller. Supported query
// parameters: project_id, title, description, status, assignee_id,
// created_by_id, due_date_gte and due_date_lte (RFC 3339).
func (h *TaskHandler) List(c echo.Context) error {
	f, err := parseTaskFilter(c)
	if err != nil {
		return writeError(c, err)
	}
	id, _ := middleware.IdentityFrom(c)
	ts, err := h.Tasks.List(c.Request().Context(), id, f)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]taskResp, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTaskResp(t))
	}
	return c.JSON(http.StatusOK, out)
}

func parseTaskFilter(c echo.Context) (model.TaskFilter, error) {
	f := model.TaskFilter{
		Title:       c.QueryParam("title"),
		Description: c.QueryParam("description"),
	}
	ids := map[string]**uint64{
		"project_id":    &f.ProjectID,
		"assignee_id":   &f.AssigneeID,
		"created_by_id": &f.CreatedByID,
	}
	for name, dst := range ids {
		if v := c.QueryParam(name); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return f, badRequest(name, name+" must be a positive integer")
			}
			*dst = &n
		}
	}
	if v := c.QueryParam("status"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		s := model.TaskStatus(n)
		if err != nil || !s.Valid() {
			return f, badRequest("status", "status must be between 1 and 4")
		}
		f.Status = &s
	}
	times := map[string]**time.Time{
		"due_date_gte": &f.DueAfter,
		"due_date_lte": &f.DueBefore,
	}
	for name, dst := range times {
		if v := c.QueryParam(name); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, badRequest(name, name+" must be an RFC 3339 timestamp")
			}
			*dst = &ts
		}
	}
	return f, nil
}

func (h *TaskHandler) Get(c echo.Context) error {
	tid, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	id, _ := middleware.IdentityFrom(c)
	t, err := h.Tasks.Get(c.Request().Context(), id, tid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toTaskResp(t))
}

// Create adds a task to the project in the path.
func (h *TaskHandler) Create(c echo.Context) error {
	pid, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req taskCreateReq
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	in := service.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      model.TaskStatus(req.Status),
		AssigneeID:  req.AssigneeID,
	}
	if req.DueDate != nil {
		in.DueDate = *req.DueDate
	}
	id, _ := middleware.IdentityFrom(c)
	t, err := h.Tasks.Create(c.Request().Context(), id, pid, in)
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set(echo.HeaderLocation, taskLocation(t.ID))
	return c.JSON(http.StatusCreated, toTaskResp(t))
}

func (h *TaskHandler) Update(c echo.Context) error {
	tid, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req taskPatchReq
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	patch := service.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
	}
	if req.Status != nil {
		s := model.TaskStatus(*req.Status)
		patch.Status = &s
	}
	if req.AssigneeID.Set {
		patch.AssigneeID = req.AssigneeID.Value
		patch.ClearAssignee = req.AssigneeID.Value == nil
	}
	id, _ := middleware.IdentityFrom(c)
	t, err := h.Tasks.Update(c.Request().Context(), id, tid, patch)
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set(echo.HeaderLocation, taskLocation(t.ID))
	return c.JSON(http.StatusOK, toTaskResp(t))
}

func (h *TaskHandler) Delete(c echo.Context) error {
	tid, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	id, _ := middleware.IdentityFrom(c)
	if err := h.Tasks.Delete(c.Request().Context(), id, tid); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
