package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/project-tracker/internal/middleware"
	"github.com/iliyamo/project-tracker/internal/model"
	"github.com/iliyamo/project-tracker/internal/service"
)

// Projects is the project surface used by ProjectHandler.
type Projects interface {
	List(ctx context.Context, id model.Identity, f model.ProjectFilter) ([]*model.Project, error)
	Get(ctx context.Context, id model.Identity, projectID uint64) (*model.Project, error)
	Create(ctx context.Context, id model.Identity, in service.ProjectInput) (*model.Project, error)
	Update(ctx context.Context, id model.Identity, projectID uint64, patch service.ProjectPatch) (*model.Project, error)
	Delete(ctx context.Context, id model.Identity, projectID uint64) error
}

type ProjectHandler struct {
	Projects Projects
}

func NewProjectHandler(p Projects) *ProjectHandler { return &ProjectHandler{Projects: p} }

type projectCreateReq struct {
	Name      string   `json:"name" validate:"required,max=255"`
	MemberIDs []uint64 `json:"member_ids"`
}

type projectPatchReq struct {
	Name      *string   `json:"name" validate:"omitempty,max=255"`
	MemberIDs *[]uint64 `json:"member_ids"`
}

type projectResp struct {
	ID        uint64          `json:"id"`
	Name      string          `json:"name"`
	Owner     model.UserRef   `json:"owner"`
	Members   []model.UserRef `json:"members"`
	CreatedAt time.Time       `json:"created_at"`
}

func toProjectResp(p *model.Project) projectResp {
	members := p.Members
	if members == nil {
		members = []model.UserRef{}
	}
	return projectResp{ID: p.ID, Name: p.Name, Owner: p.Owner, Members: members, CreatedAt: p.CreatedAt}
}

func projectLocation(id uint64) string { return fmt.Sprintf("/v1/projects/%d", id) }

// List returns the projects visible to the caller, filtered by the
// name, owner_email and member_email query parameters.
func (h *ProjectHandler) List(c echo.Context) error {
	id, _ := middleware.IdentityFrom(c)
	f := model.ProjectFilter{
		Name:        c.QueryParam("name"),
		OwnerEmail:  c.QueryParam("owner_email"),
		MemberEmail: c.QueryParam("member_email"),
	}
	ps, err := h.Projects.List(c.Request().Context(), id, f)
	if err != nil {
		return writeError(c, err)
	}
	out := make([]projectResp, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProjectResp(p))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ProjectHandler) Get(c echo.Context) error {
	pid, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	id, _ := middleware.IdentityFrom(c)
	p, err := h.Projects.Get(c.Request().Context(), id, pid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toProjectResp(p))
}

func (h *ProjectHandler) Create(c echo.Context) error {
	var req projectCreateReq
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	id, _ := middleware.IdentityFrom(c)
	p, err := h.Projects.Create(c.Request().Context(), id, service.ProjectInput{Name: req.Name, MemberIDs: req.MemberIDs})
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set(echo.HeaderLocation, projectLocation(p.ID))
	return c.JSON(http.StatusCreated, toProjectResp(p))
}

func (h *ProjectHandler) Update(c echo.Context) error {
	pid, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req projectPatchReq
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	id, _ := middleware.IdentityFrom(c)
	p, err := h.Projects.Update(c.Request().Context(), id, pid, service.ProjectPatch{Name: req.Name, MemberIDs: req.MemberIDs})
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set(echo.HeaderLocation, projectLocation(p.ID))
	return c.JSON(http.StatusOK, toProjectResp(p))
}

func (h *ProjectHandler) Delete(c echo.Context) error {
	pid, err := pathID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	id, _ := middleware.IdentityFrom(c)
	if err := h.Projects.Delete(c.Request().Context(), id, pid); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// pathID parses a positive numeric path parameter. Anything else is a
// 404 since no object can have that id.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, service.ErrNotFound
	}
	return id, nil
}
