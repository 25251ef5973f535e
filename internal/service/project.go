package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/project-tracker/internal/model"
	"github.com/iliyamo/project-tracker/internal/repository"
)

const maxNameLen = 255

// ProjectInput creates a project.
type ProjectInput struct {
	Name      string
	MemberIDs []uint64
}

// ProjectPatch updates a project. Nil fields are left unchanged; a
// non-nil MemberIDs replaces the whole member set.
type ProjectPatch struct {
	Name      *string
	MemberIDs *[]uint64
}

// ProjectService implements the project commands and queries.
type ProjectService struct {
	store  repository.Store
	policy *Policy
	perms  *Permissions
}

func NewProjectService(store repository.Store) *ProjectService {
	return &ProjectService{
		store:  store,
		policy: NewPolicy(store.Grants()),
		perms:  NewPermissions(store.Grants()),
	}
}

// List returns the projects the caller can view.
func (s *ProjectService) List(ctx context.Context, id model.Identity, f model.ProjectFilter) ([]*model.Project, error) {
	scope, err := s.perms.ObjectsForUser(ctx, id, model.CapView, model.ObjectProject)
	if err != nil {
		return nil, fmt.Errorf("list visible projects: %w", err)
	}
	return s.store.Projects().List(ctx, scope, f)
}

// Get returns one project. A missing project is ErrNotFound whatever the
// caller's grants.
func (s *ProjectService) Get(ctx context.Context, id model.Identity, projectID uint64) (*model.Project, error) {
	p, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(ctx, id, OpViewProject, ProjectResource(p.ID)); err != nil {
		return nil, err
	}
	return p, nil
}

// Create stores a project owned by the caller and grants the owner and
// the initial members their capabilities in the same transaction.
func (s *ProjectService) Create(ctx context.Context, id model.Identity, in ProjectInput) (*model.Project, error) {
	name, err := validName(in.Name)
	if err != nil {
		return nil, err
	}
	members, err := s.validMembers(ctx, in.MemberIDs)
	if err != nil {
		return nil, err
	}

	var out *model.Project
	err = s.store.WithinTx(ctx, func(r repository.Repos) error {
		p := &model.Project{Name: name, OwnerID: id.UserID}
		if err := r.Projects().Create(ctx, p); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		if err := r.Projects().SetMembers(ctx, p.ID, members); err != nil {
			return fmt.Errorf("set members: %w", err)
		}
		full, err := r.Projects().Get(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("reload project: %w", err)
		}
		if err := projectCreated(ctx, r, full); err != nil {
			return fmt.Errorf("grant project capabilities: %w", err)
		}
		out = full
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update renames a project and/or replaces its members. Member grants
// follow the member set. The grant diff is taken from the member set read
// under a row lock, so concurrent updates serialize on the project.
func (s *ProjectService) Update(ctx context.Context, id model.Identity, projectID uint64, patch ProjectPatch) (*model.Project, error) {
	p, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Authorize(ctx, id, OpUpdateProject, ProjectResource(p.ID)); err != nil {
		return nil, err
	}

	var name string
	if patch.Name != nil {
		if name, err = validName(*patch.Name); err != nil {
			return nil, err
		}
	}
	var members []uint64
	if patch.MemberIDs != nil {
		if members, err = s.validMembers(ctx, *patch.MemberIDs); err != nil {
			return nil, err
		}
	}

	var out *model.Project
	err = s.store.WithinTx(ctx, func(r repository.Repos) error {
		cur, err := r.Projects().GetForUpdate(ctx, p.ID)
		if err != nil {
			return mapNotFound(err)
		}
		if patch.Name != nil {
			if err := r.Projects().UpdateName(ctx, cur.ID, name); err != nil {
				return mapNotFound(err)
			}
		}
		if patch.MemberIDs != nil {
			if err := r.Projects().SetMembers(ctx, cur.ID, members); err != nil {
				return fmt.Errorf("set members: %w", err)
			}
			if err := projectMembersChanged(ctx, r, cur, cur.MemberIDs(), members); err != nil {
				return fmt.Errorf("sync member grants: %w", err)
			}
		}
		full, err := r.Projects().Get(ctx, cur.ID)
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

// Delete removes a project, its tasks and every grant on them.
func (s *ProjectService) Delete(ctx context.Context, id model.Identity, projectID uint64) error {
	p, err := s.load(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.policy.Authorize(ctx, id, OpDeleteProject, ProjectResource(p.ID)); err != nil {
		return err
	}
	return s.store.WithinTx(ctx, func(r repository.Repos) error {
		taskIDs, err := r.Tasks().IDsByProject(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("list project tasks: %w", err)
		}
		if err := r.Projects().Delete(ctx, p.ID); err != nil {
			return mapNotFound(err)
		}
		if err := projectDeleted(ctx, r, p.ID, taskIDs); err != nil {
			return fmt.Errorf("drop project grants: %w", err)
		}
		return nil
	})
}

func (s *ProjectService) load(ctx context.Context, projectID uint64) (*model.Project, error) {
	p, err := s.store.Projects().Get(ctx, projectID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return p, nil
}

// validMembers dedupes ids and checks that every one is a user.
func (s *ProjectService) validMembers(ctx context.Context, ids []uint64) ([]uint64, error) {
	members := dedupe(ids)
	if len(members) == 0 {
		return nil, nil
	}
	existing, err := s.store.Users().ExistingIDs(ctx, members)
	if err != nil {
		return nil, fmt.Errorf("check members: %w", err)
	}
	if len(existing) != len(members) {
		known := make(map[uint64]bool, len(existing))
		for _, id := range existing {
			known[id] = true
		}
		for _, id := range members {
			if !known[id] {
				return nil, invalid("member_ids", fmt.Sprintf("user %d does not exist", id))
			}
		}
	}
	return members, nil
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("name", "name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", invalid("name", fmt.Sprintf("name must be at most %d characters", maxNameLen))
	}
	return name, nil
}

func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// mapNotFound turns a repository miss into the service error and wraps
// everything else.
func mapNotFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
