package service

import (
	"context"

	"github.com/iliyamo/project-tracker/internal/model"
	"github.com/iliyamo/project-tracker/internal/repository"
)

var (
	ownerCaps    = []model.Capability{model.CapView, model.CapUpdate, model.CapDelete, model.CapManageTasks}
	memberCaps   = []model.Capability{model.CapView, model.CapManageTasks}
	creatorCaps  = []model.Capability{model.CapView, model.CapUpdate, model.CapDelete}
	assigneeCaps = []model.Capability{model.CapView, model.CapUpdate}
)

// The hooks below keep permission_grants in step with projects and
// tasks. Each runs on the Repos of the transaction that mutates the
// entity.

func projectCreated(ctx context.Context, r repository.Repos, p *model.Project) error {
	perms := NewPermissions(r.Grants())
	ref := model.ProjectRef(p.ID)
	if err := perms.Assign(ctx, p.OwnerID, ref, ownerCaps...); err != nil {
		return err
	}
	for _, m := range p.Members {
		if err := perms.Assign(ctx, m.ID, ref, memberCaps...); err != nil {
			return err
		}
	}
	return nil
}

// projectMembersChanged revokes member grants from users no longer in
// the project and grants them to everyone now in it. The owner's grants
// are never revoked here.
func projectMembersChanged(ctx context.Context, r repository.Repos, p *model.Project, previous, current []uint64) error {
	perms := NewPermissions(r.Grants())
	ref := model.ProjectRef(p.ID)
	keep := make(map[uint64]bool, len(current)+1)
	for _, id := range current {
		keep[id] = true
	}
	keep[p.OwnerID] = true
	for _, id := range previous {
		if keep[id] {
			continue
		}
		if err := perms.Remove(ctx, id, ref, memberCaps...); err != nil {
			return err
		}
	}
	for _, id := range current {
		if err := perms.Assign(ctx, id, ref, memberCaps...); err != nil {
			return err
		}
	}
	return nil
}

func projectDeleted(ctx context.Context, r repository.Repos, projectID uint64, taskIDs []uint64) error {
	if err := r.Grants().RemoveObjects(ctx, model.ObjectTask, taskIDs); err != nil {
		return err
	}
	return r.Grants().RemoveObjects(ctx, model.ObjectProject, []uint64{projectID})
}

func taskCreated(ctx context.Context, r repository.Repos, t *model.Task) error {
	perms := NewPermissions(r.Grants())
	ref := model.TaskRef(t.ID)
	if err := perms.Assign(ctx, t.CreatedBy, ref, creatorCaps...); err != nil {
		return err
	}
	if t.AssigneeID != nil && *t.AssigneeID != t.CreatedBy {
		return perms.Assign(ctx, *t.AssigneeID, ref, assigneeCaps...)
	}
	return nil
}

// taskAssigneeChanged moves assignee grants from previous to the task's
// current assignee. The creator's grants are left alone.
func taskAssigneeChanged(ctx context.Context, r repository.Repos, t *model.Task, previous *uint64) error {
	perms := NewPermissions(r.Grants())
	ref := model.TaskRef(t.ID)
	if previous != nil && *previous != t.CreatedBy && !t.AssignedTo(*previous) {
		if err := perms.Remove(ctx, *previous, ref, assigneeCaps...); err != nil {
			return err
		}
	}
	if t.AssigneeID != nil {
		return perms.Assign(ctx, *t.AssigneeID, ref, assigneeCaps...)
	}
	return nil
}

func taskDeleted(ctx context.Context, r repository.Repos, taskID uint64) error {
	return r.Grants().RemoveObjects(ctx, model.ObjectTask, []uint64{taskID})
}
