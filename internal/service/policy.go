package service

import (
	"context"
	"fmt"

	"github.com/iliyamo/project-tracker/internal/metrics"
	"github.com/iliyamo/project-tracker/internal/model"
	"github.com/iliyamo/project-tracker/internal/repository"
)

// Operation names a gated command or query.
type Operation string

const (
	OpViewProject   Operation = "view_project"
	OpUpdateProject Operation = "update_project"
	OpDeleteProject Operation = "delete_project"
	OpCreateTask    Operation = "create_task"
	OpViewTask      Operation = "view_task"
	OpUpdateTask    Operation = "update_task"
	OpDeleteTask    Operation = "delete_task"
)

type target int

const (
	onSelf target = iota
	onParent
)

type requirement struct {
	on  target
	cap model.Capability
}

type rule struct {
	object model.ObjectType
	anyOf  []requirement
}

// rules is the authorization table. Holding any one requirement of a
// rule is enough.
var rules = map[Operation]rule{
	OpViewProject:   {model.ObjectProject, []requirement{{onSelf, model.CapView}}},
	OpUpdateProject: {model.ObjectProject, []requirement{{onSelf, model.CapUpdate}}},
	OpDeleteProject: {model.ObjectProject, []requirement{{onSelf, model.CapDelete}}},
	OpCreateTask:    {model.ObjectProject, []requirement{{onSelf, model.CapUpdate}, {onSelf, model.CapManageTasks}}},
	OpViewTask:      {model.ObjectTask, []requirement{{onSelf, model.CapView}, {onParent, model.CapView}}},
	OpUpdateTask:    {model.ObjectTask, []requirement{{onSelf, model.CapUpdate}, {onParent, model.CapManageTasks}}},
	OpDeleteTask:    {model.ObjectTask, []requirement{{onSelf, model.CapDelete}, {onParent, model.CapManageTasks}}},
}

// Resource is the object an operation acts on, plus its parent when the
// object is a task.
type Resource struct {
	Object model.ObjectRef
	Parent *model.ObjectRef
}

func ProjectResource(id uint64) Resource {
	return Resource{Object: model.ProjectRef(id)}
}

func TaskResource(t *model.Task) Resource {
	parent := model.ProjectRef(t.ProjectID)
	return Resource{Object: model.TaskRef(t.ID), Parent: &parent}
}

// Policy evaluates the rules table against the grant store.
type Policy struct {
	perms *Permissions
}

func NewPolicy(grants repository.GrantStore) *Policy {
	return &Policy{perms: NewPermissions(grants)}
}

// Authorize returns nil when id may perform op on res and
// ErrPermissionDenied otherwise. The resource must already be known to
// exist.
func (p *Policy) Authorize(ctx context.Context, id model.Identity, op Operation, res Resource) error {
	r, ok := rules[op]
	if !ok {
		return fmt.Errorf("policy: unknown operation %q", op)
	}
	if res.Object.Type != r.object {
		return fmt.Errorf("policy: %s expects a %s, got %s", op, r.object, res.Object)
	}
	for _, req := range r.anyOf {
		obj := res.Object
		if req.on == onParent {
			if res.Parent == nil {
				continue
			}
			obj = *res.Parent
		}
		has, err := p.perms.Has(ctx, id.UserID, obj, req.cap)
		if err != nil {
			return fmt.Errorf("policy: check %s on %s: %w", req.cap, obj, err)
		}
		if has {
			return nil
		}
	}
	metrics.PermissionDenied.WithLabelValues(string(op)).Inc()
	return ErrPermissionDenied
}
