package service

import (
	"context"

	"github.com/iliyamo/project-tracker/internal/model"
	"github.com/iliyamo/project-tracker/internal/repository"
)

// Permissions is the grant-store API used by the policy, the lifecycle
// hooks and list queries. It is bound to whatever GrantStore it wraps, so
// hooks build one per transaction.
type Permissions struct {
	grants repository.GrantStore
}

func NewPermissions(g repository.GrantStore) *Permissions {
	return &Permissions{grants: g}
}

// Assign grants every capability in caps on obj to userID.
func (p *Permissions) Assign(ctx context.Context, userID uint64, obj model.ObjectRef, caps ...model.Capability) error {
	for _, c := range caps {
		if err := p.grants.Assign(ctx, userID, obj, c); err != nil {
			return err
		}
	}
	return nil
}

// Remove revokes every capability in caps on obj from userID. Revoking a
// grant that was never made is not an error.
func (p *Permissions) Remove(ctx context.Context, userID uint64, obj model.ObjectRef, caps ...model.Capability) error {
	for _, c := range caps {
		if err := p.grants.Remove(ctx, userID, obj, c); err != nil {
			return err
		}
	}
	return nil
}

// Has reports whether userID holds c on obj. Superusers get no implicit
// pass here.
func (p *Permissions) Has(ctx context.Context, userID uint64, obj model.ObjectRef, c model.Capability) (bool, error) {
	return p.grants.Has(ctx, userID, obj, c)
}

// ObjectsForUser returns the scope of objects of type t the caller holds
// c on. Superusers see every object.
func (p *Permissions) ObjectsForUser(ctx context.Context, id model.Identity, c model.Capability, t model.ObjectType) (repository.Scope, error) {
	if id.IsSuperuser {
		return repository.Scope{All: true}, nil
	}
	ids, err := p.grants.ObjectIDs(ctx, id.UserID, c, t)
	if err != nil {
		return repository.Scope{}, err
	}
	return repository.Scope{IDs: ids}, nil
}
