package repository

import (
	"context"

	"github.com/iliyamo/project-tracker/internal/model"
)

// GrantRepo persists rows of `permission_grants`. The table has a unique
// key over (user_id, object_type, object_id, capability), which makes
// Assign idempotent; Remove on a missing row affects nothing.
type GrantRepo struct{ q DBTX }

func NewGrantRepo(q DBTX) *GrantRepo { return &GrantRepo{q: q} }

// Assign grants capability c on obj to userID.
func (r *GrantRepo) Assign(ctx context.Context, userID uint64, obj model.ObjectRef, c model.Capability) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO permission_grants (user_id, object_type, object_id, capability)
		 VALUES (?,?,?,?)
		 ON DUPLICATE KEY UPDATE user_id = user_id`,
		userID, string(obj.Type), obj.ID, string(c))
	return err
}

// Remove revokes capability c on obj from userID.
func (r *GrantRepo) Remove(ctx context.Context, userID uint64, obj model.ObjectRef, c model.Capability) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM permission_grants
		 WHERE user_id=? AND object_type=? AND object_id=? AND capability=?`,
		userID, string(obj.Type), obj.ID, string(c))
	return err
}

// Has reports whether userID holds capability c on obj.
func (r *GrantRepo) Has(ctx context.Context, userID uint64, obj model.ObjectRef, c model.Capability) (bool, error) {
	var ok bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM permission_grants
		 WHERE user_id=? AND object_type=? AND object_id=? AND capability=?)`,
		userID, string(obj.Type), obj.ID, string(c)).Scan(&ok)
	return ok, err
}

// ObjectIDs lists the ids of objects of type t on which userID holds c.
func (r *GrantRepo) ObjectIDs(ctx context.Context, userID uint64, c model.Capability, t model.ObjectType) ([]uint64, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT object_id FROM permission_grants
		 WHERE user_id=? AND capability=? AND object_type=?
		 ORDER BY object_id`,
		userID, string(c), string(t))
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

// RemoveObjects deletes every grant on the given objects. Grants refer to
// objects polymorphically, so deleting a project or task must call this
// in the same transaction.
func (r *GrantRepo) RemoveObjects(ctx context.Context, t model.ObjectType, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	in, args := inClause(ids)
	_, err := r.q.ExecContext(ctx,
		"DELETE FROM permission_grants WHERE object_type=? AND object_id IN ("+in+")",
		append([]any{string(t)}, args...)...)
	return err
}
