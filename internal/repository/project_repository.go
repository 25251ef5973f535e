package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/project-tracker/internal/model"
)

// ProjectRepo encapsulates all database queries related to projects and
// the project_members join table.
type ProjectRepo struct {
	q DBTX
}

func NewProjectRepo(q DBTX) *ProjectRepo { return &ProjectRepo{q: q} }

// Create inserts a new project. On success the project's ID and
// CreatedAt are populated from the database.
func (r *ProjectRepo) Create(ctx context.Context, p *model.Project) error {
	res, err := r.q.ExecContext(ctx, "INSERT INTO projects (name, owner_id) VALUES (?, ?)", p.Name, p.OwnerID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return r.q.QueryRowContext(ctx, "SELECT created_at FROM projects WHERE id = ?", p.ID).Scan(&p.CreatedAt)
}

const projectSelect = `SELECT p.id, p.name, p.owner_id, o.email, p.created_at
	FROM projects p JOIN users o ON o.id = p.owner_id`

// Get fetches a project with its owner and members. It returns
// ErrNotFound if no row exists.
func (r *ProjectRepo) Get(ctx context.Context, id uint64) (*model.Project, error) {
	var p model.Project
	err := r.q.QueryRowContext(ctx, projectSelect+" WHERE p.id = ?", id).
		Scan(&p.ID, &p.Name, &p.OwnerID, &p.Owner.Email, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Owner.ID = p.OwnerID
	if err := r.loadMembers(ctx, []*model.Project{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetForUpdate locks the project row until the surrounding transaction
// ends and then reads the project. Writers that derive grant changes from
// the current member set must read it this way.
func (r *ProjectRepo) GetForUpdate(ctx context.Context, id uint64) (*model.Project, error) {
	if err := lockRow(ctx, r.q, "projects", id); err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// List returns the projects within scope that match the filter, ordered
// by id.
func (r *ProjectRepo) List(ctx context.Context, scope Scope, f model.ProjectFilter) ([]*model.Project, error) {
	if scope.Empty() {
		return nil, nil
	}
	var (
		where []string
		args  []any
	)
	if !scope.All {
		in, ids := inClause(scope.IDs)
		where = append(where, "p.id IN ("+in+")")
		args = append(args, ids...)
	}
	if f.Name != "" {
		where = append(where, "LOWER(p.name) LIKE ?")
		args = append(args, like(f.Name))
	}
	if f.OwnerEmail != "" {
		where = append(where, "LOWER(o.email) LIKE ?")
		args = append(args, like(f.OwnerEmail))
	}
	if f.MemberEmail != "" {
		where = append(where, `EXISTS (SELECT 1 FROM project_members pm JOIN users mu ON mu.id = pm.user_id
			WHERE pm.project_id = p.id AND LOWER(mu.email) LIKE ?)`)
		args = append(args, like(f.MemberEmail))
	}
	q := projectSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY p.id"

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Project
	for rows.Next() {
		p := new(model.Project)
		if err := rows.Scan(&p.ID, &p.Name, &p.OwnerID, &p.Owner.Email, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Owner.ID = p.OwnerID
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadMembers(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadMembers fills Members for every project in ps with a single query.
func (r *ProjectRepo) loadMembers(ctx context.Context, ps []*model.Project) error {
	if len(ps) == 0 {
		return nil
	}
	byID := make(map[uint64]*model.Project, len(ps))
	ids := make([]uint64, 0, len(ps))
	for _, p := range ps {
		p.Members = []model.UserRef{}
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}
	in, args := inClause(ids)
	rows, err := r.q.QueryContext(ctx,
		`SELECT pm.project_id, u.id, u.email FROM project_members pm
		 JOIN users u ON u.id = pm.user_id
		 WHERE pm.project_id IN (`+in+`) ORDER BY pm.project_id, u.id`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var pid uint64
		var m model.UserRef
		if err := rows.Scan(&pid, &m.ID, &m.Email); err != nil {
			return err
		}
		if p, ok := byID[pid]; ok {
			p.Members = append(p.Members, m)
		}
	}
	return rows.Err()
}

// UpdateName renames a project. It returns ErrNotFound when the project
// does not exist.
func (r *ProjectRepo) UpdateName(ctx context.Context, id uint64, name string) error {
	res, err := r.q.ExecContext(ctx, "UPDATE projects SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return err
	}
	// the DSN sets clientFoundRows, so an unchanged name still counts
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMembers replaces the member set of a project.
func (r *ProjectRepo) SetMembers(ctx context.Context, id uint64, memberIDs []uint64) error {
	if _, err := r.q.ExecContext(ctx, "DELETE FROM project_members WHERE project_id = ?", id); err != nil {
		return err
	}
	if len(memberIDs) == 0 {
		return nil
	}
	values := strings.TrimSuffix(strings.Repeat("(?,?),", len(memberIDs)), ",")
	args := make([]any, 0, 2*len(memberIDs))
	for _, uid := range memberIDs {
		args = append(args, id, uid)
	}
	_, err := r.q.ExecContext(ctx, "INSERT INTO project_members (project_id, user_id) VALUES "+values, args...)
	return err
}

// Delete removes a project. Tasks and memberships go with it through the
// schema's ON DELETE CASCADE; grants are removed by the caller.
func (r *ProjectRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.q.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
