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

// DBTX is the subset of *sql.DB and *sql.Tx the repositories need. Every
// repository runs its statements against a DBTX so the same code works
// inside and outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Scope restricts a listing to a set of ids, or to everything when All
// is set (superusers).
type Scope struct {
	All bool
	IDs []uint64
}

// Empty reports whether the scope can match nothing.
func (s Scope) Empty() bool { return !s.All && len(s.IDs) == 0 }

// TaskScope selects tasks visible directly (TaskIDs) or through their
// project (ProjectIDs).
type TaskScope struct {
	All        bool
	TaskIDs    []uint64
	ProjectIDs []uint64
}

// Empty reports whether the scope can match nothing.
func (s TaskScope) Empty() bool { return !s.All && len(s.TaskIDs) == 0 && len(s.ProjectIDs) == 0 }

// UserStore persists user accounts.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (uint64, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	Activate(ctx context.Context, id uint64) (bool, error)
	ExistingIDs(ctx context.Context, ids []uint64) ([]uint64, error)
}

// ProjectStore persists projects and their member sets.
type ProjectStore interface {
	Create(ctx context.Context, p *model.Project) error
	Get(ctx context.Context, id uint64) (*model.Project, error)
	GetForUpdate(ctx context.Context, id uint64) (*model.Project, error)
	List(ctx context.Context, scope Scope, f model.ProjectFilter) ([]*model.Project, error)
	UpdateName(ctx context.Context, id uint64, name string) error
	SetMembers(ctx context.Context, id uint64, memberIDs []uint64) error
	Delete(ctx context.Context, id uint64) error
}

// TaskStore persists tasks.
type TaskStore interface {
	Create(ctx context.Context, t *model.Task) error
	Get(ctx context.Context, id uint64) (*model.Task, error)
	GetForUpdate(ctx context.Context, id uint64) (*model.Task, error)
	List(ctx context.Context, scope TaskScope, f model.TaskFilter) ([]*model.Task, error)
	Update(ctx context.Context, t *model.Task) error
	Delete(ctx context.Context, id uint64) error
	IDsByProject(ctx context.Context, projectID uint64) ([]uint64, error)
	DueForReminder(ctx context.Context, kind model.ReminderKind, now time.Time, window time.Duration) ([]*model.Task, error)
	MarkNotified(ctx context.Context, id uint64, kind model.ReminderKind) (bool, error)
}

// GrantStore persists per-object capability grants. Assign and Remove
// are idempotent.
type GrantStore interface {
	Assign(ctx context.Context, userID uint64, obj model.ObjectRef, c model.Capability) error
	Remove(ctx context.Context, userID uint64, obj model.ObjectRef, c model.Capability) error
	Has(ctx context.Context, userID uint64, obj model.ObjectRef, c model.Capability) (bool, error)
	ObjectIDs(ctx context.Context, userID uint64, c model.Capability, t model.ObjectType) ([]uint64, error)
	RemoveObjects(ctx context.Context, t model.ObjectType, ids []uint64) error
}

// Repos groups the repositories bound to one connection or transaction.
type Repos interface {
	Users() UserStore
	Projects() ProjectStore
	Tasks() TaskStore
	Grants() GrantStore
}

// Store is Repos plus the ability to run a unit of work atomically.
type Store interface {
	Repos
	WithinTx(ctx context.Context, fn func(Repos) error) error
}

type repos struct{ q DBTX }

func (r repos) Users() UserStore       { return &UserRepo{q: r.q} }
func (r repos) Projects() ProjectStore { return &ProjectRepo{q: r.q} }
func (r repos) Tasks() TaskStore       { return &TaskRepo{q: r.q} }
func (r repos) Grants() GrantStore     { return &GrantRepo{q: r.q} }

// SQLStore is the MySQL-backed Store.
type SQLStore struct {
	repos
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{repos: repos{q: db}, db: db}
}

// WithinTx runs fn inside a single database transaction. The transaction
// commits when fn returns nil and rolls back otherwise, so an entity row
// and its grant rows are always written together.
func (s *SQLStore) WithinTx(ctx context.Context, fn func(Repos) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit tx: %w", cerr)
		}
	}()
	return fn(repos{q: tx})
}

// lockRow takes an exclusive lock on one row of table. The reads that
// follow in the same transaction see every change committed before the
// lock was granted.
func lockRow(ctx context.Context, q DBTX, table string, id uint64) error {
	var locked uint64
	err := q.QueryRowContext(ctx, "SELECT id FROM "+table+" WHERE id = ? FOR UPDATE", id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// inClause returns "?,?,?" for n placeholders and the ids as args.
func inClause(ids []uint64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

// like wraps s for a case-insensitive substring LIKE match.
func like(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(r.Replace(s)) + "%"
}
