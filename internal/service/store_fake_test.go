package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/project-tracker/internal/model"
	"github.com/iliyamo/project-tracker/internal/repository"
)

// memStore is an in-memory repository.Store. WithinTx snapshots the
// whole state and restores it when fn fails.
type memStore struct {
	users    map[uint64]model.User
	projects map[uint64]model.Project // Members hold ids only
	tasks    map[uint64]model.Task
	grants   map[model.Grant]bool
	nextID   uint64
	now      time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[uint64]model.User{},
		projects: map[uint64]model.Project{},
		tasks:    map[uint64]model.Task{},
		grants:   map[model.Grant]bool{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) id() uint64 { m.nextID++; return m.nextID }

func (m *memStore) addUser(email string, active bool) model.User {
	u := model.User{ID: m.id(), Email: email, IsActive: active, PasswordHash: "x"}
	m.users[u.ID] = u
	return u
}

func (m *memStore) Users() repository.UserStore       { return memUsers{m} }
func (m *memStore) Projects() repository.ProjectStore { return memProjects{m} }
func (m *memStore) Tasks() repository.TaskStore       { return memTasks{m} }
func (m *memStore) Grants() repository.GrantStore     { return memGrants{m} }

func (m *memStore) WithinTx(ctx context.Context, fn func(repository.Repos) error) error {
	users := make(map[uint64]model.User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	projects := make(map[uint64]model.Project, len(m.projects))
	for k, v := range m.projects {
		v.Members = append([]model.UserRef(nil), v.Members...)
		projects[k] = v
	}
	tasks := make(map[uint64]model.Task, len(m.tasks))
	for k, v := range m.tasks {
		tasks[k] = v
	}
	grants := make(map[model.Grant]bool, len(m.grants))
	for k, v := range m.grants {
		grants[k] = v
	}
	if err := fn(m); err != nil {
		m.users, m.projects, m.tasks, m.grants = users, projects, tasks, grants
		return err
	}
	return nil
}

func (m *memStore) ref(id uint64) model.UserRef {
	return model.UserRef{ID: id, Email: m.users[id].Email}
}

func (m *memStore) has(uid uint64, obj model.ObjectRef, c model.Capability) bool {
	return m.grants[model.Grant{UserID: uid, Object: obj, Capability: c}]
}

func (m *memStore) grantCount(obj model.ObjectRef) int {
	n := 0
	for g := range m.grants {
		if g.Object == obj {
			n++
		}
	}
	return n
}

// ----- users -----

type memUsers struct{ m *memStore }

func (r memUsers) Create(_ context.Context, email, hash string) (uint64, error) {
	email = repository.NormalizeEmail(email)
	for _, u := range r.m.users {
		if u.Email == email {
			return 0, repository.ErrEmailExists
		}
	}
	u := model.User{ID: r.m.id(), Email: email, PasswordHash: hash}
	r.m.users[u.ID] = u
	return u.ID, nil
}

func (r memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	u, ok := r.m.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	email = repository.NormalizeEmail(email)
	for _, u := range r.m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (r memUsers) Activate(_ context.Context, id uint64) (bool, error) {
	u, ok := r.m.users[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if u.IsActive {
		return false, nil
	}
	u.IsActive = true
	r.m.users[id] = u
	return true, nil
}

func (r memUsers) ExistingIDs(_ context.Context, ids []uint64) ([]uint64, error) {
	var out []uint64
	for _, id := range ids {
		if _, ok := r.m.users[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// ----- projects -----

type memProjects struct{ m *memStore }

func (r memProjects) Create(_ context.Context, p *model.Project) error {
	p.ID = r.m.id()
	p.CreatedAt = r.m.now
	r.m.projects[p.ID] = model.Project{ID: p.ID, Name: p.Name, OwnerID: p.OwnerID, CreatedAt: p.CreatedAt}
	return nil
}

func (r memProjects) full(p model.Project) *model.Project {
	out := p
	out.Owner = r.m.ref(p.OwnerID)
	out.Members = make([]model.UserRef, 0, len(p.Members))
	for _, mem := range p.Members {
		out.Members = append(out.Members, r.m.ref(mem.ID))
	}
	return &out
}

func (r memProjects) Get(_ context.Context, id uint64) (*model.Project, error) {
	p, ok := r.m.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.full(p), nil
}

func (r memProjects) GetForUpdate(ctx context.Context, id uint64) (*model.Project, error) {
	return r.Get(ctx, id)
}

func (r memProjects) List(_ context.Context, scope repository.Scope, f model.ProjectFilter) ([]*model.Project, error) {
	allowed := map[uint64]bool{}
	for _, id := range scope.IDs {
		allowed[id] = true
	}
	var out []*model.Project
	for id, p := range r.m.projects {
		if !scope.All && !allowed[id] {
			continue
		}
		full := r.full(p)
		if f.Name != "" && !strings.Contains(strings.ToLower(full.Name), strings.ToLower(f.Name)) {
			continue
		}
		if f.OwnerEmail != "" && !strings.Contains(full.Owner.Email, strings.ToLower(f.OwnerEmail)) {
			continue
		}
		out = append(out, full)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memProjects) UpdateName(_ context.Context, id uint64, name string) error {
	p, ok := r.m.projects[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Name = name
	r.m.projects[id] = p
	return nil
}

func (r memProjects) SetMembers(_ context.Context, id uint64, memberIDs []uint64) error {
	p := r.m.projects[id]
	p.Members = nil
	for _, uid := range memberIDs {
		p.Members = append(p.Members, model.UserRef{ID: uid})
	}
	r.m.projects[id] = p
	return nil
}

func (r memProjects) Delete(_ context.Context, id uint64) error {
	if _, ok := r.m.projects[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.m.projects, id)
	for tid, t := range r.m.tasks {
		if t.ProjectID == id {
			delete(r.m.tasks, tid)
		}
	}
	return nil
}

// ----- tasks -----

type memTasks struct{ m *memStore }

func (r memTasks) full(t model.Task) *model.Task {
	out := t
	out.Creator = r.m.ref(t.CreatedBy)
	out.Assignee = nil
	if t.AssigneeID != nil {
		a := *t.AssigneeID
		out.AssigneeID = &a
		ref := r.m.ref(a)
		out.Assignee = &ref
	}
	return &out
}

func (r memTasks) Create(_ context.Context, t *model.Task) error {
	t.ID = r.m.id()
	t.CreatedAt = r.m.now
	r.m.tasks[t.ID] = *r.full(*t)
	return nil
}

func (r memTasks) Get(_ context.Context, id uint64) (*model.Task, error) {
	t, ok := r.m.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.full(t), nil
}

func (r memTasks) GetForUpdate(ctx context.Context, id uint64) (*model.Task, error) {
	return r.Get(ctx, id)
}

func (r memTasks) List(_ context.Context, scope repository.TaskScope, f model.TaskFilter) ([]*model.Task, error) {
	byTask, byProject := map[uint64]bool{}, map[uint64]bool{}
	for _, id := range scope.TaskIDs {
		byTask[id] = true
	}
	for _, id := range scope.ProjectIDs {
		byProject[id] = true
	}
	var out []*model.Task
	for _, t := range r.m.tasks {
		if !scope.All && !byTask[t.ID] && !byProject[t.ProjectID] {
			continue
		}
		if f.ProjectID != nil && t.ProjectID != *f.ProjectID {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		out = append(out, r.full(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memTasks) Update(_ context.Context, t *model.Task) error {
	cur, ok := r.m.tasks[t.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.Title, cur.Description, cur.Status, cur.DueDate = t.Title, t.Description, t.Status, t.DueDate
	cur.AssigneeID = nil
	if t.AssigneeID != nil {
		a := *t.AssigneeID
		cur.AssigneeID = &a
	}
	r.m.tasks[t.ID] = cur
	return nil
}

func (r memTasks) Delete(_ context.Context, id uint64) error {
	if _, ok := r.m.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.m.tasks, id)
	return nil
}

func (r memTasks) IDsByProject(_ context.Context, projectID uint64) ([]uint64, error) {
	var out []uint64
	for id, t := range r.m.tasks {
		if t.ProjectID == projectID {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r memTasks) DueForReminder(_ context.Context, kind model.ReminderKind, now time.Time, window time.Duration) ([]*model.Task, error) {
	var out []*model.Task
	for _, t := range r.m.tasks {
		if t.Status == model.TaskDone {
			continue
		}
		switch kind {
		case model.ReminderPending:
			if t.PendingNotificationSent || t.DueDate.Before(now) || t.DueDate.After(now.Add(window)) {
				continue
			}
		case model.ReminderOverdue:
			if t.OverdueNotificationSent || t.DueDate.After(now) {
				continue
			}
		}
		out = append(out, r.full(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memTasks) MarkNotified(_ context.Context, id uint64, kind model.ReminderKind) (bool, error) {
	t, ok := r.m.tasks[id]
	if !ok {
		return false, nil
	}
	flag := &t.PendingNotificationSent
	if kind == model.ReminderOverdue {
		flag = &t.OverdueNotificationSent
	}
	if *flag {
		return false, nil
	}
	*flag = true
	r.m.tasks[id] = t
	return true, nil
}

// ----- grants -----

type memGrants struct{ m *memStore }

func (r memGrants) Assign(_ context.Context, uid uint64, obj model.ObjectRef, c model.Capability) error {
	r.m.grants[model.Grant{UserID: uid, Object: obj, Capability: c}] = true
	return nil
}

func (r memGrants) Remove(_ context.Context, uid uint64, obj model.ObjectRef, c model.Capability) error {
	delete(r.m.grants, model.Grant{UserID: uid, Object: obj, Capability: c})
	return nil
}

func (r memGrants) Has(_ context.Context, uid uint64, obj model.ObjectRef, c model.Capability) (bool, error) {
	return r.m.has(uid, obj, c), nil
}

func (r memGrants) ObjectIDs(_ context.Context, uid uint64, c model.Capability, t model.ObjectType) ([]uint64, error) {
	var out []uint64
	for g := range r.m.grants {
		if g.UserID == uid && g.Capability == c && g.Object.Type == t {
			out = append(out, g.Object.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r memGrants) RemoveObjects(_ context.Context, t model.ObjectType, ids []uint64) error {
	drop := map[uint64]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	for g := range r.m.grants {
		if g.Object.Type == t && drop[g.Object.ID] {
			delete(r.m.grants, g)
		}
	}
	return nil
}

// ----- revocations and mail -----

type memRevocations struct {
	entries map[string]time.Duration
}

func newMemRevocations() *memRevocations {
	return &memRevocations{entries: map[string]time.Duration{}}
}

func (r *memRevocations) Blacklist(_ context.Context, token string, ttl time.Duration) error {
	if ttl > 0 {
		r.entries[token] = ttl
	}
	return nil
}

func (r *memRevocations) Consume(_ context.Context, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	if _, ok := r.entries[token]; ok {
		return false, nil
	}
	r.entries[token] = ttl
	return true, nil
}

func (r *memRevocations) IsBlacklisted(_ context.Context, token string) (bool, error) {
	_, ok := r.entries[token]
	return ok, nil
}

type memMailer struct {
	sent []model.Mail
	err  error
}

func (m *memMailer) Send(_ context.Context, mail model.Mail) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, mail)
	return nil
}

// interleavedStore runs before once, ahead of the next transaction body,
// to model another writer committing between a command's checks and its
// transaction.
type interleavedStore struct {
	*memStore
	before func()
}

func (s *interleavedStore) WithinTx(ctx context.Context, fn func(repository.Repos) error) error {
	if f := s.before; f != nil {
		s.before = nil
		f()
	}
	return s.memStore.WithinTx(ctx, fn)
}
