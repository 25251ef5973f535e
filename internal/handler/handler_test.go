package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/project-tracker/internal/middleware"
	"github.com/iliyamo/project-tracker/internal/model"
	"github.com/iliyamo/project-tracker/internal/service"
)

type fakeSessions struct {
	loginErr   error
	refreshErr error
	refreshed  string
	loggedOut  string
}

func (f *fakeSessions) Login(_ context.Context, email, _ string) (service.TokenPair, model.User, error) {
	if f.loginErr != nil {
		return service.TokenPair{}, model.User{}, f.loginErr
	}
	return pair("access-1", "refresh-1"), model.User{ID: 1, Email: email}, nil
}

func (f *fakeSessions) Refresh(_ context.Context, token string) (service.TokenPair, error) {
	f.refreshed = token
	if f.refreshErr != nil {
		return service.TokenPair{}, f.refreshErr
	}
	return pair("access-2", "refresh-2"), nil
}

func (f *fakeSessions) Logout(_ context.Context, _ model.Identity, refresh string) error {
	f.loggedOut = refresh
	return nil
}

func pair(access, refresh string) service.TokenPair {
	now := time.Now().UTC()
	return service.TokenPair{
		AccessToken:    access,
		AccessExpires:  now.Add(30 * time.Minute),
		RefreshToken:   refresh,
		RefreshExpires: now.Add(7 * 24 * time.Hour),
	}
}

type fakeAccounts struct{}

func (fakeAccounts) Register(_ context.Context, email, _ string) (service.RegisterResult, error) {
	if email == "taken@x.com" {
		return service.RegisterResult{}, service.ErrEmailInUse
	}
	return service.RegisterResult{UserID: 9, ActivationEmailSent: true}, nil
}

func (fakeAccounts) Activate(_ context.Context, _ uint64, token string) (service.ActivateResult, error) {
	if token != "good" {
		return service.ActivateResult{}, service.ErrInvalidActivationToken
	}
	return service.ActivateResult{Activated: true}, nil
}

func (fakeAccounts) Profile(_ context.Context, id model.Identity) (model.User, error) {
	return model.User{ID: id.UserID, Email: id.Email}, nil
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewRequestValidator()
	return e
}

func do(e *echo.Echo, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func refreshCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == RefreshCookie {
			return ck
		}
	}
	t.Fatalf("no %s cookie in response", RefreshCookie)
	return nil
}

func withIdentity(id model.Identity) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			middleware.SetIdentity(c, id)
			return next(c)
		}
	}
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&fakeSessions{}, fakeAccounts{}, true)
	e.POST("/v1/auth/login", h.Login)

	rec := do(e, http.MethodPost, "/v1/auth/login", `{"email":"a@x.com","password":"secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	ck := refreshCookieFrom(t, rec)
	if ck.Value != "refresh-1" || !ck.HttpOnly || !ck.Secure || ck.Path != "/v1/auth" || ck.SameSite != http.SameSiteStrictMode {
		t.Fatalf("cookie = %+v", ck)
	}
	if strings.Contains(rec.Body.String(), "refresh-1") {
		t.Fatalf("refresh token leaked into the body")
	}
	var body authResp
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Access.Token != "access-1" || body.User.Email != "a@x.com" {
		t.Fatalf("body = %+v", body)
	}
}

func TestLoginErrors(t *testing.T) {
	cases := []struct {
		body string
		err  error
		code int
	}{
		{`{"email":"not-an-email","password":"x"}`, nil, http.StatusBadRequest},
		{`{"email":"a@x.com"}`, nil, http.StatusBadRequest},
		{`{`, nil, http.StatusBadRequest},
		{`{"email":"a@x.com","password":"x"}`, service.ErrInvalidCredentials, http.StatusUnauthorized},
		{`{"email":"a@x.com","password":"x"}`, service.ErrAccountInactive, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		e := newEcho()
		e.POST("/v1/auth/login", NewAuthHandler(&fakeSessions{loginErr: tc.err}, fakeAccounts{}, true).Login)
		if rec := do(e, http.MethodPost, "/v1/auth/login", tc.body); rec.Code != tc.code {
			t.Fatalf("%s: status %d, want %d", tc.body, rec.Code, tc.code)
		}
	}
}

func TestRefreshRotatesCookie(t *testing.T) {
	e := newEcho()
	s := &fakeSessions{}
	e.POST("/v1/auth/refresh", NewAuthHandler(s, fakeAccounts{}, false).Refresh)

	if rec := do(e, http.MethodPost, "/v1/auth/refresh", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("without cookie: status %d", rec.Code)
	}

	rec := do(e, http.MethodPost, "/v1/auth/refresh", "", &http.Cookie{Name: RefreshCookie, Value: "refresh-1"})
	if rec.Code != http.StatusOK || s.refreshed != "refresh-1" {
		t.Fatalf("status %d, refreshed %q", rec.Code, s.refreshed)
	}
	if ck := refreshCookieFrom(t, rec); ck.Value != "refresh-2" {
		t.Fatalf("cookie not rotated: %+v", ck)
	}

	s.refreshErr = fmt.Errorf("%w: revoked", service.ErrUnauthenticated)
	rec = do(e, http.MethodPost, "/v1/auth/refresh", "", &http.Cookie{Name: RefreshCookie, Value: "refresh-1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reused token: status %d", rec.Code)
	}
	if ck := refreshCookieFrom(t, rec); ck.MaxAge >= 0 {
		t.Fatalf("cookie not cleared: %+v", ck)
	}
}

func TestLogoutPassesCookieAndClearsIt(t *testing.T) {
	e := newEcho()
	s := &fakeSessions{}
	e.POST("/v1/auth/logout", NewAuthHandler(s, fakeAccounts{}, true).Logout, withIdentity(model.Identity{UserID: 1, AccessToken: "access-1"}))

	rec := do(e, http.MethodPost, "/v1/auth/logout", "", &http.Cookie{Name: RefreshCookie, Value: "refresh-1"})
	if rec.Code != http.StatusOK || s.loggedOut != "refresh-1" {
		t.Fatalf("status %d, logged out %q", rec.Code, s.loggedOut)
	}
	if ck := refreshCookieFrom(t, rec); ck.MaxAge >= 0 {
		t.Fatalf("cookie not cleared: %+v", ck)
	}
}

func TestRegisterAndActivate(t *testing.T) {
	e := newEcho()
	h := NewAuthHandler(&fakeSessions{}, fakeAccounts{}, true)
	e.POST("/v1/auth/register", h.Register)
	e.GET("/v1/auth/activate/:uid/:token", h.Activate)

	if rec := do(e, http.MethodPost, "/v1/auth/register", `{"email":"new@x.com","password":"secret"}`); rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/v1/auth/register", `{"email":"taken@x.com","password":"secret"}`); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: status %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/v1/auth/activate/9/good", ""); rec.Code != http.StatusOK {
		t.Fatalf("activate: status %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/v1/auth/activate/9/bad", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/v1/auth/activate/x/good", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad uid: status %d", rec.Code)
	}
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: expired", service.ErrUnauthenticated), http.StatusUnauthorized},
		{service.ErrPermissionDenied, http.StatusForbidden},
		{service.ErrNotFound, http.StatusNotFound},
		{&service.ValidationError{Field: "due_date", Message: "due_date must be in the future"}, http.StatusBadRequest},
		{service.ErrEmailInUse, http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	e := newEcho()
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		if err := writeError(c, tc.err); err != nil {
			t.Fatalf("writeError: %v", err)
		}
		if rec.Code != tc.code {
			t.Fatalf("%v: status %d, want %d", tc.err, rec.Code, tc.code)
		}
	}
}

type fakeTasks struct {
	created service.TaskInput
	patch   service.TaskPatch
	err     error
}

func (f *fakeTasks) List(context.Context, model.Identity, model.TaskFilter) ([]*model.Task, error) {
	return nil, nil
}

func (f *fakeTasks) Get(_ context.Context, _ model.Identity, id uint64) (*model.Task, error) {
	return &model.Task{ID: id, Status: model.TaskToDo}, nil
}

func (f *fakeTasks) Create(_ context.Context, _ model.Identity, pid uint64, in service.TaskInput) (*model.Task, error) {
	f.created = in
	if f.err != nil {
		return nil, f.err
	}
	return &model.Task{ID: 5, ProjectID: pid, Title: in.Title, Status: model.TaskToDo, DueDate: in.DueDate}, nil
}

func (f *fakeTasks) Update(_ context.Context, _ model.Identity, id uint64, p service.TaskPatch) (*model.Task, error) {
	f.patch = p
	return &model.Task{ID: id, Status: model.TaskToDo}, nil
}

func (f *fakeTasks) Delete(context.Context, model.Identity, uint64) error { return nil }

func TestCreateTask(t *testing.T) {
	e := newEcho()
	tasks := &fakeTasks{}
	e.POST("/v1/projects/:id/tasks", NewTaskHandler(tasks).Create, withIdentity(model.Identity{UserID: 1}))

	rec := do(e, http.MethodPost, "/v1/projects/3/tasks", `{"title":"Ship","due_date":"2030-01-02T15:04:05Z"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get(echo.HeaderLocation); loc != "/v1/tasks/5" {
		t.Fatalf("Location = %q", loc)
	}
	if !tasks.created.DueDate.Equal(time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC)) {
		t.Fatalf("due date = %v", tasks.created.DueDate)
	}

	tasks.err = &service.ValidationError{Field: "due_date", Message: "due_date must be in the future"}
	rec = do(e, http.MethodPost, "/v1/projects/3/tasks", `{"title":"Ship","due_date":"2020-01-02T15:04:05Z"}`)
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusBadRequest || body["field"] != "due_date" {
		t.Fatalf("status %d, body %v", rec.Code, body)
	}

	rec = do(e, http.MethodPost, "/v1/projects/3/tasks", `{"due_date":"2030-01-02T15:04:05Z"}`)
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusBadRequest || body["field"] != "title" {
		t.Fatalf("missing title: status %d, body %v", rec.Code, body)
	}

	if rec := do(e, http.MethodPost, "/v1/projects/abc/tasks", `{"title":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("bad project id: status %d", rec.Code)
	}
}

func TestPatchTaskAssignee(t *testing.T) {
	e := newEcho()
	tasks := &fakeTasks{}
	e.PATCH("/v1/tasks/:id", NewTaskHandler(tasks).Update, withIdentity(model.Identity{UserID: 1}))

	do(e, http.MethodPatch, "/v1/tasks/5", `{"title":"x"}`)
	if tasks.patch.AssigneeID != nil || tasks.patch.ClearAssignee {
		t.Fatalf("absent assignee must leave it unchanged: %+v", tasks.patch)
	}
	do(e, http.MethodPatch, "/v1/tasks/5", `{"assignee_id":null}`)
	if !tasks.patch.ClearAssignee {
		t.Fatalf("null assignee must clear it: %+v", tasks.patch)
	}
	do(e, http.MethodPatch, "/v1/tasks/5", `{"assignee_id":8}`)
	if tasks.patch.AssigneeID == nil || *tasks.patch.AssigneeID != 8 || tasks.patch.ClearAssignee {
		t.Fatalf("assignee 8: %+v", tasks.patch)
	}
}

func TestTaskFilterParsing(t *testing.T) {
	e := newEcho()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/tasks?project_id=3&status=2&due_date_gte=2030-01-01T00:00:00Z&title=ship", nil), httptest.NewRecorder())
	f, err := parseTaskFilter(c)
	if err != nil {
		t.Fatalf("parseTaskFilter: %v", err)
	}
	if f.ProjectID == nil || *f.ProjectID != 3 || f.Status == nil || *f.Status != model.TaskInProgress || f.DueAfter == nil || f.Title != "ship" {
		t.Fatalf("filter = %+v", f)
	}

	for _, q := range []string{"status=7", "project_id=-1", "due_date_lte=tomorrow"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/tasks?"+q, nil), httptest.NewRecorder())
		if _, err := parseTaskFilter(c); !errors.Is(err, service.ErrValidation) {
			t.Fatalf("%s: got %v", q, err)
		}
	}
}

func TestHealth(t *testing.T) {
	e := newEcho()
	healthy := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("down") })

	e.GET("/ok", Health(map[string]Pinger{"mysql": healthy, "redis": healthy}))
	e.GET("/bad", Health(map[string]Pinger{"mysql": healthy, "redis": down}))

	if rec := do(e, http.MethodGet, "/ok", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthy: %d", rec.Code)
	}
	rec := do(e, http.MethodGet, "/bad", "")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "redis") {
		t.Fatalf("unhealthy: %d %s", rec.Code, rec.Body.String())
	}
}
