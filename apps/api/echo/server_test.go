package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/event"
	"github.com/elimuhq/elimu/core/session"
	"github.com/elimuhq/elimu/core/user"
	emailsvc "github.com/elimuhq/elimu/services/email"
	logsvc "github.com/elimuhq/elimu/services/logger"
)

type memUserRepo struct {
	users map[string]user.User
}

var _ user.Repository = (*memUserRepo)(nil)

func newMemUserRepo() *memUserRepo { return &memUserRepo{users: make(map[string]user.User)} }

func (r *memUserRepo) CheckUsernameUniqueness(_ context.Context, username, email string, excl ...user.User) error {
	skip := func(u user.User) bool {
		for _, x := range excl {
			if x.ID == u.ID {
				return true
			}
		}
		return false
	}
	for _, u := range r.users {
		if skip(u) {
			continue
		}
		if strings.EqualFold(u.Username, username) {
			return user.ErrUsernameExists
		}
		if strings.EqualFold(u.Email, email) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (r *memUserRepo) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	r.users[usr.ID] = usr
	return usr, nil
}

func (r *memUserRepo) GetUserByID(_ context.Context, id string) (user.User, error) {
	if usr, ok := r.users[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (r *memUserRepo) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	for _, usr := range r.users {
		if strings.EqualFold(usr.Username, username) {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (r *memUserRepo) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	for _, usr := range r.users {
		if strings.EqualFold(usr.Email, email) {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (r *memUserRepo) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	if usr, err := r.GetUserByUsername(ctx, username); err == nil {
		return usr, nil
	}
	return r.GetUserByEmail(ctx, username)
}

func (r *memUserRepo) FilterUsers(_ context.Context, filter *user.QueryFilter, _ ...core.DBOrdering) ([]user.User, error) {
	var users []user.User
	for _, usr := range r.users {
		if filter != nil && filter.Search != "" {
			search := strings.ToLower(filter.Search)
			if !(strings.Contains(strings.ToLower(usr.Name), search) ||
				strings.Contains(strings.ToLower(usr.Username), search) ||
				strings.Contains(strings.ToLower(usr.Email), search)) {
				continue
			}
		}
		users = append(users, usr)
	}
	return users, nil
}

func (r *memUserRepo) UpdateUser(_ context.Context, usr user.User, isActive *bool) (user.User, error) {
	orig, ok := r.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if isActive != nil {
		orig.IsActive = isActive
	}
	usr.IsActive = orig.IsActive
	r.users[usr.ID] = usr
	return usr, nil
}

func (r *memUserRepo) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	return r.CreateUser(ctx, usr)
}

func (r *memUserRepo) SetLastLogin(_ context.Context, usr user.User) (user.User, error) {
	r.users[usr.ID] = usr
	return usr, nil
}

func (r *memUserRepo) DeleteUsersByID(_ context.Context, ids ...string) error {
	for _, id := range ids {
		delete(r.users, id)
	}
	return nil
}

type memSessionRepo struct {
	sessions map[string]session.Session
}

var _ session.Repository = (*memSessionRepo)(nil)

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]session.Session)}
}

func (r *memSessionRepo) CreateSession(_ context.Context, sess session.Session) (session.Session, error) {
	r.sessions[sess.ID] = sess
	return sess, nil
}

func (r *memSessionRepo) GetSessionByID(_ context.Context, id string) (session.Session, error) {
	if sess, ok := r.sessions[id]; ok {
		return sess, nil
	}
	return session.Session{}, session.ErrSessionNotFound
}

func (r *memSessionRepo) UpdateSession(_ context.Context, sess session.Session) (session.Session, error) {
	if _, ok := r.sessions[sess.ID]; !ok {
		return session.Session{}, session.ErrSessionNotFound
	}
	r.sessions[sess.ID] = sess
	return sess, nil
}

func (r *memSessionRepo) DeleteSessionsByID(_ context.Context, ids ...string) error {
	for _, id := range ids {
		delete(r.sessions, id)
	}
	return nil
}

func (r *memSessionRepo) DeleteExpiredSessions(_ context.Context, olderThan time.Time) (int64, error) {
	var n int64
	for id, sess := range r.sessions {
		if sess.ExpiresAt.Before(olderThan) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

type memEventRepo struct {
	events map[string]event.Event
}

var _ event.Repository = (*memEventRepo)(nil)

func newMemEventRepo() *memEventRepo { return &memEventRepo{events: make(map[string]event.Event)} }

func (r *memEventRepo) CreateEvent(_ context.Context, evt event.Event) (event.Event, error) {
	r.events[evt.ID] = evt
	return evt, nil
}

func (r *memEventRepo) GetEventByID(_ context.Context, id string) (event.Event, error) {
	if evt, ok := r.events[id]; ok {
		return evt, nil
	}
	return event.Event{}, event.ErrNotFound
}

func (r *memEventRepo) FilterEvents(_ context.Context, _ *event.Filter, _ ...core.DBOrdering) ([]event.Event, error) {
	var events []event.Event
	for _, evt := range r.events {
		events = append(events, evt)
	}
	return events, nil
}

func (r *memEventRepo) UpdateEvent(_ context.Context, evt event.Event) (event.Event, error) {
	if _, ok := r.events[evt.ID]; !ok {
		return event.Event{}, event.ErrNotFound
	}
	r.events[evt.ID] = evt
	return evt, nil
}

func (r *memEventRepo) DeleteEventsByID(_ context.Context, ids ...string) error {
	for _, id := range ids {
		delete(r.events, id)
	}
	return nil
}

type testEnv struct {
	app     Server
	usrRepo *memUserRepo
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	usrRepo := newMemUserRepo()
	sessRepo := newMemSessionRepo()
	evtRepo := newMemEventRepo()

	mailSvc := emailsvc.NewConsoleServiceMock()
	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), core.Conf)
	logger.Enable(false)

	app := NewServer(
		&Options{
			DisableReqLogs: true,
			Logger:         logger,
			UserSvc:        user.NewServiceMock(usrRepo, mailSvc),
			SessionSvc:     session.NewService(sessRepo, usrRepo),
			EventSvc:       event.NewService(evtRepo),
		},
		func() {},
	)
	return &testEnv{app: app, usrRepo: usrRepo}
}

func (env *testEnv) createUser(t *testing.T, name, username, email, pwd string, roles []string, active bool) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  username,
		Email:     email,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(active)
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	usr, err := env.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func (env *testEnv) login(t *testing.T, username, pwd string) LoginResponse {
	t.Helper()

	body := marshallObj(t, LoginRequest{Username: username, Password: pwd})
	req, rec := newRequest(http.MethodPost, "/v1/login", body)
	env.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed! code = %v; body %s", rec.Code, rec.Body.String())
	}

	var resp LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshalling LoginResponse: %v", err)
	}
	return resp
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func TestLogin(t *testing.T) {
	env := setup(t)
	env.createUser(t, "Awa Ndiaye", "awandiaye", "awa@elimu.test", "S3cretPwd", user.StudentRoles, true)
	env.createUser(t, "Coach Carter", "coachcarter", "carter@elimu.test", "D3activated", user.StaffRoles, false)

	t.Run("valid credentials", func(t *testing.T) {
		body := marshallObj(t, LoginRequest{Username: "awandiaye", Password: "S3cretPwd"})
		req, rec := newRequest(http.MethodPost, "/v1/login", body)
		env.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var resp LoginResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshalling LoginResponse: %v", err)
		}
		if resp.AccessToken == "" || resp.RefreshToken == "" {
			t.Error("expected both tokens in response")
		}
		for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
			cookie := responseCookie(rec, name)
			if cookie == nil || cookie.Value == "" {
				t.Errorf("cookie %q not set", name)
				continue
			}
			if !cookie.HttpOnly {
				t.Errorf("cookie %q must be HttpOnly", name)
			}
		}
	})

	t.Run("client cookies", func(t *testing.T) {
		body := marshallObj(t, LoginRequest{Username: "awandiaye", Password: "S3cretPwd"})
		req, rec := newRequest(http.MethodPost, "/v1/login", body)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		cookie := responseCookie(rec, userCookie)
		if cookie == nil || cookie.Value == "" {
			t.Fatalf("cookie %q not set", userCookie)
		}
		if cookie.HttpOnly {
			t.Errorf("cookie %q must be readable by the client", userCookie)
		}
		raw, err := url.QueryUnescape(cookie.Value)
		if err != nil {
			t.Fatalf("unescaping %q cookie: %v", userCookie, err)
		}
		var info userCookieInfo
		if err = json.Unmarshal([]byte(raw), &info); err != nil {
			t.Fatalf("unmarshalling %q cookie: %v", userCookie, err)
		}
		if info.Username != "awandiaye" {
			t.Errorf("user cookie username = %q; want %q", info.Username, "awandiaye")
		}
		if info.InactiveReason != "" {
			t.Errorf("user cookie inactive reason = %q; want empty", info.InactiveReason)
		}

		activity := responseCookie(rec, lastActivityCookie)
		if activity == nil || activity.Value == "" {
			t.Fatalf("cookie %q not set", lastActivityCookie)
		}
		if activity.HttpOnly {
			t.Errorf("cookie %q must be readable by the client", lastActivityCookie)
		}
		if _, err := strconv.ParseInt(activity.Value, 10, 64); err != nil {
			t.Errorf("cookie %q = %q; want a unix timestamp", lastActivityCookie, activity.Value)
		}
	})

	t.Run("login by email", func(t *testing.T) {
		resp := env.login(t, "awa@elimu.test", "S3cretPwd")
		if resp.User.Username != "awandiaye" {
			t.Errorf("User.Username = %q; want %q", resp.User.Username, "awandiaye")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		body := marshallObj(t, LoginRequest{Username: "awandiaye", Password: "nope"})
		req, rec := newRequest(http.MethodPost, "/v1/login", body)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		body := marshallObj(t, LoginRequest{Username: "ghost", Password: "whatever"})
		req, rec := newRequest(http.MethodPost, "/v1/login", body)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("deactivated account", func(t *testing.T) {
		body := marshallObj(t, LoginRequest{Username: "coachcarter", Password: "D3activated"})
		req, rec := newRequest(http.MethodPost, "/v1/login", body)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})
}

func TestSessionAuth(t *testing.T) {
	env := setup(t)
	env.createUser(t, "Awa Ndiaye", "awandiaye", "awa@elimu.test", "S3cretPwd", user.StudentRoles, true)
	resp := env.login(t, "awandiaye", "S3cretPwd")

	t.Run("bearer token", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/session", resp.AccessToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var sess session.Session
		if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
			t.Fatalf("unmarshalling Session: %v", err)
		}
		if sess.UserID != resp.User.ID {
			t.Errorf("Session.UserID = %q; want %q", sess.UserID, resp.User.ID)
		}
	})

	t.Run("cookie token", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/session")
		req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: resp.AccessToken})
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusOK)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/session")
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/session", "not.a.token")
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("logout kills the session", func(t *testing.T) {
		out := env.login(t, "awandiaye", "S3cretPwd")

		req, rec := newAuthRequest(http.MethodPost, "/v1/logout", out.AccessToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; want %v", rec.Code, http.StatusNoContent)
		}
		if cookie := responseCookie(rec, accessTokenCookie); cookie == nil || cookie.Value != "" {
			t.Error("access cookie should be cleared")
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/session", out.AccessToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("code after logout = %v; want %v", rec.Code, http.StatusUnauthorized)
		}
	})
}

func TestPermissions(t *testing.T) {
	env := setup(t)
	env.createUser(t, "Awa Ndiaye", "awandiaye", "awa@elimu.test", "S3cretPwd", user.StudentRoles, true)
	env.createUser(t, "Lee Lecturer", "leelecturer", "lee@elimu.test", "S3cretPwd", []string{user.RoleStaffLecturer}, true)
	student := env.login(t, "awandiaye", "S3cretPwd")
	staff := env.login(t, "leelecturer", "S3cretPwd")

	newEvt := marshallObj(t, event.NewEvent{
		Title:    "Open Day",
		StartsAt: time.Now().Add(24 * time.Hour),
		EndsAt:   time.Now().Add(30 * time.Hour),
	})

	t.Run("student cannot create events", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/events", student.AccessToken, newEvt)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("staff can create events", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/events", staff.AccessToken, newEvt)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var evt event.Event
		if err := json.Unmarshal(rec.Body.Bytes(), &evt); err != nil {
			t.Fatalf("unmarshalling Event: %v", err)
		}
		if evt.Title != "Open Day" {
			t.Errorf("Title = %q; want %q", evt.Title, "Open Day")
		}
	})

	t.Run("student can read events", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/events", student.AccessToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v", rec.Code, http.StatusOK)
		}
		var events []event.Event
		if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
			t.Fatalf("unmarshalling []Event: %v", err)
		}
		if assert.Len(t, events, 1) {
			assert.Equal(t, "Open Day", events[0].Title)
		}
	})

	t.Run("malformed list filter", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/events?from=yesterday", student.AccessToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("code = %v; want %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("student cannot list users", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users", student.AccessToken)
		env.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})
}
