package main

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/session"
	"github.com/elimuhq/elimu/core/user"
)

type memUserRepo struct {
	users map[string]user.User
}

var _ user.Repository = (*memUserRepo)(nil)

func (r *memUserRepo) CheckUsernameUniqueness(_ context.Context, username, email string, _ ...user.User) error {
	for _, u := range r.users {
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

func (r *memUserRepo) FilterUsers(_ context.Context, _ *user.QueryFilter, _ ...core.DBOrdering) ([]user.User, error) {
	var users []user.User
	for _, usr := range r.users {
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
	if orig, err := r.GetUserByUsername(ctx, usr.Username); err == nil {
		usr.ID = orig.ID
	}
	r.users[usr.ID] = usr
	return usr, nil
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

func setup(t *testing.T) (*commandLine, *memUserRepo, *memSessionRepo) {
	t.Helper()

	usrRepo := &memUserRepo{users: make(map[string]user.User)}
	sessRepo := &memSessionRepo{sessions: make(map[string]session.Session)}
	cli := &commandLine{
		usrRepo: usrRepo,
		sessSvc: session.NewService(sessRepo, usrRepo),
	}
	return cli, usrRepo, sessRepo
}

func createUser(t *testing.T, repo *memUserRepo, name, uname, email, pwd string, roles []string, active bool) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.SetActive(active)
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _, _ := setup(t)

	gooseRunFunc = func(command string, db *sqlx.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, usrRepo, _ := setup(t)

	usr := createUser(t, usrRepo, "User", "awe", "awe@test.cd", "mdr", nil, true)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"resetpassword", "-username", "lol"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-username", "lol"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset with username", args: []string{"resetpassword", "-username", usr.Username}, extra: extra{pwd: "lol"}},
		{name: "reset with email", args: []string{"resetpassword", "-username", usr.Email}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUserByID(context.Background(), usr.ID)
				if err != nil {
					t.Fatalf("GetUserByID() failed, %v", err)
				}
				if bytes.Equal(refreshedUsr.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, usrRepo, _ := setup(t)

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("S3cretPwd"), nil }

	t.Run("creates a new user", func(t *testing.T) {
		if err := cli.run([]string{"admin", "adduser", "-username", "principal", "-email", "principal@test.cd", "-admin"}); err != nil {
			t.Fatalf("cli.run() error = %v", err)
		}
		usr, err := usrRepo.GetUserByUsername(context.Background(), "principal")
		if err != nil {
			t.Fatalf("GetUserByUsername() failed: %v", err)
		}
		if !usr.Active() {
			t.Error("user should be active")
		}
		if !usr.IsAdmin() {
			t.Error("user should hold admin roles")
		}
		if err := usr.CheckPassword("S3cretPwd"); err != nil {
			t.Errorf("CheckPassword() failed: %v", err)
		}
	})

	t.Run("updates an existing user", func(t *testing.T) {
		orig, err := usrRepo.GetUserByUsername(context.Background(), "principal")
		if err != nil {
			t.Fatalf("GetUserByUsername() failed: %v", err)
		}

		readPasswordFunc = func(fd int) ([]byte, error) { return []byte("Rotated"), nil }
		if err := cli.run([]string{"admin", "adduser", "-username", "principal", "-email", "principal@test.cd"}); err != nil {
			t.Fatalf("cli.run() error = %v", err)
		}

		usr, err := usrRepo.GetUserByUsername(context.Background(), "principal")
		if err != nil {
			t.Fatalf("GetUserByUsername() failed: %v", err)
		}
		if usr.ID != orig.ID {
			t.Errorf("ID = %q; want %q (update, not duplicate)", usr.ID, orig.ID)
		}
		if err := usr.CheckPassword("Rotated"); err != nil {
			t.Errorf("CheckPassword() failed: %v", err)
		}
	})

	t.Run("missing flags", func(t *testing.T) {
		if err := cli.run([]string{"admin", "adduser", "-username", "solo"}); err != errHelp {
			t.Errorf("cli.run() error = %v, want %v", err, errHelp)
		}
	})
}

func Test_commandLine_purgeSessions(t *testing.T) {
	cli, _, sessRepo := setup(t)

	now := time.Now().UTC()
	sessRepo.sessions["live"] = session.Session{ID: "live", ExpiresAt: now.Add(time.Hour)}
	sessRepo.sessions["dead"] = session.Session{ID: "dead", ExpiresAt: now.Add(-48 * time.Hour)}
	sessRepo.sessions["grace"] = session.Session{ID: "grace", ExpiresAt: now.Add(-time.Minute)}

	if err := cli.run([]string{"admin", "purgesessions", "-grace", "24h"}); err != nil {
		t.Fatalf("cli.run() error = %v", err)
	}
	if _, ok := sessRepo.sessions["dead"]; ok {
		t.Error("long-expired session should be purged")
	}
	if _, ok := sessRepo.sessions["live"]; !ok {
		t.Error("live session should survive")
	}
	if _, ok := sessRepo.sessions["grace"]; !ok {
		t.Error("session inside the grace period should survive")
	}
}
