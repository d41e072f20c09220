package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/user"
)

type (
	Repository interface {
		CreateSession(ctx context.Context, sess Session) (Session, error)
		GetSessionByID(ctx context.Context, id string) (Session, error)
		// UpdateSession persists roles, permissions and expiry as one atomic update.
		UpdateSession(ctx context.Context, sess Session) (Session, error)
		DeleteSessionsByID(ctx context.Context, ids ...string) error
		DeleteExpiredSessions(ctx context.Context, olderThan time.Time) (int64, error)
	}

	Service interface {
		Login(ctx context.Context, usr user.User) (TokenPair, Session, error)
		ValidateSession(ctx context.Context, accessToken string) (Validation, error)
		RefreshAccessToken(ctx context.Context, refreshToken string) (string, Session, error)
		Logout(ctx context.Context, sessionID string) error
		PurgeExpired(ctx context.Context, grace time.Duration) (int64, error)
	}

	TokenPair struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}

	service struct {
		repo    Repository
		usrRepo user.Repository
	}
)

var _ Service = (*service)(nil)

// expirationDelta is mockable alongside nowFunc in claims.go.
var expirationDelta = core.Conf.Server.SessionExpirationDelta

func NewService(repo Repository, usrRepo user.Repository) *service {
	return &service{repo: repo, usrRepo: usrRepo}
}

// Login creates the Session row for an authenticated user and mints the
// access/refresh pair bound to it.
func (svc *service) Login(ctx context.Context, usr user.User) (TokenPair, Session, error) {
	now := nowFunc().UTC()
	sess := Session{
		ID:          uuid.New().String(),
		UserID:      usr.ID,
		UserType:    usr.Type(),
		Roles:       usr.Roles,
		Permissions: DerivePermissions(usr.Roles),
		ExpiresAt:   now.Add(expirationDelta),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	sess, err := svc.repo.CreateSession(ctx, sess)
	if err != nil {
		return TokenPair{}, Session{}, errors.Wrap(err, "creating session")
	}

	access, err := GenerateAccessToken(sess)
	if err != nil {
		return TokenPair{}, Session{}, err
	}
	refresh, err := GenerateRefreshToken(sess)
	if err != nil {
		return TokenPair{}, Session{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, sess, nil
}

// ValidateSession decides, per request, whether the caller is authenticated.
// It fails closed on missing/malformed/cryptographically invalid tokens and
// performs no writes. RefreshRequired is signalled only when the session row
// still exists but the presented token or the session expiry has lapsed.
func (svc *service) ValidateSession(ctx context.Context, accessToken string) (Validation, error) {
	if accessToken == "" {
		return Validation{}, nil
	}

	claims, expired, err := parseAccessToken(accessToken)
	if err != nil {
		return Validation{}, nil
	}

	sess, err := svc.repo.GetSessionByID(ctx, claims.Subject)
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return Validation{}, nil
		}
		return Validation{}, errors.Wrap(err, "finding session")
	}

	if expired || sess.Expired() {
		return Validation{RefreshRequired: true}, nil
	}
	return Validation{
		Valid:    true,
		UserID:   sess.UserID,
		UserType: sess.UserType,
		Session:  &sess,
	}, nil
}

// RefreshAccessToken exchanges a valid refresh token for a new access token.
// The embedded session id must reference an existing row; a missing row is a
// hard failure and is never silently recreated. One row update per success:
// roles/permissions re-synced from the authorization store and ExpiresAt
// extended by a fixed window.
func (svc *service) RefreshAccessToken(ctx context.Context, refreshToken string) (string, Session, error) {
	if refreshToken == "" {
		return "", Session{}, ErrInvalidToken
	}
	claims, err := parseRefreshToken(refreshToken)
	if err != nil {
		return "", Session{}, err
	}

	sess, err := svc.repo.GetSessionByID(ctx, claims.Subject)
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return "", Session{}, ErrSessionNotFound
		}
		return "", Session{}, errors.Wrap(err, "finding session")
	}

	usr, err := svc.usrRepo.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return "", Session{}, ErrSessionNotFound
		}
		return "", Session{}, errors.Wrap(err, "finding session user")
	}
	if !usr.Active() {
		return "", Session{}, ErrDeactivated
	}

	now := nowFunc().UTC()
	sess.UserType = usr.Type()
	sess.Roles = usr.Roles
	sess.Permissions = DerivePermissions(usr.Roles)
	// ExpiresAt is monotonically non-decreasing across refreshes
	if exp := now.Add(expirationDelta); exp.After(sess.ExpiresAt) {
		sess.ExpiresAt = exp
	}
	sess.UpdatedAt = now
	if sess, err = svc.repo.UpdateSession(ctx, sess); err != nil {
		return "", Session{}, errors.Wrap(err, "updating session")
	}

	access, err := GenerateAccessToken(sess)
	if err != nil {
		return "", Session{}, err
	}
	return access, sess, nil
}

func (svc *service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return svc.repo.DeleteSessionsByID(ctx, sessionID)
}

// PurgeExpired sweeps sessions whose expiry is older than now-grace.
func (svc *service) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	return svc.repo.DeleteExpiredSessions(ctx, nowFunc().UTC().Add(-grace))
}
