package echoapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/session"
	"github.com/elimuhq/elimu/core/user"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
	userCookie         = "user"
	lastActivityCookie = "lastActivity"
	contextSessionKey  = "session"
)

// sessionMiddleware authenticates every request against the session of record.
// When the access token has lapsed but the session row is still alive, it
// silently refreshes in-request: the new access token is set as a cookie on
// this same response, no redirect hop.
func sessionMiddleware(svc session.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token := extractAccessToken(ctx)
			if token == "" {
				return errUnauthorized
			}

			v, err := svc.ValidateSession(ctx.Request().Context(), token)
			if err != nil {
				return errors.Wrap(err, "validating session")
			}
			if v.Valid {
				ctx.Set(contextSessionKey, *v.Session)
				return next(ctx)
			}

			if v.RefreshRequired {
				if cookie, cerr := ctx.Cookie(refreshTokenCookie); cerr == nil && cookie.Value != "" {
					access, sess, rerr := svc.RefreshAccessToken(ctx.Request().Context(), cookie.Value)
					if rerr == nil {
						setTokenCookie(ctx, accessTokenCookie, access, sess.ExpiresAt)
						setClientCookie(ctx, lastActivityCookie, strconv.FormatInt(time.Now().UTC().Unix(), 10), sess.ExpiresAt)
						ctx.Set(contextSessionKey, sess)
						return next(ctx)
					}
				}
			}
			return errUnauthorized
		}
	}
}

// requirePermissions gates a route group on the session's permission set; a
// hit with none of perms is a 403, not a 401.
func requirePermissions(perms ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := contextSession(ctx)
			if err != nil {
				return err
			}
			if !sess.HasAnyPermission(perms...) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

func contextSession(ctx echo.Context) (session.Session, error) {
	if sess, ok := ctx.Get(contextSessionKey).(session.Session); ok {
		return sess, nil
	}
	return session.Session{}, errUnauthorized
}

func extractAccessToken(ctx echo.Context) string {
	if auth := ctx.Request().Header.Get(echo.HeaderAuthorization); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if cookie, err := ctx.Cookie(accessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func setTokenCookie(ctx echo.Context, name, value string, expires time.Time) {
	ctx.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   !core.Conf.Debug,
		SameSite: http.SameSiteStrictMode,
	})
}

// setClientCookie is readable by frontend scripts, unlike the token cookies.
func setClientCookie(ctx echo.Context, name, value string, expires time.Time) {
	ctx.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		Secure:   !core.Conf.Debug,
		SameSite: http.SameSiteStrictMode,
	})
}

func setAuthCookies(ctx echo.Context, pair session.TokenPair, sess session.Session, usr user.User) {
	setTokenCookie(ctx, accessTokenCookie, pair.AccessToken, sess.ExpiresAt)
	setTokenCookie(ctx, refreshTokenCookie, pair.RefreshToken, sess.ExpiresAt)
	setClientCookie(ctx, lastActivityCookie, strconv.FormatInt(time.Now().UTC().Unix(), 10), sess.ExpiresAt)

	info, err := json.Marshal(userCookieInfo{
		ID:             usr.ID,
		Name:           usr.Name,
		Username:       usr.Username,
		Roles:          usr.Roles,
		InactiveReason: usr.InactiveReason,
	})
	if err != nil {
		return // the login body carries the same data
	}
	setClientCookie(ctx, userCookie, url.QueryEscape(string(info)), sess.ExpiresAt)
}

// userCookieInfo is the client-readable summary kept in the user cookie.
type userCookieInfo struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Username       string   `json:"username"`
	Roles          []string `json:"roles"`
	InactiveReason string   `json:"inactive_reason,omitempty"`
}

func clearAuthCookies(ctx echo.Context) {
	past := time.Unix(0, 0)
	setTokenCookie(ctx, accessTokenCookie, "", past)
	setTokenCookie(ctx, refreshTokenCookie, "", past)
	setClientCookie(ctx, userCookie, "", past)
	setClientCookie(ctx, lastActivityCookie, "", past)
}
