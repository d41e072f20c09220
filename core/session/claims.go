package session

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
)

const tokenAudience = "Portal"

var (
	// mockable
	nowFunc           = time.Now
	secretKey         = core.Conf.SecretKey
	accessTokenDelta  = core.Conf.Server.AccessTokenDelta
	refreshTokenDelta = core.Conf.Server.RefreshTokenDelta
)

// AccessClaims is the short-lived stateless credential presented on each
// request. Subject carries the session id; everything else the handlers need
// is looked up against the Session of record.
type AccessClaims struct {
	jwt.StandardClaims
	UserType string `json:"utype,omitempty"`
}

// RefreshClaims is the long-lived credential used only to mint new access tokens.
type RefreshClaims struct {
	jwt.StandardClaims
}

func newStandardClaims(sessionID string, delta time.Duration) jwt.StandardClaims {
	now := nowFunc()
	return jwt.StandardClaims{
		Issuer:    core.Conf.AppName,
		Subject:   sessionID,
		Audience:  tokenAudience,
		ExpiresAt: now.Add(delta).Unix(),
		IssuedAt:  now.Unix(),
	}
}

// GenerateAccessToken mints a signed access token bound to the given Session.
func GenerateAccessToken(sess Session) (string, error) {
	claims := &AccessClaims{
		StandardClaims: newStandardClaims(sess.ID, accessTokenDelta),
		UserType:       sess.UserType,
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey)
	return ss, errors.Wrap(err, "signing access token")
}

// GenerateRefreshToken mints a signed refresh token bound to the given Session.
func GenerateRefreshToken(sess Session) (string, error) {
	claims := &RefreshClaims{StandardClaims: newStandardClaims(sess.ID, refreshTokenDelta)}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey)
	return ss, errors.Wrap(err, "signing refresh token")
}

func keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidToken
	}
	return []byte(secretKey), nil
}

// parseAccessToken verifies the signature and structure of an access token.
// An expiry-only failure still yields the claims so the caller can decide
// whether a refresh is possible; any other failure is terminal.
func parseAccessToken(token string) (claims *AccessClaims, expired bool, err error) {
	claims = new(AccessClaims)
	_, err = jwt.ParseWithClaims(token, claims, keyFunc)
	if err == nil {
		return claims, false, nil
	}
	if vErr, ok := err.(*jwt.ValidationError); ok && vErr.Errors == jwt.ValidationErrorExpired {
		return claims, true, nil
	}
	return nil, false, ErrInvalidToken
}

// parseRefreshToken verifies a refresh token; expiry is terminal here.
func parseRefreshToken(token string) (*RefreshClaims, error) {
	claims := new(RefreshClaims)
	if _, err := jwt.ParseWithClaims(token, claims, keyFunc); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
