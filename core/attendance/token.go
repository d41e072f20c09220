package attendance

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/elimuhq/elimu/core"
)

var (
	salt = []byte("elimu.core.attendance.token")

	// mockable
	nowFunc      = time.Now
	secretKey    = core.Conf.SecretKey
	sessionDelta = core.Conf.AttendanceSessionDelta
)

// makeToken signs a QR session id together with its expiry so that a scanned
// payload is self-authenticating; the repository lookup only confirms the row
// still exists.
func makeToken(sessionID string, expiresAt time.Time) string {
	payload := fmt.Sprintf("%s:%d", sessionID, expiresAt.Unix())
	// "." is outside the base64url alphabet, so it splits unambiguously
	return fmt.Sprintf("%s.%s", base64.RawURLEncoding.EncodeToString([]byte(payload)), sign(payload))
}

// verifyToken checks the signature and expiry and returns the embedded
// QR session id.
func verifyToken(token string) (string, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) < 2 {
		return "", ErrInvalidToken
	}
	data, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrInvalidToken
	}
	payload := string(data)
	if subtle.ConstantTimeCompare([]byte(sign(payload)), []byte(parts[1])) == 0 {
		return "", ErrInvalidToken
	}

	idx := strings.LastIndex(payload, ":")
	if idx < 0 {
		return "", ErrInvalidToken
	}
	exp, err := strconv.ParseInt(payload[idx+1:], 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	if nowFunc().After(time.Unix(exp, 0)) {
		return "", ErrSessionExpired
	}
	return payload[:idx], nil
}

func sign(payload string) string {
	key := sha256.Sum256(append(salt, secretKey...))
	h := hmac.New(sha256.New, key[:])
	h.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
