// Package storage implements a disk-backed object store fronted by pre-signed
// URLs. Clients never talk to the store with credentials; they receive a URL
// whose signature covers the method, object key and expiry.
package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
)

var (
	salt = []byte("elimu.services.storage")

	// mockable
	nowFunc = time.Now

	// errors
	ErrInvalidKey       = errors.New("invalid object key")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrURLExpired       = errors.New("signed URL expired")
	ErrObjectNotFound   = errors.New("object not found")
)

type Store struct {
	root    string
	baseURL string
	delta   time.Duration
	secret  []byte
}

func NewStore() *Store {
	return &Store{
		root:    core.Conf.Storage.Root,
		baseURL: strings.TrimRight(core.Conf.Storage.BaseURL, "/"),
		delta:   core.Conf.Storage.SignedURLDelta,
		secret:  core.Conf.SecretKey,
	}
}

// SignedURL returns a URL authorizing exactly one method on one key until
// expiry. The signature covers all three so none can be swapped.
func (st *Store) SignedURL(method, key string) (string, time.Time, error) {
	if err := validateKey(key); err != nil {
		return "", time.Time{}, err
	}
	expiresAt := nowFunc().Add(st.delta).UTC()
	sig := st.sign(method, key, expiresAt.Unix())
	u := fmt.Sprintf("%s/objects/%s?exp=%d&sig=%s", st.baseURL, url.PathEscape(key), expiresAt.Unix(), sig)
	return u, expiresAt, nil
}

// Verify authorizes a request made against a signed URL.
func (st *Store) Verify(method, key string, exp int64, sig string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(st.sign(method, key, exp)), []byte(sig)) == 0 {
		return ErrInvalidSignature
	}
	if nowFunc().After(time.Unix(exp, 0)) {
		return ErrURLExpired
	}
	return nil
}

func (st *Store) Put(key string, r io.Reader) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	path := filepath.Join(st.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, pkgerrors.Wrap(err, "creating object dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "creating object file")
	}
	defer f.Close()
	n, err := io.Copy(f, r)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "writing object")
	}
	return n, nil
}

func (st *Store) Open(key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(st.root, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrObjectNotFound
		}
		return nil, pkgerrors.Wrap(err, "opening object")
	}
	return f, nil
}

func (st *Store) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(st.root, filepath.FromSlash(key))); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrap(err, "removing object")
	}
	return nil
}

func (st *Store) sign(method, key string, exp int64) string {
	mac := hmac.New(sha256.New, hashedSecret(st.secret))
	mac.Write([]byte(strings.ToUpper(method) + "|" + key + "|" + strconv.FormatInt(exp, 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func hashedSecret(secret []byte) []byte {
	key := sha256.Sum256(append(salt, secret...))
	return key[:]
}

// validateKey keeps keys inside the store root; keys are slash-separated
// relative paths.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	return nil
}
