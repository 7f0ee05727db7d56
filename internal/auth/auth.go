// Package auth extracts the caller identity from a WebSocket upgrade request
// and verifies it before a session starts streaming.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

const (
	// QueryParam is the query parameter carrying the user id.
	QueryParam = "user_id"
	// HeaderName is the request header carrying the user id.
	HeaderName = "X-User-ID"

	ModeOpen      = "open"
	ModeDirectory = "directory"
)

var (
	ErrMissingIdentity = errors.New("missing identity")
	ErrUnknownIdentity = errors.New("unknown identity")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// IdentityFromRequest looks for the user id in the query string, then the
// X-User-ID header, then an Authorization bearer token. It returns "" when
// none is present.
func IdentityFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if q := strings.TrimSpace(r.URL.Query().Get(QueryParam)); q != "" {
		return q
	}
	if h := strings.TrimSpace(r.Header.Get(HeaderName)); h != "" {
		return h
	}
	ah := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		return strings.TrimSpace(ah[len("Bearer "):])
	}
	return ""
}

// Verifier decides whether a user id may open a session.
type Verifier interface {
	Verify(ctx context.Context, userID string) error
}

// Open accepts any well-formed id.
type Open struct{}

// Verify implements Verifier.
func (Open) Verify(_ context.Context, userID string) error {
	return checkFormat(userID)
}

// Lookup reports whether a user id is registered.
type Lookup interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Directory accepts only ids present in a user directory.
type Directory struct {
	Users Lookup
}

// Verify implements Verifier. Lookup failures are returned wrapped so the
// caller can tell them apart from an unknown id.
func (d Directory) Verify(ctx context.Context, userID string) error {
	if err := checkFormat(userID); err != nil {
		return err
	}
	ok, err := d.Users.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("user lookup: %w", err)
	}
	if !ok {
		return ErrUnknownIdentity
	}
	return nil
}

// NewVerifier returns the verifier for mode. Directory mode requires users.
func NewVerifier(mode string, users Lookup) (Verifier, error) {
	switch strings.ToLower(mode) {
	case "", ModeOpen:
		return Open{}, nil
	case ModeDirectory:
		if users == nil {
			return nil, errors.New("auth: directory mode requires a user directory")
		}
		return Directory{Users: users}, nil
	default:
		return nil, fmt.Errorf("auth: unknown mode %q", mode)
	}
}

func checkFormat(userID string) error {
	if userID == "" {
		return ErrMissingIdentity
	}
	if !idPattern.MatchString(userID) {
		return ErrUnknownIdentity
	}
	return nil
}
