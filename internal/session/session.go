// Package session owns the user's bearer credentials.
//
// A Manager restores the credential from a credstore.Store, decodes its
// claims, renews the access token before it expires and makes sure that at
// most one renewal is in flight per session generation. It is the only
// writer of the store.
package session

import (
	"context"
	"errors"

	"todoctl/internal/credstore"
)

// State is the session lifecycle state.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// User is the identity carried by the access token.
type User struct {
	Name  string
	Email string
}

// Session is a snapshot of the manager. User is nil when anonymous.
type Session struct {
	State State
	User  *User
}

// Authenticated reports whether the snapshot holds a user.
func (s Session) Authenticated() bool {
	return s.User != nil
}

// Errors returned by ValidAccessToken. Both match ErrNoToken.
var (
	ErrNoToken        = errors.New("no valid access token")
	ErrAnonymous      = noToken("not logged in")
	ErrSessionExpired = noToken("session expired")
)

// ErrInvalidCredential is returned by Login when the access token cannot be decoded.
var ErrInvalidCredential = errors.New("invalid credential")

type noTokenError struct{ msg string }

func noToken(msg string) error { return &noTokenError{msg: msg} }

func (e *noTokenError) Error() string { return e.msg }

func (e *noTokenError) Is(target error) bool { return target == ErrNoToken }

// Refresher exchanges a refresh token for a new token pair.
// RefreshToken in the result is empty when the server did not rotate it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (credstore.Credential, error)
}
