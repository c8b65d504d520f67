// Package todoapi implements service.Service against the todo REST API.
//
// Every authenticated call goes through Client.do, which takes a valid access
// token from the session manager before issuing the request. Mutations return
// collections re-read from the server after the write, never a locally
// patched copy.
package todoapi

import (
	"context"
	"errors"

	"todoctl/internal/service"
	"todoctl/internal/session"
)

// Client implements service.Service.
type Client struct {
	t       *Transport
	auth    *AuthClient
	session *session.Manager
}

var _ service.Service = (*Client)(nil)

// New creates a client. sess must have been built with auth as its Refresher.
func New(t *Transport, auth *AuthClient, sess *session.Manager) *Client {
	return &Client{t: t, auth: auth, session: sess}
}

// do issues an authenticated call. No request is sent when no valid token
// can be obtained.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	return c.t.call(ctx, op, method, path, c.bearer, body, out)
}

func (c *Client) bearer(ctx context.Context) (string, error) {
	token, err := c.session.ValidAccessToken(ctx)
	if err == nil {
		return token, nil
	}
	if errors.Is(err, session.ErrSessionExpired) {
		return "", &service.Error{Code: service.CodeSessionExpired, Message: "session expired"}
	}
	return "", &service.Error{Code: service.CodeUnauthenticated, Message: "not logged in"}
}

// AccessToken returns a valid access token, renewing it if due.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.bearer(ctx)
}

// CurrentUser reports the signed-in user from the in-memory session.
func (c *Client) CurrentUser() (service.User, bool) {
	s := c.session.Session()
	if s.User == nil {
		return service.User{}, false
	}
	return service.User{Name: s.User.Name, Email: s.User.Email}, true
}

// Logout ends the session.
func (c *Client) Logout(ctx context.Context) {
	c.session.Logout(ctx)
}

// Close releases the session's credential store.
func (c *Client) Close() error {
	return c.session.Close()
}
