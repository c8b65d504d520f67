package todoapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"todoctl/internal/credstore"
	"todoctl/internal/service"
	"todoctl/internal/session"
)

// AuthClient calls the unauthenticated user endpoints. It is the session
// manager's Refresher.
type AuthClient struct {
	t *Transport
}

var _ session.Refresher = (*AuthClient)(nil)

// NewAuthClient creates an AuthClient on t.
func NewAuthClient(t *Transport) *AuthClient {
	return &AuthClient{t: t}
}

// Login exchanges email and password for a token pair.
func (a *AuthClient) Login(ctx context.Context, email, password string) (credstore.Credential, error) {
	var pair tokenPair
	body := loginBody{Email: strings.TrimSpace(email), Password: password}
	if err := a.t.call(ctx, "Login", http.MethodPost, "/api/user/login", nil, body, &pair); err != nil {
		return credstore.Credential{}, err
	}
	return credstore.Credential{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// Signup requests account creation.
func (a *AuthClient) Signup(ctx context.Context, in service.SignupInput) error {
	in.Email = strings.TrimSpace(in.Email)
	if err := validateInput(in); err != nil {
		return err
	}
	return a.t.call(ctx, "Signup", http.MethodPost, "/api/user/create", nil, in, nil)
}

// Confirm completes signup with the mailed token.
func (a *AuthClient) Confirm(ctx context.Context, token string) (credstore.Credential, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return credstore.Credential{}, service.NewValidationError("invalid input", map[string]string{"token": "is required"})
	}
	var pair tokenPair
	path := "/api/user/confirm/" + url.PathEscape(token)
	if err := a.t.call(ctx, "Confirm", http.MethodGet, path, nil, nil, &pair); err != nil {
		return credstore.Credential{}, err
	}
	return credstore.Credential{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// Refresh exchanges a refresh token for a new access token. The returned
// RefreshToken is empty unless the server rotated it. The request bypasses the
// circuit breaker; only an answer from the server can fail a renewal.
func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (credstore.Credential, error) {
	var pair tokenPair
	body := refreshBody{RefreshToken: refreshToken}
	if err := a.t.callUnguarded(ctx, "Refresh", http.MethodPost, "/api/user/refresh", body, &pair); err != nil {
		return credstore.Credential{}, err
	}
	if pair.AccessToken == "" {
		return credstore.Credential{}, &service.Error{Code: service.CodeServer, Message: "refresh response has no access token"}
	}
	return credstore.Credential{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

// Login authenticates and starts a session.
func (c *Client) Login(ctx context.Context, email, password string) (service.User, error) {
	if err := validateInput(struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}{strings.TrimSpace(email), password}); err != nil {
		return service.User{}, err
	}

	cred, err := c.auth.Login(ctx, email, password)
	if err != nil {
		return service.User{}, err
	}
	return c.startSession(ctx, cred)
}

// Signup requests account creation; the server mails a confirmation token.
func (c *Client) Signup(ctx context.Context, in service.SignupInput) error {
	return c.auth.Signup(ctx, in)
}

// Confirm completes signup and starts a session.
func (c *Client) Confirm(ctx context.Context, token string) (service.User, error) {
	cred, err := c.auth.Confirm(ctx, token)
	if err != nil {
		return service.User{}, err
	}
	return c.startSession(ctx, cred)
}

func (c *Client) startSession(ctx context.Context, cred credstore.Credential) (service.User, error) {
	if err := c.session.Login(ctx, cred.AccessToken, cred.RefreshToken); err != nil {
		if errors.Is(err, session.ErrInvalidCredential) {
			return service.User{}, &service.Error{Code: service.CodeDecode, Message: "server issued an unreadable token", Err: err}
		}
		return service.User{}, err
	}
	u, _ := c.CurrentUser()
	return u, nil
}
