package todoapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"todoctl/internal/service"
)

func accessPath(listID uuid.UUID) string {
	return listPath(listID) + "/access"
}

// ListMembers returns the users with access to a list.
func (c *Client) ListMembers(ctx context.Context, listID uuid.UUID) ([]service.Member, error) {
	var out []wireMember
	if err := c.do(ctx, "ListMembers", http.MethodGet, accessPath(listID), nil, &out); err != nil {
		return nil, err
	}
	return toMembers(out), nil
}

// GrantAccess shares a list with the user registered under email.
func (c *Client) GrantAccess(ctx context.Context, listID uuid.UUID, email string) ([]service.Member, error) {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	path := accessPath(listID) + "/" + url.PathEscape(email)
	if err := c.do(ctx, "GrantAccess", http.MethodPut, path, nil, nil); err != nil {
		return nil, err
	}
	return c.ListMembers(ctx, listID)
}

// RevokeAccess removes a user's access to a list.
func (c *Client) RevokeAccess(ctx context.Context, listID, userID uuid.UUID) ([]service.Member, error) {
	path := accessPath(listID) + "/" + userID.String()
	if err := c.do(ctx, "RevokeAccess", http.MethodDelete, path, nil, nil); err != nil {
		return nil, err
	}
	return c.ListMembers(ctx, listID)
}
