package todoapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"todoctl/internal/service"
)

func listPath(id uuid.UUID) string {
	return "/api/list/" + id.String()
}

// ListLists returns all lists visible to the user in server order.
func (c *Client) ListLists(ctx context.Context) ([]service.List, error) {
	var out []wireList
	if err := c.do(ctx, "ListLists", http.MethodGet, "/api/list/", nil, &out); err != nil {
		return nil, err
	}
	return toLists(out), nil
}

// GetList returns one list with its aggregate.
func (c *Client) GetList(ctx context.Context, id uuid.UUID) (service.List, error) {
	var out wireList
	if err := c.do(ctx, "GetList", http.MethodGet, listPath(id), nil, &out); err != nil {
		return service.List{}, err
	}
	return out.toList(), nil
}

// ResolveList finds a list by UUID or by title.
func (c *Client) ResolveList(ctx context.Context, ref string) (service.List, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return service.List{}, fmt.Errorf("%w: empty name", service.ErrListNotFound)
	}
	if id, err := uuid.Parse(ref); err == nil {
		return c.GetList(ctx, id)
	}

	lists, err := c.ListLists(ctx)
	if err != nil {
		return service.List{}, err
	}

	var matches []service.List
	for _, l := range lists {
		if strings.EqualFold(strings.TrimSpace(l.Title), ref) {
			matches = append(matches, l)
		}
	}

	switch len(matches) {
	case 0:
		return service.List{}, fmt.Errorf("%w: %q", service.ErrListNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return service.List{}, fmt.Errorf("%w: %q matches %d lists", service.ErrAmbiguousList, ref, len(matches))
	}
}

// CreateList creates a list and returns the refreshed collection.
func (c *Client) CreateList(ctx context.Context, in service.ListInput) ([]service.List, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	body := listBody{Title: in.Title, Description: in.Description}
	if err := c.do(ctx, "CreateList", http.MethodPost, "/api/list/create", body, nil); err != nil {
		return nil, err
	}
	return c.ListLists(ctx)
}

// UpdateList applies patch and returns the refreshed collection. The server
// replaces both fields, so unset ones are filled from the current list.
func (c *Client) UpdateList(ctx context.Context, id uuid.UUID, patch service.ListPatch) ([]service.List, error) {
	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		patch.Title = &t
	}
	if err := validateInput(patch); err != nil {
		return nil, err
	}
	if patch.Title == nil && patch.Description == nil {
		return nil, service.NewValidationError("nothing to update", nil)
	}

	var body listBody
	if patch.Title == nil || patch.Description == nil {
		cur, err := c.GetList(ctx, id)
		if err != nil {
			return nil, err
		}
		body = listBody{Title: cur.Title, Description: cur.Description}
	}
	if patch.Title != nil {
		body.Title = *patch.Title
	}
	if patch.Description != nil {
		body.Description = *patch.Description
	}

	if err := c.do(ctx, "UpdateList", http.MethodPut, listPath(id), body, nil); err != nil {
		return nil, err
	}
	return c.ListLists(ctx)
}

// DeleteList deletes a list and returns the refreshed collection.
func (c *Client) DeleteList(ctx context.Context, id uuid.UUID) ([]service.List, error) {
	if err := c.do(ctx, "DeleteList", http.MethodDelete, listPath(id), nil, nil); err != nil {
		return nil, err
	}
	return c.ListLists(ctx)
}
