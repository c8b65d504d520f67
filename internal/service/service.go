// Package service defines the backend-agnostic interface for list and task operations.
package service

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the operations commands consume.
// Commands never talk HTTP or touch credentials directly.
//
// Every mutating method returns the collection re-read from the server after
// the write succeeded, never a locally patched copy.
type Service interface {
	// Login exchanges email and password for a session.
	Login(ctx context.Context, email, password string) (User, error)

	// Signup requests account creation. The server mails a confirmation token.
	Signup(ctx context.Context, in SignupInput) error

	// Confirm completes signup with the mailed token and starts a session.
	Confirm(ctx context.Context, token string) (User, error)

	// Logout ends the session. Always succeeds.
	Logout(ctx context.Context)

	// CurrentUser returns the signed-in user, if any. Never touches the network.
	CurrentUser() (User, bool)

	// AccessToken returns a valid access token, renewing it if due.
	AccessToken(ctx context.Context) (string, error)

	// ListLists returns all lists visible to the user, newest first.
	// An empty result is not an error.
	ListLists(ctx context.Context) ([]List, error)

	// GetList returns one list with its task aggregate.
	GetList(ctx context.Context, id uuid.UUID) (List, error)

	// ResolveList finds a list by UUID or by title (case-insensitive, trimmed).
	// Returns ErrListNotFound or ErrAmbiguousList for title lookups.
	ResolveList(ctx context.Context, ref string) (List, error)

	CreateList(ctx context.Context, in ListInput) ([]List, error)
	UpdateList(ctx context.Context, id uuid.UUID, patch ListPatch) ([]List, error)
	DeleteList(ctx context.Context, id uuid.UUID) ([]List, error)

	// ListTasks returns the list and its tasks in server order.
	ListTasks(ctx context.Context, listID uuid.UUID) (ListView, error)

	CreateTask(ctx context.Context, listID uuid.UUID, in TaskInput) (ListView, error)
	UpdateTask(ctx context.Context, listID, taskID uuid.UUID, patch TaskPatch) (ListView, error)
	DeleteTask(ctx context.Context, listID, taskID uuid.UUID) (ListView, error)

	// ListMembers returns users with access to the list.
	ListMembers(ctx context.Context, listID uuid.UUID) ([]Member, error)

	GrantAccess(ctx context.Context, listID uuid.UUID, email string) ([]Member, error)
	RevokeAccess(ctx context.Context, listID, userID uuid.UUID) ([]Member, error)
}
