// Package exitcode defines exit codes for the CLI.
package exitcode

const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error (bad args, not found, ambiguous, rejected input).
	UserError = 1

	// AuthError indicates the user is not logged in or the session expired.
	AuthError = 2

	// BackendError indicates a server or network failure.
	BackendError = 3
)
