package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"todoctl/internal/config"
	"todoctl/internal/exitcode"
	"todoctl/internal/output"
	"todoctl/internal/service"
)

// DefaultDueIn is the due date offset for tasks created without --due.
const DefaultDueIn = 7 * 24 * time.Hour

// now is replaced in tests.
var now = time.Now

// reportError prints err and maps it to an exit code.
func reportError(errOut io.Writer, err error) int {
	switch {
	case errors.Is(err, service.ErrListNotFound),
		errors.Is(err, service.ErrAmbiguousList),
		errors.Is(err, errTaskNotFound):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}

	switch {
	case errors.Is(err, service.ErrUnauthenticated), errors.Is(err, service.ErrSessionExpired):
		fmt.Fprintf(errOut, "error: %v (run: todoctl login)\n", err)
		return exitcode.AuthError
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrDecode):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	default:
		// ErrNetwork, ErrServer and anything unclassified.
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}
}

// printOK prints "ok" unless quiet.
func printOK(cfg *config.Config, out io.Writer) int {
	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}

// listName picks the --list flag, falling back to the configured default list.
func listName(cfg *config.Config, flagValue string) string {
	if name := strings.TrimSpace(flagValue); name != "" {
		return name
	}
	return strings.TrimSpace(cfg.DefaultList)
}

// resolveFlagList resolves --list or the configured default list.
// On failure it reports the error and returns a non-zero exit code.
func resolveFlagList(ctx context.Context, cfg *config.Config, svc service.Service, flagValue string, errOut io.Writer) (service.List, int) {
	name := listName(cfg, flagValue)
	if name == "" {
		fmt.Fprintln(errOut, "error: list required (use --list or set default_list)")
		return service.List{}, exitcode.UserError
	}
	list, err := svc.ResolveList(ctx, name)
	if err != nil {
		return service.List{}, reportError(errOut, err)
	}
	return list, exitcode.Success
}

// resolveTask resolves the list and the task referenced by args.
// On failure it reports the error and returns a non-zero exit code.
func resolveTask(ctx context.Context, cfg *config.Config, svc service.Service, listFlag string, args []string, errOut io.Writer) (service.List, service.Task, int) {
	ref, err := ParseTaskRef(args)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return service.List{}, service.Task{}, exitcode.UserError
	}

	list, code := resolveFlagList(ctx, cfg, svc, listFlag, errOut)
	if code != exitcode.Success {
		return service.List{}, service.Task{}, code
	}

	view, err := svc.ListTasks(ctx, list.ID)
	if err != nil {
		return service.List{}, service.Task{}, reportError(errOut, err)
	}

	task, err := ref.Find(view)
	if err != nil {
		return service.List{}, service.Task{}, reportError(errOut, err)
	}
	return view.List, task, exitcode.Success
}

// parseDue parses a due date: YYYY-MM-DD, "YYYY-MM-DD HH:MM", RFC 3339,
// "today", "tomorrow" or "+Nd".
func parseDue(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	today := now()
	switch strings.ToLower(s) {
	case "today":
		return endOfDay(today), nil
	case "tomorrow":
		return endOfDay(today.AddDate(0, 0, 1)), nil
	}

	if strings.HasPrefix(s, "+") && strings.HasSuffix(s, "d") {
		var days int
		if _, err := fmt.Sscanf(s, "+%dd", &days); err == nil && days >= 0 {
			return endOfDay(today.AddDate(0, 0, days)), nil
		}
	}

	if t, err := time.ParseInLocation(output.DateLayout, s, time.Local); err == nil {
		return endOfDay(t), nil
	}
	if t, err := time.ParseInLocation(output.DateLayout+" 15:04", s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid due date: %s (use YYYY-MM-DD)", s)
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 0, 0, t.Location())
}

// optionalString is a string flag that records whether it was set.
type optionalString struct {
	value string
	set   bool
}

func (o *optionalString) String() string { return o.value }

func (o *optionalString) Set(s string) error {
	o.value = s
	o.set = true
	return nil
}

// ptr returns nil when the flag was not given.
func (o *optionalString) ptr() *string {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

// joinArgs joins positional args into one trimmed string.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
