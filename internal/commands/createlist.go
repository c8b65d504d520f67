package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"todoctl/internal/config"
	"todoctl/internal/exitcode"
	"todoctl/internal/service"
)

func init() {
	Register(&CreateListCmd{})
	Register(&EditListCmd{})
	Register(&RmListCmd{})
}

// CreateListCmd implements the createlist command.
type CreateListCmd struct {
	description string
}

func (c *CreateListCmd) Name() string      { return "createlist" }
func (c *CreateListCmd) Aliases() []string { return []string{"addlist"} }
func (c *CreateListCmd) Synopsis() string  { return "Create a new list" }
func (c *CreateListCmd) Usage() string {
	return "todoctl createlist [common flags] [--description <text>] <title...>"
}
func (c *CreateListCmd) NeedsAuth() bool { return true }

func (c *CreateListCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.description, "description", "", "")
	fs.StringVar(&c.description, "d", "", "")
}

func (c *CreateListCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	title := joinArgs(args)
	if title == "" {
		fmt.Fprintln(errOut, "error: list name required")
		return exitcode.UserError
	}

	// Titles are matched case-insensitively, so refuse duplicates up front
	_, err := svc.ResolveList(ctx, title)
	switch {
	case err == nil, errors.Is(err, service.ErrAmbiguousList):
		fmt.Fprintf(errOut, "error: list already exists: %s\n", title)
		return exitcode.UserError
	case !errors.Is(err, service.ErrListNotFound):
		return reportError(errOut, err)
	}

	if _, err := svc.CreateList(ctx, service.ListInput{Title: title, Description: c.description}); err != nil {
		return reportError(errOut, err)
	}
	return printOK(cfg, out)
}

// EditListCmd implements the editlist command.
type EditListCmd struct {
	title       optionalString
	description optionalString
}

func (c *EditListCmd) Name() string      { return "editlist" }
func (c *EditListCmd) Aliases() []string { return nil }
func (c *EditListCmd) Synopsis() string  { return "Rename a list or change its description" }
func (c *EditListCmd) Usage() string {
	return "todoctl editlist [common flags] [--title <title>] [--description <text>] <list>"
}
func (c *EditListCmd) NeedsAuth() bool { return true }

func (c *EditListCmd) RegisterFlags(fs *flag.FlagSet) {
	c.title, c.description = optionalString{}, optionalString{}
	fs.Var(&c.title, "title", "")
	fs.Var(&c.description, "description", "")
	fs.Var(&c.description, "d", "")
}

func (c *EditListCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	name := joinArgs(args)
	if name == "" {
		fmt.Fprintln(errOut, "error: list name required")
		return exitcode.UserError
	}
	if !c.title.set && !c.description.set {
		fmt.Fprintln(errOut, "error: nothing to update (use --title or --description)")
		return exitcode.UserError
	}

	list, err := svc.ResolveList(ctx, name)
	if err != nil {
		return reportError(errOut, err)
	}

	patch := service.ListPatch{Title: c.title.ptr(), Description: c.description.ptr()}
	if _, err := svc.UpdateList(ctx, list.ID, patch); err != nil {
		return reportError(errOut, err)
	}
	return printOK(cfg, out)
}

// RmListCmd implements the rmlist command.
type RmListCmd struct {
	force bool
}

func (c *RmListCmd) Name() string      { return "rmlist" }
func (c *RmListCmd) Aliases() []string { return nil }
func (c *RmListCmd) Synopsis() string  { return "Delete a list" }
func (c *RmListCmd) Usage() string     { return "todoctl rmlist [common flags] [--force] <list>" }
func (c *RmListCmd) NeedsAuth() bool   { return true }

func (c *RmListCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.force, "force", false, "")
}

func (c *RmListCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	name := joinArgs(args)
	if name == "" {
		fmt.Fprintln(errOut, "error: list name required")
		return exitcode.UserError
	}

	list, err := svc.ResolveList(ctx, name)
	if err != nil {
		return reportError(errOut, err)
	}

	if !c.force && list.Aggregate.OpenTasks() > 0 {
		fmt.Fprintf(errOut, "error: list has %d open tasks (use --force)\n", list.Aggregate.OpenTasks())
		return exitcode.UserError
	}

	if _, err := svc.DeleteList(ctx, list.ID); err != nil {
		return reportError(errOut, err)
	}
	return printOK(cfg, out)
}
