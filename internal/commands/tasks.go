package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"todoctl/internal/config"
	"todoctl/internal/exitcode"
	"todoctl/internal/service"
)

func init() {
	Register(&AddCmd{})
	Register(&DoneCmd{done: true})
	Register(&DoneCmd{done: false})
	Register(&EditCmd{})
	Register(&RmCmd{})
}

// AddCmd implements the add command.
type AddCmd struct {
	listName    string
	description string
	due         string
}

func (c *AddCmd) Name() string      { return "add" }
func (c *AddCmd) Aliases() []string { return []string{"create"} }
func (c *AddCmd) Synopsis() string  { return "Create a task" }
func (c *AddCmd) Usage() string {
	return "todoctl add [common flags] [--list <list>] [--description <text>] [--due <date>] <title...>"
}
func (c *AddCmd) NeedsAuth() bool { return true }

func (c *AddCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.listName, "list", "", "")
	fs.StringVar(&c.listName, "l", "", "")
	fs.StringVar(&c.description, "description", "", "")
	fs.StringVar(&c.description, "d", "", "")
	fs.StringVar(&c.due, "due", "", "")
}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	title := joinArgs(args)
	if title == "" {
		fmt.Fprintln(errOut, "error: title required")
		return exitcode.UserError
	}

	due := now().Add(DefaultDueIn)
	if c.due != "" {
		var err error
		if due, err = parseDue(c.due); err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.UserError
		}
	}

	list, code := resolveFlagList(ctx, cfg, svc, c.listName, errOut)
	if code != exitcode.Success {
		return code
	}

	in := service.TaskInput{Title: title, Description: c.description, DueDate: due}
	if _, err := svc.CreateTask(ctx, list.ID, in); err != nil {
		return reportError(errOut, err)
	}
	return printOK(cfg, out)
}

// DoneCmd implements the done and undone commands.
type DoneCmd struct {
	done     bool
	listName string
}

func (c *DoneCmd) Name() string {
	if c.done {
		return "done"
	}
	return "undone"
}

func (c *DoneCmd) Aliases() []string { return nil }

func (c *DoneCmd) Synopsis() string {
	if c.done {
		return "Mark a task completed"
	}
	return "Mark a task not completed"
}

func (c *DoneCmd) Usage() string {
	return "todoctl " + c.Name() + " [common flags] [--list <list>] <ref>"
}

func (c *DoneCmd) NeedsAuth() bool { return true }

func (c *DoneCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.listName, "list", "", "")
	fs.StringVar(&c.listName, "l", "", "")
}

func (c *DoneCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	list, task, code := resolveTask(ctx, cfg, svc, c.listName, args, errOut)
	if code != exitcode.Success {
		return code
	}

	done := c.done
	if _, err := svc.UpdateTask(ctx, list.ID, task.ID, service.TaskPatch{Done: &done}); err != nil {
		return reportError(errOut, err)
	}
	return printOK(cfg, out)
}

// EditCmd implements the edit command.
type EditCmd struct {
	listName    string
	title       optionalString
	description optionalString
	due         optionalString
}

func (c *EditCmd) Name() string      { return "edit" }
func (c *EditCmd) Aliases() []string { return nil }
func (c *EditCmd) Synopsis() string  { return "Change a task" }
func (c *EditCmd) Usage() string {
	return "todoctl edit [common flags] [--list <list>] [--title <title>] [--description <text>] [--due <date>] <ref>"
}
func (c *EditCmd) NeedsAuth() bool { return true }

func (c *EditCmd) RegisterFlags(fs *flag.FlagSet) {
	c.title, c.description, c.due = optionalString{}, optionalString{}, optionalString{}
	fs.StringVar(&c.listName, "list", "", "")
	fs.StringVar(&c.listName, "l", "", "")
	fs.Var(&c.title, "title", "")
	fs.Var(&c.description, "description", "")
	fs.Var(&c.description, "d", "")
	fs.Var(&c.due, "due", "")
}

func (c *EditCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	patch := service.TaskPatch{Title: c.title.ptr(), Description: c.description.ptr()}
	if c.due.set {
		due, err := parseDue(c.due.value)
		if err != nil {
			fmt.Fprintf(errOut, "error: %v\n", err)
			return exitcode.UserError
		}
		patch.DueDate = &due
	}
	if patch.Empty() {
		fmt.Fprintln(errOut, "error: nothing to update (use --title, --description or --due)")
		return exitcode.UserError
	}

	list, task, code := resolveTask(ctx, cfg, svc, c.listName, args, errOut)
	if code != exitcode.Success {
		return code
	}

	if _, err := svc.UpdateTask(ctx, list.ID, task.ID, patch); err != nil {
		return reportError(errOut, err)
	}
	return printOK(cfg, out)
}

// RmCmd implements the rm command.
type RmCmd struct {
	listName string
}

func (c *RmCmd) Name() string      { return "rm" }
func (c *RmCmd) Aliases() []string { return nil }
func (c *RmCmd) Synopsis() string  { return "Delete a task" }
func (c *RmCmd) Usage() string     { return "todoctl rm [common flags] [--list <list>] <ref>" }
func (c *RmCmd) NeedsAuth() bool   { return true }

func (c *RmCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.listName, "list", "", "")
	fs.StringVar(&c.listName, "l", "", "")
}

func (c *RmCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	list, task, code := resolveTask(ctx, cfg, svc, c.listName, args, errOut)
	if code != exitcode.Success {
		return code
	}

	if _, err := svc.DeleteTask(ctx, list.ID, task.ID); err != nil {
		return reportError(errOut, err)
	}
	return printOK(cfg, out)
}
