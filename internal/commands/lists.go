package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"todoctl/internal/config"
	"todoctl/internal/exitcode"
	"todoctl/internal/output"
	"todoctl/internal/service"
)

func init() {
	Register(&ListsCmd{})
	Register(&ListCmd{})
}

// ListsCmd implements the lists command. It is the default command.
type ListsCmd struct{}

func (c *ListsCmd) Name() string      { return "lists" }
func (c *ListsCmd) Aliases() []string { return nil }
func (c *ListsCmd) Synopsis() string  { return "Print all lists" }
func (c *ListsCmd) Usage() string     { return "todoctl lists [common flags]" }
func (c *ListsCmd) NeedsAuth() bool   { return true }

func (c *ListsCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ListsCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	lists, err := svc.ListLists(ctx)
	if err != nil {
		return reportError(errOut, err)
	}

	if len(lists) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(out, "no lists found")
		}
		return exitcode.Success
	}

	for _, list := range lists {
		output.FormatList(out, list)
	}
	return exitcode.Success
}

// ListCmd implements the list command: the tasks of one list, numbered in server order.
type ListCmd struct{}

func (c *ListCmd) Name() string      { return "list" }
func (c *ListCmd) Aliases() []string { return nil }
func (c *ListCmd) Synopsis() string  { return "List tasks" }
func (c *ListCmd) Usage() string     { return "todoctl list [common flags] [<list>]" }
func (c *ListCmd) NeedsAuth() bool   { return true }

func (c *ListCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ListCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	name := listName(cfg, joinArgs(args))
	if name == "" {
		fmt.Fprintln(errOut, "error: list name required")
		return exitcode.UserError
	}

	list, err := svc.ResolveList(ctx, name)
	if err != nil {
		return reportError(errOut, err)
	}

	view, err := svc.ListTasks(ctx, list.ID)
	if err != nil {
		return reportError(errOut, err)
	}

	// Print list section (even if empty)
	output.FormatListHeader(out, view.List)
	for i, task := range view.Tasks {
		output.FormatTask(out, i+1, task)
	}
	if len(view.Tasks) == 0 && !cfg.Quiet {
		fmt.Fprintln(out, "no tasks found")
	}
	return exitcode.Success
}
