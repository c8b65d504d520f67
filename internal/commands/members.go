package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"todoctl/internal/config"
	"todoctl/internal/exitcode"
	"todoctl/internal/output"
	"todoctl/internal/service"
)

func init() {
	Register(&MembersCmd{})
	Register(&ShareCmd{})
	Register(&UnshareCmd{})
}

// MembersCmd implements the members command.
type MembersCmd struct{}

func (c *MembersCmd) Name() string      { return "members" }
func (c *MembersCmd) Aliases() []string { return nil }
func (c *MembersCmd) Synopsis() string  { return "Print users with access to a list" }
func (c *MembersCmd) Usage() string     { return "todoctl members [common flags] [<list>]" }
func (c *MembersCmd) NeedsAuth() bool   { return true }

func (c *MembersCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *MembersCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	name := listName(cfg, joinArgs(args))
	if name == "" {
		fmt.Fprintln(errOut, "error: list name required")
		return exitcode.UserError
	}

	list, err := svc.ResolveList(ctx, name)
	if err != nil {
		return reportError(errOut, err)
	}

	members, err := svc.ListMembers(ctx, list.ID)
	if err != nil {
		return reportError(errOut, err)
	}
	for _, m := range members {
		output.FormatMember(out, m)
	}
	return exitcode.Success
}

// ShareCmd implements the share command.
type ShareCmd struct {
	listName string
}

func (c *ShareCmd) Name() string      { return "share" }
func (c *ShareCmd) Aliases() []string { return nil }
func (c *ShareCmd) Synopsis() string  { return "Give a user access to a list" }
func (c *ShareCmd) Usage() string     { return "todoctl share [common flags] [--list <list>] <email>" }
func (c *ShareCmd) NeedsAuth() bool   { return true }

func (c *ShareCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.listName, "list", "", "")
	fs.StringVar(&c.listName, "l", "", "")
}

func (c *ShareCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		fmt.Fprintln(errOut, "error: email required")
		return exitcode.UserError
	}

	list, code := resolveFlagList(ctx, cfg, svc, c.listName, errOut)
	if code != exitcode.Success {
		return code
	}

	if _, err := svc.GrantAccess(ctx, list.ID, args[0]); err != nil {
		return reportError(errOut, err)
	}
	return printOK(cfg, out)
}

// UnshareCmd implements the unshare command.
type UnshareCmd struct {
	listName string
}

func (c *UnshareCmd) Name() string      { return "unshare" }
func (c *UnshareCmd) Aliases() []string { return nil }
func (c *UnshareCmd) Synopsis() string  { return "Remove a user's access to a list" }
func (c *UnshareCmd) Usage() string {
	return "todoctl unshare [common flags] [--list <list>] <email-or-user-id>"
}
func (c *UnshareCmd) NeedsAuth() bool { return true }

func (c *UnshareCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.listName, "list", "", "")
	fs.StringVar(&c.listName, "l", "", "")
}

func (c *UnshareCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		fmt.Fprintln(errOut, "error: email or user id required")
		return exitcode.UserError
	}
	who := strings.TrimSpace(args[0])

	list, code := resolveFlagList(ctx, cfg, svc, c.listName, errOut)
	if code != exitcode.Success {
		return code
	}

	userID, err := uuid.Parse(who)
	if err != nil {
		members, err := svc.ListMembers(ctx, list.ID)
		if err != nil {
			return reportError(errOut, err)
		}
		for _, m := range members {
			if strings.EqualFold(m.Email, who) {
				userID = m.ID
				break
			}
		}
		if userID == uuid.Nil {
			fmt.Fprintf(errOut, "error: not a member: %s\n", who)
			return exitcode.UserError
		}
	}

	if _, err := svc.RevokeAccess(ctx, list.ID, userID); err != nil {
		return reportError(errOut, err)
	}
	return printOK(cfg, out)
}
