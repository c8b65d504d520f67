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

// Version is the application version. Set at build time.
var Version = "0.1.0"

func init() {
	Register(&HelpCmd{})
	Register(&VersionCmd{})
}

// HelpCmd implements the help command. Usage lines come from the registry.
type HelpCmd struct {
	registry *Registry
}

// NewHelpCmd returns a help command that describes reg instead of DefaultRegistry.
func NewHelpCmd(reg *Registry) *HelpCmd {
	return &HelpCmd{registry: reg}
}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "todoctl help" }
func (c *HelpCmd) NeedsAuth() bool   { return false }
func (c *HelpCmd) Local() bool       { return true }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	reg := c.registry
	if reg == nil {
		reg = DefaultRegistry
	}

	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  todoctl")
	fmt.Fprintln(out, "      Same as: todoctl lists")
	for _, cmd := range reg.All() {
		fmt.Fprintf(out, "  %s\n", cmd.Usage())
		synopsis := cmd.Synopsis()
		for _, alias := range cmd.Aliases() {
			synopsis += ". Alias: todoctl " + alias
		}
		fmt.Fprintf(out, "      %s\n", synopsis)
	}
	fmt.Fprint(out, helpNotes)
	return exitcode.Success
}

const helpNotes = `
A <list> is a list title (case-insensitive) or id. A <ref> is a task number
as printed by "todoctl list", or a task id. Without --list, task commands use
default_list from config.yaml. Dates are YYYY-MM-DD, "today", "tomorrow" or
+Nd; new tasks are due in 7 days unless --due is given. Passwords may be
given in TODOCTL_PASSWORD.

Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr
`

// VersionCmd implements the version command.
type VersionCmd struct{}

func (c *VersionCmd) Name() string      { return "version" }
func (c *VersionCmd) Aliases() []string { return nil }
func (c *VersionCmd) Synopsis() string  { return "Print version" }
func (c *VersionCmd) Usage() string     { return "todoctl version" }
func (c *VersionCmd) NeedsAuth() bool   { return false }
func (c *VersionCmd) Local() bool       { return true }

func (c *VersionCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *VersionCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	fmt.Fprintf(out, "todoctl %s\n", Version)
	return exitcode.Success
}
