package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"todoctl/internal/config"
	"todoctl/internal/exitcode"
	"todoctl/internal/output"
	"todoctl/internal/service"
)

// PasswordEnv is read when --password is not given.
const PasswordEnv = "TODOCTL_PASSWORD"

func init() {
	Register(&LoginCmd{})
	Register(&SignupCmd{})
	Register(&ConfirmCmd{})
	Register(&LogoutCmd{})
	Register(&WhoamiCmd{})
	Register(&TokenCmd{})
}

func password(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(PasswordEnv)
}

func printLoggedIn(cfg *config.Config, out io.Writer, u service.User) int {
	if !cfg.Quiet {
		fmt.Fprint(out, "logged in as ")
		output.FormatUser(out, u)
	}
	return exitcode.Success
}

// LoginCmd implements the login command.
type LoginCmd struct {
	email    string
	password string
}

func (c *LoginCmd) Name() string      { return "login" }
func (c *LoginCmd) Aliases() []string { return nil }
func (c *LoginCmd) Synopsis() string  { return "Sign in and store credentials" }
func (c *LoginCmd) Usage() string {
	return "todoctl login [common flags] --email <email> [--password <password>]"
}
func (c *LoginCmd) NeedsAuth() bool { return false }

func (c *LoginCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.email, "email", "", "")
	fs.StringVar(&c.password, "password", "", "")
}

func (c *LoginCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	email := strings.TrimSpace(c.email)
	if email == "" {
		fmt.Fprintln(errOut, "error: email required (use --email)")
		return exitcode.UserError
	}
	pw := password(c.password)
	if pw == "" {
		fmt.Fprintf(errOut, "error: password required (use --password or %s)\n", PasswordEnv)
		return exitcode.UserError
	}

	u, err := svc.Login(ctx, email, pw)
	if err != nil {
		return reportError(errOut, err)
	}
	return printLoggedIn(cfg, out, u)
}

// SignupCmd implements the signup command.
type SignupCmd struct {
	in service.SignupInput
}

func (c *SignupCmd) Name() string      { return "signup" }
func (c *SignupCmd) Aliases() []string { return nil }
func (c *SignupCmd) Synopsis() string  { return "Create an account" }
func (c *SignupCmd) Usage() string {
	return "todoctl signup [common flags] --email <email> [--password <password>] --first-name <name> --last-name <name>"
}
func (c *SignupCmd) NeedsAuth() bool { return false }

func (c *SignupCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.in.Email, "email", "", "")
	fs.StringVar(&c.in.Password, "password", "", "")
	fs.StringVar(&c.in.FirstName, "first-name", "", "")
	fs.StringVar(&c.in.LastName, "last-name", "", "")
}

func (c *SignupCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	in := c.in
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Password = password(in.Password)

	if err := svc.Signup(ctx, in); err != nil {
		return reportError(errOut, err)
	}
	if !cfg.Quiet {
		fmt.Fprintf(out, "confirmation email sent to %s (run: todoctl confirm <token>)\n", in.Email)
	}
	return exitcode.Success
}

// ConfirmCmd implements the confirm command.
type ConfirmCmd struct{}

func (c *ConfirmCmd) Name() string      { return "confirm" }
func (c *ConfirmCmd) Aliases() []string { return nil }
func (c *ConfirmCmd) Synopsis() string  { return "Confirm a new account and sign in" }
func (c *ConfirmCmd) Usage() string     { return "todoctl confirm [common flags] <token>" }
func (c *ConfirmCmd) NeedsAuth() bool   { return false }

func (c *ConfirmCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ConfirmCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		fmt.Fprintln(errOut, "error: confirmation token required")
		return exitcode.UserError
	}

	u, err := svc.Confirm(ctx, strings.TrimSpace(args[0]))
	if err != nil {
		return reportError(errOut, err)
	}
	return printLoggedIn(cfg, out, u)
}

// LogoutCmd implements the logout command.
type LogoutCmd struct{}

func (c *LogoutCmd) Name() string      { return "logout" }
func (c *LogoutCmd) Aliases() []string { return nil }
func (c *LogoutCmd) Synopsis() string  { return "Remove stored credentials" }
func (c *LogoutCmd) Usage() string     { return "todoctl logout [common flags]" }
func (c *LogoutCmd) NeedsAuth() bool   { return false }

func (c *LogoutCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *LogoutCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	_, loggedIn := svc.CurrentUser()

	// Always clear, so a half-written store is removed too
	svc.Logout(ctx)

	if !loggedIn {
		if !cfg.Quiet {
			fmt.Fprintln(out, "not logged in")
		}
		return exitcode.Success
	}
	return printOK(cfg, out)
}

// WhoamiCmd implements the whoami command.
type WhoamiCmd struct{}

func (c *WhoamiCmd) Name() string      { return "whoami" }
func (c *WhoamiCmd) Aliases() []string { return nil }
func (c *WhoamiCmd) Synopsis() string  { return "Print the signed-in user" }
func (c *WhoamiCmd) Usage() string     { return "todoctl whoami [common flags]" }
func (c *WhoamiCmd) NeedsAuth() bool   { return true }

func (c *WhoamiCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *WhoamiCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	u, ok := svc.CurrentUser()
	if !ok {
		fmt.Fprintln(errOut, "error: not logged in (run: todoctl login)")
		return exitcode.AuthError
	}
	output.FormatUser(out, u)
	return exitcode.Success
}

// TokenCmd implements the token command: prints a valid access token, renewing it if due.
type TokenCmd struct{}

func (c *TokenCmd) Name() string      { return "token" }
func (c *TokenCmd) Aliases() []string { return nil }
func (c *TokenCmd) Synopsis() string  { return "Print a valid access token" }
func (c *TokenCmd) Usage() string     { return "todoctl token [common flags]" }
func (c *TokenCmd) NeedsAuth() bool   { return true }

func (c *TokenCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *TokenCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	token, err := svc.AccessToken(ctx)
	if err != nil {
		return reportError(errOut, err)
	}
	fmt.Fprintln(out, token)
	return exitcode.Success
}
