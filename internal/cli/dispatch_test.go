package cli_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"todoctl/internal/cli"
	"todoctl/internal/commands"
	"todoctl/internal/config"
	"todoctl/internal/exitcode"
	"todoctl/internal/observability"
	"todoctl/internal/service"
	"todoctl/internal/testutil"
)

// testFactory creates a service factory that returns the given FakeService.
func testFactory(svc *testutil.FakeService) cli.ServiceFactory {
	return func(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (service.Service, error) {
		return svc, nil
	}
}

func run(t *testing.T, factory cli.ServiceFactory, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	t.Setenv("TODOCTL_STORE", "")
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, factory)

	var out, errOut bytes.Buffer
	code = dispatcher.Run(context.Background(), args, &out, &errOut)
	return out.String(), errOut.String(), code
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	_, stderr, code := run(t, testFactory(testutil.NewFakeService()), "unknowncmd")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown command: unknowncmd\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_FlagBeforeCommand(t *testing.T) {
	_, stderr, code := run(t, testFactory(testutil.NewFakeService()), "--quiet")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown command: --quiet\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_HelpCommand(t *testing.T) {
	called := false
	factory := func(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (service.Service, error) {
		called = true
		return nil, errors.New("unreachable")
	}

	stdout, stderr, code := run(t, factory, "help")

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if !bytes.Contains([]byte(stdout), []byte("Usage:")) {
		t.Error("expected help output to contain 'Usage:'")
	}
	if called {
		t.Error("help must not build a service")
	}
}

func TestDispatcher_VersionCommand(t *testing.T) {
	stdout, stderr, code := run(t, testFactory(testutil.NewFakeService()), "version")

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if stdout != "todoctl 0.1.0\n" {
		t.Errorf("expected 'todoctl 0.1.0\\n', got %q", stdout)
	}
}

func TestDispatcher_UnknownFlag(t *testing.T) {
	_, stderr, code := run(t, testFactory(testutil.NewFakeService()), "help", "--unknown")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown flag: -unknown\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_FlagNeedsArgument(t *testing.T) {
	_, stderr, code := run(t, testFactory(testutil.NewFakeService()), "add", "--list")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: flag needs an argument: -list\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_NoArgsRunsLists(t *testing.T) {
	svc := testutil.NewLoggedInFakeService()
	svc.AddList("Groceries")

	stdout, stderr, code := run(t, testFactory(svc), "lists", "--config", t.TempDir())
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (stderr %q)", exitcode.Success, code, stderr)
	}

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	noArgs, _, code := run(t, testFactory(svc))
	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if noArgs != stdout {
		t.Errorf("expected %q, got %q", stdout, noArgs)
	}
}

func TestDispatcher_NotLoggedIn(t *testing.T) {
	_, stderr, code := run(t, testFactory(testutil.NewFakeService()), "lists", "--config", t.TempDir())

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	expected := "error: not logged in (run: todoctl login)\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_LoginDoesNotNeedAuth(t *testing.T) {
	svc := testutil.NewFakeService()
	_, stderr, code := run(t, testFactory(svc), "login", "--config", t.TempDir(), "--quiet",
		"--email", "ada@example.com", "--password", testutil.FakePassword)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d (stderr %q)", exitcode.Success, code, stderr)
	}
	if _, ok := svc.CurrentUser(); !ok {
		t.Error("expected login to sign in")
	}
}

func TestDispatcher_FactoryError(t *testing.T) {
	factory := func(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (service.Service, error) {
		return nil, errors.New("redis: connection refused")
	}

	_, stderr, code := run(t, factory, "lists", "--config", t.TempDir())

	if code != exitcode.BackendError {
		t.Errorf("expected exit code %d, got %d", exitcode.BackendError, code)
	}
	expected := "error: backend error: redis: connection refused\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_ConfigPassedToFactory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.ConfigFile), []byte("base_url: http://todo.test\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var got *config.Config
	factory := func(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (service.Service, error) {
		got = cfg
		return testutil.NewLoggedInFakeService(), nil
	}

	_, stderr, code := run(t, factory, "lists", "--config", dir, "--quiet", "--debug")
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (stderr %q)", exitcode.Success, code, stderr)
	}
	if got.BaseURL != "http://todo.test" || !got.Quiet || !got.Debug || got.Dir != dir {
		t.Errorf("unexpected config %+v", got)
	}
}

func TestDispatcher_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.ConfigFile), []byte("store: floppy\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, stderr, code := run(t, testFactory(testutil.NewLoggedInFakeService()), "lists", "--config", dir)
	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: invalid store: floppy (want file, redis or memory)\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_WritesMetricsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "todoctl.prom")
	t.Setenv("TODOCTL_METRICS_FILE", path)

	factory := func(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (service.Service, error) {
		metrics.RecordRequest("ListLists", "ok")
		return testutil.NewLoggedInFakeService(), nil
	}

	_, stderr, code := run(t, factory, "lists", "--config", dir, "--quiet")
	if code != exitcode.Success {
		t.Fatalf("expected exit code %d, got %d (stderr %q)", exitcode.Success, code, stderr)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !bytes.Contains(data, []byte(`todoctl_requests_total{code="ok",operation="ListLists"} 1`)) {
		t.Errorf("unexpected metrics file:\n%s", data)
	}
}

type closingService struct {
	*testutil.FakeService
	closed int
}

func (s *closingService) Close() error {
	s.closed++
	return nil
}

func TestDispatcher_ClosesService(t *testing.T) {
	tests := []struct {
		name     string
		svc      *testutil.FakeService
		wantCode int
	}{
		{"after the command", testutil.NewLoggedInFakeService(), exitcode.Success},
		{"when not logged in", testutil.NewFakeService(), exitcode.AuthError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &closingService{FakeService: tt.svc}
			factory := func(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (service.Service, error) {
				return svc, nil
			}

			_, _, code := run(t, factory, "lists", "--config", t.TempDir(), "--quiet")
			if code != tt.wantCode {
				t.Errorf("expected exit code %d, got %d", tt.wantCode, code)
			}
			if svc.closed != 1 {
				t.Errorf("expected service closed once, got %d", svc.closed)
			}
		})
	}
}
