package todoapi_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"todoctl/internal/backend/todoapi"
	"todoctl/internal/claims"
	"todoctl/internal/credstore"
	"todoctl/internal/observability"
	"todoctl/internal/service"
	"todoctl/internal/session"
	fake "todoctl/internal/testutil"
)

const (
	adaEmail    = "ada@example.com"
	adaPassword = "correct horse"
)

type env struct {
	server  *fake.FakeServer
	store   *credstore.MemoryStore
	client  *todoapi.Client
	metrics *observability.Metrics
	skew    atomic.Int64
}

// advance moves the session manager's clock forward by d.
func (e *env) advance(d time.Duration) {
	e.skew.Add(int64(d))
}

func newEnv(t *testing.T, breaker todoapi.BreakerSettings) *env {
	t.Helper()
	srv := fake.NewFakeServer(t)
	srv.AddUser(adaEmail, adaPassword, "Ada", "Lovelace")

	logger := zaptest.NewLogger(t)
	metrics := observability.NewMetrics()
	tr := todoapi.NewTransport(todoapi.Options{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Logger:     logger,
		Metrics:    metrics,
		Breaker:    breaker,
	})
	auth := todoapi.NewAuthClient(tr)
	e := &env{server: srv, store: credstore.NewMemoryStore(nil), metrics: metrics}
	mgr := session.NewManager(e.store, claims.NewJWTDecoder(), auth,
		session.WithLogger(logger),
		session.WithMetrics(metrics),
		session.WithClock(func() time.Time { return time.Now().Add(time.Duration(e.skew.Load())) }))
	e.client = todoapi.New(tr, auth, mgr)
	return e
}

func (e *env) login(t *testing.T) {
	t.Helper()
	_, err := e.client.Login(context.Background(), adaEmail, adaPassword)
	require.NoError(t, err)
}

func (e *env) createList(t *testing.T, title string) service.List {
	t.Helper()
	lists, err := e.client.CreateList(context.Background(), service.ListInput{Title: title})
	require.NoError(t, err)
	for _, l := range lists {
		if l.Title == title {
			return l
		}
	}
	t.Fatalf("list %q missing after create", title)
	return service.List{}
}

func requireCode(t *testing.T, err error, code service.Code) *service.Error {
	t.Helper()
	require.Error(t, err)
	var e *service.Error
	require.True(t, errors.As(err, &e), "expected *service.Error, got %T: %v", err, err)
	assert.Equal(t, code, e.Code)
	return e
}

func TestEndToEnd_CreateAndDeleteList(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, todoapi.BreakerSettings{})

	user, err := e.client.Login(ctx, adaEmail, adaPassword)
	require.NoError(t, err)
	assert.Equal(t, adaEmail, user.Email)
	assert.Equal(t, "Ada Lovelace", user.Name)

	token, err := e.client.AccessToken(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	lists, err := e.client.CreateList(ctx, service.ListInput{Title: "Groceries", Description: "Weekly"})
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "Groceries", lists[0].Title)
	assert.Equal(t, "Weekly", lists[0].Description)
	assert.Nil(t, lists[0].EarliestDueDate)

	lists, err = e.client.ListLists(ctx)
	require.NoError(t, err)
	require.Len(t, lists, 1)

	lists, err = e.client.DeleteList(ctx, lists[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, lists)
	assert.Empty(t, lists)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.RequestCounter("CreateList", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.RequestCounter("DeleteList", "ok")))
}

func TestListLists_EmptyIsNotAnError(t *testing.T) {
	e := newEnv(t, todoapi.BreakerSettings{})
	e.login(t)

	lists, err := e.client.ListLists(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, lists)
	assert.Empty(t, lists)
}

func TestAnonymousCallIssuesNoRequest(t *testing.T) {
	e := newEnv(t, todoapi.BreakerSettings{})

	_, err := e.client.ListLists(context.Background())
	requireCode(t, err, service.CodeUnauthenticated)
	assert.ErrorIs(t, err, service.ErrUnauthenticated)
	assert.Zero(t, e.server.DataRequests())

	_, ok := e.client.CurrentUser()
	assert.False(t, ok)
}

func TestTaskMutationsReturnServerState(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, todoapi.BreakerSettings{})
	e.login(t)
	list := e.createList(t, "Groceries")

	due := time.Now().Add(48 * time.Hour).Truncate(time.Second)
	view, err := e.client.CreateTask(ctx, list.ID, service.TaskInput{Title: "Milk", Description: "oat", DueDate: due})
	require.NoError(t, err)
	require.Len(t, view.Tasks, 1)
	task := view.Tasks[0]
	assert.Equal(t, "Milk", task.Title)
	assert.Equal(t, "oat", task.Description)
	assert.True(t, task.DueDate.Equal(due), "due date %v, want %v", task.DueDate, due)
	assert.False(t, task.Done)
	assert.Equal(t, service.TaskAggregate{TotalTasks: 1, CompletedTasks: 0}, view.List.Aggregate)
	require.NotNil(t, view.List.EarliestDueDate)
	assert.True(t, view.List.EarliestDueDate.Equal(due))

	done := true
	view, err = e.client.UpdateTask(ctx, list.ID, task.ID, service.TaskPatch{Done: &done})
	require.NoError(t, err)
	require.Len(t, view.Tasks, 1)
	assert.True(t, view.Tasks[0].Done)
	assert.Equal(t, "Milk", view.Tasks[0].Title)
	assert.Equal(t, 1, view.List.Aggregate.CompletedTasks)

	view, err = e.client.DeleteTask(ctx, list.ID, task.ID)
	require.NoError(t, err)
	assert.NotNil(t, view.Tasks)
	assert.Empty(t, view.Tasks)
	assert.Zero(t, view.List.Aggregate.TotalTasks)
}

func TestUpdateList_PartialKeepsOtherField(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, todoapi.BreakerSettings{})
	e.login(t)

	lists, err := e.client.CreateList(ctx, service.ListInput{Title: "Groceries", Description: "Weekly"})
	require.NoError(t, err)
	id := lists[0].ID

	desc := "Monthly"
	lists, err = e.client.UpdateList(ctx, id, service.ListPatch{Description: &desc})
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "Groceries", lists[0].Title)
	assert.Equal(t, "Monthly", lists[0].Description)

	_, err = e.client.UpdateList(ctx, id, service.ListPatch{})
	requireCode(t, err, service.CodeValidation)
}

func TestResolveList(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, todoapi.BreakerSettings{})
	e.login(t)
	groceries := e.createList(t, "Groceries")
	e.createList(t, "Work")
	e.createList(t, "work")

	got, err := e.client.ResolveList(ctx, "  GROCERIES ")
	require.NoError(t, err)
	assert.Equal(t, groceries.ID, got.ID)

	got, err = e.client.ResolveList(ctx, groceries.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Title)

	_, err = e.client.ResolveList(ctx, "Nope")
	assert.ErrorIs(t, err, service.ErrListNotFound)

	_, err = e.client.ResolveList(ctx, "Work")
	assert.ErrorIs(t, err, service.ErrAmbiguousList)
}

func TestAccessManagement(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, todoapi.BreakerSettings{})
	graceID := e.server.AddUser("grace@example.com", "hopper-pass", "Grace", "Hopper")
	e.login(t)
	list := e.createList(t, "Shared")

	members, err := e.client.ListMembers(ctx, list.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, adaEmail, members[0].Email)

	members, err = e.client.GrantAccess(ctx, list.ID, "grace@example.com")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = e.client.GrantAccess(ctx, list.ID, "nobody@example.com")
	requireCode(t, err, service.CodeNotFound)

	members, err = e.client.RevokeAccess(ctx, list.ID, graceID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "Ada Lovelace", members[0].Name)
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       any
		wantCode   service.Code
		wantMsg    string
		wantFields map[string]string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantCode: service.CodeUnauthenticated},
		{name: "forbidden", status: http.StatusForbidden, wantCode: service.CodeUnauthenticated},
		{name: "not found", status: http.StatusNotFound, body: map[string]string{"detail": "List not found"},
			wantCode: service.CodeNotFound, wantMsg: "List not found"},
		{name: "conflict", status: http.StatusConflict, body: map[string]string{"detail": "email already in use"},
			wantCode: service.CodeValidation, wantMsg: "email already in use"},
		{name: "field errors", status: http.StatusUnprocessableEntity,
			body: map[string]any{"detail": []map[string]any{
				{"loc": []string{"body", "title"}, "msg": "Field required", "type": "missing"},
			}},
			wantCode: service.CodeValidation, wantFields: map[string]string{"title": "Field required"}},
		{name: "server error", status: http.StatusInternalServerError, wantCode: service.CodeServer},
		{name: "non-json body", status: http.StatusBadGateway, body: "upstream down", wantCode: service.CodeServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, todoapi.BreakerSettings{})
			e.login(t)
			e.server.FailNext(tt.status, tt.body)

			_, err := e.client.ListLists(context.Background())
			se := requireCode(t, err, tt.wantCode)
			assert.Equal(t, tt.status, se.Status)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, se.Message)
			}
			if tt.wantFields != nil {
				assert.Equal(t, tt.wantFields, se.Fields)
			}

			// A failed data call leaves the session intact.
			_, ok := e.client.CurrentUser()
			assert.True(t, ok)
		})
	}
}

func TestClientSideValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, todoapi.BreakerSettings{})
	e.login(t)
	list := e.createList(t, "Groceries")
	before := e.server.DataRequests()

	_, err := e.client.CreateList(ctx, service.ListInput{Title: "   "})
	se := requireCode(t, err, service.CodeValidation)
	assert.ErrorIs(t, err, service.ErrValidation)
	assert.Equal(t, "is required", se.Fields["title"])

	_, err = e.client.CreateTask(ctx, list.ID, service.TaskInput{Title: "Milk"})
	se = requireCode(t, err, service.CodeValidation)
	assert.Equal(t, "is required", se.Fields["due_date"])

	_, err = e.client.UpdateTask(ctx, list.ID, list.ID, service.TaskPatch{})
	requireCode(t, err, service.CodeValidation)

	_, err = e.client.GrantAccess(ctx, list.ID, "not-an-email")
	se = requireCode(t, err, service.CodeValidation)
	assert.Contains(t, se.Fields, "email")

	assert.Equal(t, before, e.server.DataRequests())
}

func TestRenewalBeforeExpiry(t *testing.T) {
	tests := []struct {
		name   string
		rotate bool
	}{
		{"without rotation", false},
		{"with rotation", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t, todoapi.BreakerSettings{})
			e.server.SetRotateRefreshTokens(tt.rotate)
			e.server.SetAccessTTL(time.Minute)
			e.login(t)
			before, err := e.store.Load(ctx)
			require.NoError(t, err)
			e.server.SetAccessTTL(time.Hour)

			_, err = e.client.ListLists(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, e.server.RefreshCalls())

			after, err := e.store.Load(ctx)
			require.NoError(t, err)
			assert.NotEqual(t, before.AccessToken, after.AccessToken)
			if tt.rotate {
				assert.NotEqual(t, before.RefreshToken, after.RefreshToken)
			} else {
				assert.Equal(t, before.RefreshToken, after.RefreshToken)
			}

			// The renewed token is outside the window; no further refresh.
			_, err = e.client.ListLists(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, e.server.RefreshCalls())
		})
	}
}

func TestConcurrentCallsShareOneRefresh(t *testing.T) {
	const callers = 10

	e := newEnv(t, todoapi.BreakerSettings{})
	e.server.SetRotateRefreshTokens(true)
	e.server.SetAccessTTL(time.Minute)
	e.login(t)
	e.server.SetAccessTTL(time.Hour)
	e.server.SetRefreshDelay(50 * time.Millisecond)

	var wg sync.WaitGroup
	errs := make([]error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.client.ListLists(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, e.server.RefreshCalls())
}

func TestRefreshFailureEndsSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, todoapi.BreakerSettings{})
	e.server.SetAccessTTL(time.Minute)
	e.login(t)
	e.server.FailRefresh(http.StatusUnauthorized)
	before := e.server.DataRequests()

	_, err := e.client.ListLists(ctx)
	requireCode(t, err, service.CodeSessionExpired)
	assert.Equal(t, before, e.server.DataRequests())

	_, ok := e.client.CurrentUser()
	assert.False(t, ok)
	c, err := e.store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = e.client.ListLists(ctx)
	requireCode(t, err, service.CodeUnauthenticated)
}

func TestLogin_BadCredentials(t *testing.T) {
	e := newEnv(t, todoapi.BreakerSettings{})

	_, err := e.client.Login(context.Background(), adaEmail, "wrong")
	se := requireCode(t, err, service.CodeUnauthenticated)
	assert.Equal(t, "bad credentials", se.Message)

	_, ok := e.client.CurrentUser()
	assert.False(t, ok)
}

func TestSignupAndConfirm(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, todoapi.BreakerSettings{})

	err := e.client.Signup(ctx, service.SignupInput{
		Email:     "grace@example.com",
		Password:  "hopper-pass",
		FirstName: "Grace",
		LastName:  "Hopper",
	})
	require.NoError(t, err)

	err = e.client.Signup(ctx, service.SignupInput{Email: adaEmail, Password: "whatever1", FirstName: "A", LastName: "L"})
	requireCode(t, err, service.CodeValidation)

	err = e.client.Signup(ctx, service.SignupInput{Email: "x@example.com", Password: "short"})
	se := requireCode(t, err, service.CodeValidation)
	assert.Contains(t, se.Fields, "password")
	assert.Contains(t, se.Fields, "first_name")

	token := e.server.ConfirmationToken("grace@example.com")
	require.NotEmpty(t, token)

	user, err := e.client.Confirm(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", user.Name)

	current, ok := e.client.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "grace@example.com", current.Email)

	_, err = e.client.Confirm(ctx, "bogus")
	requireCode(t, err, service.CodeValidation)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, todoapi.BreakerSettings{})
	e.login(t)

	e.client.Logout(ctx)
	e.client.Logout(ctx)

	_, ok := e.client.CurrentUser()
	assert.False(t, ok)
	_, err := e.client.AccessToken(ctx)
	requireCode(t, err, service.CodeUnauthenticated)
	assert.NoError(t, e.client.Close())
}

func TestNetworkError(t *testing.T) {
	e := newEnv(t, todoapi.BreakerSettings{})
	e.login(t)
	e.server.Close()

	_, err := e.client.ListLists(context.Background())
	requireCode(t, err, service.CodeNetwork)
	assert.ErrorIs(t, err, service.ErrNetwork)
	assert.NotErrorIs(t, err, service.ErrServer)
}

func TestCircuitBreakerOpensOnServerErrors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, todoapi.BreakerSettings{
		Enabled:      true,
		MinRequests:  2,
		FailureRatio: 0.6,
		Timeout:      time.Minute,
	})
	e.login(t) // one success

	for i := 0; i < 2; i++ {
		e.server.FailNext(http.StatusServiceUnavailable, nil)
		_, err := e.client.ListLists(ctx)
		requireCode(t, err, service.CodeServer)
		assert.ErrorIs(t, err, service.ErrServer)
	}

	before := e.server.DataRequests()
	_, err := e.client.ListLists(ctx)
	se := requireCode(t, err, service.CodeNetwork)
	assert.Contains(t, se.Message, "circuit open")
	assert.Equal(t, before, e.server.DataRequests())
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, todoapi.BreakerSettings{
		Enabled:      true,
		MinRequests:  2,
		FailureRatio: 1.0,
		Timeout:      time.Minute,
	})
	e.login(t)

	for i := 0; i < 3; i++ {
		e.server.FailNext(http.StatusNotFound, nil)
		_, err := e.client.ListLists(ctx)
		requireCode(t, err, service.CodeNotFound)
		assert.ErrorIs(t, err, service.ErrNotFound)
	}

	_, err := e.client.ListLists(ctx)
	require.NoError(t, err)
}

func TestOpenBreakerDoesNotEndSession(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, todoapi.BreakerSettings{
		Enabled:      true,
		MinRequests:  2,
		FailureRatio: 0.6,
		Timeout:      time.Minute,
	})
	e.server.SetAccessTTL(15 * time.Minute)
	e.login(t)
	e.server.SetAccessTTL(time.Hour)

	for i := 0; i < 5; i++ {
		e.server.FailNext(http.StatusServiceUnavailable, nil)
		_, _ = e.client.ListLists(ctx)
	}
	_, err := e.client.ListLists(ctx)
	se := requireCode(t, err, service.CodeNetwork)
	require.Contains(t, se.Message, "circuit open")

	before, err := e.store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, before)

	e.advance(12 * time.Minute)
	_, err = e.client.ListLists(ctx)
	requireCode(t, err, service.CodeNetwork)
	assert.Equal(t, 1, e.server.RefreshCalls())

	_, ok := e.client.CurrentUser()
	assert.True(t, ok)
	after, err := e.store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, after)
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
}
