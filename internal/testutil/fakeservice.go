// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"todoctl/internal/service"
)

// FakePassword is accepted by FakeService.Login for any email.
const FakePassword = "secret"

// FakeService is an in-memory implementation of service.Service for testing.
// Mutations return the re-read collection, like the real client.
type FakeService struct {
	mu      sync.Mutex
	user    *service.User
	token   string
	lists   []*fakeServiceList // creation order
	signups []service.SignupInput

	// Error injection for testing
	LoginErr       error
	SignupErr      error
	ConfirmErr     error
	AccessTokenErr error
	ListListsErr   error
	ResolveListErr error
	CreateListErr  error
	UpdateListErr  error
	DeleteListErr  error
	ListTasksErr   error
	CreateTaskErr  error
	UpdateTaskErr  error
	DeleteTaskErr  error
	MembersErr     error
	GrantErr       error
	RevokeErr      error

	// Last inputs seen, for assertions
	LastTaskInput service.TaskInput
	LastTaskPatch service.TaskPatch
	LastListInput service.ListInput
	LastListPatch service.ListPatch
}

type fakeServiceList struct {
	list    service.List
	tasks   []service.Task
	members []service.Member
}

// NewFakeService creates an empty FakeService with no signed-in user.
func NewFakeService() *FakeService {
	return &FakeService{}
}

// NewLoggedInFakeService creates an empty FakeService signed in as Ada Lovelace.
func NewLoggedInFakeService() *FakeService {
	f := NewFakeService()
	f.SetUser(service.User{Name: "Ada Lovelace", Email: "ada@example.com"})
	return f
}

// SetUser signs the fake in as u.
func (f *FakeService) SetUser(u service.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = &u
	f.token = "token-" + u.Email
}

// AddList adds a list and returns its ID.
func (f *FakeService) AddList(title string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &fakeServiceList{list: service.List{
		ID:        uuid.New(),
		Title:     title,
		CreatedAt: time.Now(),
	}}
	if f.user != nil {
		l.members = []service.Member{{ID: uuid.New(), Name: f.user.Name, Email: f.user.Email}}
	}
	f.lists = append(f.lists, l)
	return l.list.ID
}

// AddTask adds a task to a list and returns its ID.
func (f *FakeService) AddTask(listID uuid.UUID, title string, due time.Time, done bool) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.findLocked(listID)
	if l == nil {
		panic(fmt.Sprintf("testutil: no list %s", listID))
	}
	id := uuid.New()
	l.tasks = append(l.tasks, service.Task{ID: id, Title: title, DueDate: due, Done: done, CreatedAt: time.Now()})
	return id
}

// AddMember grants a user access to a list and returns the member ID.
func (f *FakeService) AddMember(listID uuid.UUID, name, email string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.findLocked(listID)
	if l == nil {
		panic(fmt.Sprintf("testutil: no list %s", listID))
	}
	id := uuid.New()
	l.members = append(l.members, service.Member{ID: id, Name: name, Email: email})
	return id
}

// Tasks returns a copy of a list's tasks.
func (f *FakeService) Tasks(listID uuid.UUID) []service.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.findLocked(listID)
	if l == nil {
		return nil
	}
	return append([]service.Task(nil), l.tasks...)
}

// Signups returns the accepted signup requests.
func (f *FakeService) Signups() []service.SignupInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]service.SignupInput(nil), f.signups...)
}

func (f *FakeService) findLocked(id uuid.UUID) *fakeServiceList {
	for _, l := range f.lists {
		if l.list.ID == id {
			return l
		}
	}
	return nil
}

func (f *FakeService) requireUserLocked() error {
	if f.user == nil {
		return service.ErrUnauthenticated
	}
	return nil
}

func notFound() error {
	return &service.Error{Code: service.CodeNotFound, Status: 404, Message: "List not found"}
}

// render computes the aggregate the server would report.
func (l *fakeServiceList) render() service.List {
	out := l.list
	out.Aggregate = service.TaskAggregate{TotalTasks: len(l.tasks)}
	out.EarliestDueDate = nil
	for _, t := range l.tasks {
		if t.Done {
			out.Aggregate.CompletedTasks++
		}
		if out.EarliestDueDate == nil || t.DueDate.Before(*out.EarliestDueDate) {
			due := t.DueDate
			out.EarliestDueDate = &due
		}
	}
	return out
}

func (l *fakeServiceList) view() service.ListView {
	return service.ListView{List: l.render(), Tasks: append([]service.Task{}, l.tasks...)}
}

func (f *FakeService) listsLocked() []service.List {
	out := make([]service.List, 0, len(f.lists))
	for i := len(f.lists) - 1; i >= 0; i-- {
		out = append(out, f.lists[i].render())
	}
	return out
}

// Login implements service.Service.
func (f *FakeService) Login(ctx context.Context, email, password string) (service.User, error) {
	if f.LoginErr != nil {
		return service.User{}, f.LoginErr
	}
	if password != FakePassword {
		return service.User{}, &service.Error{Code: service.CodeUnauthenticated, Status: 401, Message: "Invalid credentials"}
	}
	u := service.User{Name: email, Email: email}
	f.SetUser(u)
	return u, nil
}

// Signup implements service.Service.
func (f *FakeService) Signup(ctx context.Context, in service.SignupInput) error {
	if f.SignupErr != nil {
		return f.SignupErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signups = append(f.signups, in)
	return nil
}

// Confirm implements service.Service.
func (f *FakeService) Confirm(ctx context.Context, token string) (service.User, error) {
	if f.ConfirmErr != nil {
		return service.User{}, f.ConfirmErr
	}
	f.mu.Lock()
	n := len(f.signups)
	var in service.SignupInput
	if n > 0 {
		in = f.signups[n-1]
	}
	f.mu.Unlock()
	if n == 0 {
		return service.User{}, &service.Error{Code: service.CodeValidation, Status: 400, Message: "Invalid confirmation token"}
	}
	u := service.User{Name: in.FirstName + " " + in.LastName, Email: in.Email}
	f.SetUser(u)
	return u, nil
}

// Logout implements service.Service.
func (f *FakeService) Logout(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = nil
	f.token = ""
}

// CurrentUser implements service.Service.
func (f *FakeService) CurrentUser() (service.User, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil {
		return service.User{}, false
	}
	return *f.user, true
}

// AccessToken implements service.Service.
func (f *FakeService) AccessToken(ctx context.Context) (string, error) {
	if f.AccessTokenErr != nil {
		return "", f.AccessTokenErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireUserLocked(); err != nil {
		return "", err
	}
	return f.token, nil
}

// ListLists implements service.Service.
func (f *FakeService) ListLists(ctx context.Context) ([]service.List, error) {
	if f.ListListsErr != nil {
		return nil, f.ListListsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireUserLocked(); err != nil {
		return nil, err
	}
	return f.listsLocked(), nil
}

// GetList implements service.Service.
func (f *FakeService) GetList(ctx context.Context, id uuid.UUID) (service.List, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireUserLocked(); err != nil {
		return service.List{}, err
	}
	l := f.findLocked(id)
	if l == nil {
		return service.List{}, notFound()
	}
	return l.render(), nil
}

// ResolveList implements service.Service.
func (f *FakeService) ResolveList(ctx context.Context, ref string) (service.List, error) {
	if f.ResolveListErr != nil {
		return service.List{}, f.ResolveListErr
	}
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return f.GetList(ctx, id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireUserLocked(); err != nil {
		return service.List{}, err
	}
	var matches []service.List
	for _, l := range f.listsLocked() {
		if strings.EqualFold(strings.TrimSpace(l.Title), ref) {
			matches = append(matches, l)
		}
	}
	switch len(matches) {
	case 0:
		return service.List{}, fmt.Errorf("%w: %q", service.ErrListNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return service.List{}, fmt.Errorf("%w: %q", service.ErrAmbiguousList, ref)
	}
}

// CreateList implements service.Service.
func (f *FakeService) CreateList(ctx context.Context, in service.ListInput) ([]service.List, error) {
	f.LastListInput = in
	if f.CreateListErr != nil {
		return nil, f.CreateListErr
	}
	f.mu.Lock()
	if err := f.requireUserLocked(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	id := f.AddList(in.Title)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findLocked(id).list.Description = in.Description
	return f.listsLocked(), nil
}

// UpdateList implements service.Service.
func (f *FakeService) UpdateList(ctx context.Context, id uuid.UUID, patch service.ListPatch) ([]service.List, error) {
	f.LastListPatch = patch
	if f.UpdateListErr != nil {
		return nil, f.UpdateListErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireUserLocked(); err != nil {
		return nil, err
	}
	l := f.findLocked(id)
	if l == nil {
		return nil, notFound()
	}
	if patch.Title != nil {
		l.list.Title = *patch.Title
	}
	if patch.Description != nil {
		l.list.Description = *patch.Description
	}
	return f.listsLocked(), nil
}

// DeleteList implements service.Service.
func (f *FakeService) DeleteList(ctx context.Context, id uuid.UUID) ([]service.List, error) {
	if f.DeleteListErr != nil {
		return nil, f.DeleteListErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireUserLocked(); err != nil {
		return nil, err
	}
	for i, l := range f.lists {
		if l.list.ID == id {
			f.lists = append(f.lists[:i], f.lists[i+1:]...)
			return f.listsLocked(), nil
		}
	}
	return nil, notFound()
}

// ListTasks implements service.Service.
func (f *FakeService) ListTasks(ctx context.Context, listID uuid.UUID) (service.ListView, error) {
	if f.ListTasksErr != nil {
		return service.ListView{}, f.ListTasksErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireUserLocked(); err != nil {
		return service.ListView{}, err
	}
	l := f.findLocked(listID)
	if l == nil {
		return service.ListView{}, notFound()
	}
	return l.view(), nil
}

// CreateTask implements service.Service.
func (f *FakeService) CreateTask(ctx context.Context, listID uuid.UUID, in service.TaskInput) (service.ListView, error) {
	f.LastTaskInput = in
	if f.CreateTaskErr != nil {
		return service.ListView{}, f.CreateTaskErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireUserLocked(); err != nil {
		return service.ListView{}, err
	}
	l := f.findLocked(listID)
	if l == nil {
		return service.ListView{}, notFound()
	}
	l.tasks = append(l.tasks, service.Task{
		ID:          uuid.New(),
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Done:        in.Done,
		CreatedAt:   time.Now(),
	})
	return l.view(), nil
}

// UpdateTask implements service.Service.
func (f *FakeService) UpdateTask(ctx context.Context, listID, taskID uuid.UUID, patch service.TaskPatch) (service.ListView, error) {
	f.LastTaskPatch = patch
	if f.UpdateTaskErr != nil {
		return service.ListView{}, f.UpdateTaskErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireUserLocked(); err != nil {
		return service.ListView{}, err
	}
	l := f.findLocked(listID)
	if l == nil {
		return service.ListView{}, notFound()
	}
	for i := range l.tasks {
		t := &l.tasks[i]
		if t.ID != taskID {
			continue
		}
		if patch.Title != nil {
			t.Title = *patch.Title
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if patch.DueDate != nil {
			t.DueDate = *patch.DueDate
		}
		if patch.Done != nil {
			t.Done = *patch.Done
		}
		return l.view(), nil
	}
	return service.ListView{}, &service.Error{Code: service.CodeNotFound, Status: 404, Message: "Task not found"}
}

// DeleteTask implements service.Service.
func (f *FakeService) DeleteTask(ctx context.Context, listID, taskID uuid.UUID) (service.ListView, error) {
	if f.DeleteTaskErr != nil {
		return service.ListView{}, f.DeleteTaskErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireUserLocked(); err != nil {
		return service.ListView{}, err
	}
	l := f.findLocked(listID)
	if l == nil {
		return service.ListView{}, notFound()
	}
	for i, t := range l.tasks {
		if t.ID == taskID {
			l.tasks = append(l.tasks[:i], l.tasks[i+1:]...)
			return l.view(), nil
		}
	}
	return service.ListView{}, &service.Error{Code: service.CodeNotFound, Status: 404, Message: "Task not found"}
}

// ListMembers implements service.Service.
func (f *FakeService) ListMembers(ctx context.Context, listID uuid.UUID) ([]service.Member, error) {
	if f.MembersErr != nil {
		return nil, f.MembersErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireUserLocked(); err != nil {
		return nil, err
	}
	l := f.findLocked(listID)
	if l == nil {
		return nil, notFound()
	}
	return append([]service.Member{}, l.members...), nil
}

// GrantAccess implements service.Service.
func (f *FakeService) GrantAccess(ctx context.Context, listID uuid.UUID, email string) ([]service.Member, error) {
	if f.GrantErr != nil {
		return nil, f.GrantErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireUserLocked(); err != nil {
		return nil, err
	}
	l := f.findLocked(listID)
	if l == nil {
		return nil, notFound()
	}
	for _, m := range l.members {
		if strings.EqualFold(m.Email, email) {
			return append([]service.Member{}, l.members...), nil
		}
	}
	l.members = append(l.members, service.Member{ID: uuid.New(), Name: email, Email: email})
	return append([]service.Member{}, l.members...), nil
}

// RevokeAccess implements service.Service.
func (f *FakeService) RevokeAccess(ctx context.Context, listID, userID uuid.UUID) ([]service.Member, error) {
	if f.RevokeErr != nil {
		return nil, f.RevokeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.requireUserLocked(); err != nil {
		return nil, err
	}
	l := f.findLocked(listID)
	if l == nil {
		return nil, notFound()
	}
	for i, m := range l.members {
		if m.ID == userID {
			l.members = append(l.members[:i], l.members[i+1:]...)
			return append([]service.Member{}, l.members...), nil
		}
	}
	return nil, &service.Error{Code: service.CodeNotFound, Status: 404, Message: "User has no access"}
}

var _ service.Service = (*FakeService)(nil)
