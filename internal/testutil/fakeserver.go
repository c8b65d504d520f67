package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// isoLayout is the zoneless timestamp format the API emits.
const isoLayout = "2006-01-02T15:04:05.000000"

var fakeSecret = []byte("fake-server-secret")

// FakeServer is an in-memory implementation of the todo REST API on an
// httptest server. It signs HS256 tokens, counts refresh calls and can be
// told to fail.
type FakeServer struct {
	*httptest.Server

	mu              sync.Mutex
	users           map[string]*fakeUser // by lower-case email
	lists           []*fakeList          // creation order
	pending         map[string]*fakeUser // confirmation token -> user
	refreshTokens   map[string]string    // valid refresh token -> email
	accessTTL       time.Duration
	rotate          bool
	refreshFailure  int
	refreshDelay    time.Duration
	nextFailure     int
	nextFailureBody any

	refreshCalls atomic.Int32
	dataRequests atomic.Int32
}

type fakeUser struct {
	ID        uuid.UUID
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type fakeList struct {
	ID          uuid.UUID
	Title       string
	Description string
	CreatedAt   time.Time
	Tasks       []*fakeTask
	Members     []uuid.UUID
}

type fakeTask struct {
	ID          uuid.UUID
	Title       string
	Description string
	CreatedAt   time.Time
	DueDate     time.Time
	Done        bool
}

// NewFakeServer starts a server that is closed when the test ends.
func NewFakeServer(t testing.TB) *FakeServer {
	s := &FakeServer{
		users:         make(map[string]*fakeUser),
		pending:       make(map[string]*fakeUser),
		refreshTokens: make(map[string]string),
		accessTTL:     15 * time.Minute,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *FakeServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/user", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/create", s.handleSignup)
		r.Get("/confirm/{token}", s.handleConfirm)
		r.Post("/refresh", s.handleRefresh)
	})
	r.Route("/api/list", func(r chi.Router) {
		r.Use(s.countRequests, s.injectFailure, s.authenticate)
		r.Get("/", s.handleGetLists)
		r.Post("/create", s.handleCreateList)
		r.Route("/{listID}", func(r chi.Router) {
			r.Get("/", s.handleGetList)
			r.Put("/", s.handleUpdateList)
			r.Delete("/", s.handleDeleteList)
			r.Get("/access", s.handleGetAccess)
			r.Put("/access/{email}", s.handleGrantAccess)
			r.Delete("/access/{userID}", s.handleRevokeAccess)
			r.Get("/task/", s.handleGetTasks)
			r.Post("/task/", s.handleCreateTask)
			r.Put("/task/{taskID}", s.handleUpdateTask)
			r.Delete("/task/{taskID}", s.handleDeleteTask)
		})
	})
	return r
}

// AddUser registers a confirmed account.
func (s *FakeServer) AddUser(email, password, firstName, lastName string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &fakeUser{ID: uuid.New(), Email: email, Password: password, FirstName: firstName, LastName: lastName}
	s.users[strings.ToLower(email)] = u
	return u.ID
}

// IssueTokens mints a valid token pair for a registered user, as a login would.
func (s *FakeServer) IssueTokens(email string) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[strings.ToLower(email)]
	if u == nil {
		return "", ""
	}
	return s.issueLocked(u)
}

// MintAccessToken signs an access token for a registered user with the given expiry.
func (s *FakeServer) MintAccessToken(email string, exp time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[strings.ToLower(email)]
	if u == nil {
		return ""
	}
	return mint(u, "access", exp)
}

// SetAccessTTL sets the lifetime of newly issued access tokens.
func (s *FakeServer) SetAccessTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = d
}

// SetRotateRefreshTokens makes refresh return a new refresh token and
// invalidate the one presented.
func (s *FakeServer) SetRotateRefreshTokens(rotate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotate = rotate
}

// FailRefresh makes refresh calls answer with status. Zero restores normal behavior.
func (s *FakeServer) FailRefresh(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFailure = status
}

// SetRefreshDelay delays refresh responses.
func (s *FakeServer) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// FailNext makes the next list/task request answer with status and body.
// body is encoded as JSON; nil sends {"detail": "<status text>"}.
func (s *FakeServer) FailNext(status int, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextFailure = status
	s.nextFailureBody = body
}

// ConfirmationToken returns the token mailed to email on signup.
func (s *FakeServer) ConfirmationToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, u := range s.pending {
		if strings.EqualFold(u.Email, email) {
			return tok
		}
	}
	return ""
}

// RefreshCalls returns how many refresh requests were received.
func (s *FakeServer) RefreshCalls() int {
	return int(s.refreshCalls.Load())
}

// DataRequests returns how many list/task/access requests were received.
func (s *FakeServer) DataRequests() int {
	return int(s.dataRequests.Load())
}

func mint(u *fakeUser, tokenType string, exp time.Time) string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uuid":       u.ID.String(),
		"email":      u.Email,
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"token_type": tokenType,
		"exp":        exp.Unix(),
		"jti":        uuid.NewString(),
	}).SignedString(fakeSecret)
	if err != nil {
		panic(err)
	}
	return tok
}

func (s *FakeServer) issueLocked(u *fakeUser) (access, refresh string) {
	now := time.Now()
	access = mint(u, "access", now.Add(s.accessTTL))
	refresh = mint(u, "refresh", now.Add(24*time.Hour))
	s.refreshTokens[refresh] = strings.ToLower(u.Email)
	return access, refresh
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *FakeServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[strings.ToLower(body.Email)]
	if u == nil || u.Password != body.Password {
		writeDetail(w, http.StatusUnauthorized, "bad credentials")
		return
	}
	access, refresh := s.issueLocked(u)
	writeJSON(w, http.StatusOK, map[string]string{"access_token": access, "refresh_token": refresh})
}

func (s *FakeServer) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users[strings.ToLower(body.Email)] != nil {
		writeDetail(w, http.StatusConflict, "email already in use")
		return
	}
	s.pending[uuid.NewString()] = &fakeUser{
		ID:        uuid.New(),
		Email:     body.Email,
		Password:  body.Password,
		FirstName: body.FirstName,
		LastName:  body.LastName,
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Confirmation email sent"})
}

func (s *FakeServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := chi.URLParam(r, "token")
	u := s.pending[token]
	if u == nil {
		writeDetail(w, http.StatusBadRequest, "Invalid token")
		return
	}
	delete(s.pending, token)
	s.users[strings.ToLower(u.Email)] = u
	access, refresh := s.issueLocked(u)
	writeJSON(w, http.StatusOK, map[string]string{"access_token": access, "refresh_token": refresh})
}

func (s *FakeServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	delay, failure := s.refreshDelay, s.refreshFailure
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if failure != 0 {
		writeDetail(w, failure, http.StatusText(failure))
		return
	}

	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.refreshTokens[body.RefreshToken]
	u := s.users[email]
	if !ok || u == nil {
		writeDetail(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	access := mint(u, "access", time.Now().Add(s.accessTTL))
	resp := map[string]string{"access_token": access}
	if s.rotate {
		delete(s.refreshTokens, body.RefreshToken)
		refresh := mint(u, "refresh", time.Now().Add(24*time.Hour))
		s.refreshTokens[refresh] = email
		resp["refresh_token"] = refresh
	}
	writeJSON(w, http.StatusOK, resp)
}

type ctxKey struct{}

func (s *FakeServer) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.dataRequests.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *FakeServer) injectFailure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status, body := s.nextFailure, s.nextFailureBody
		s.nextFailure, s.nextFailureBody = 0, nil
		s.mu.Unlock()

		if status == 0 {
			next.ServeHTTP(w, r)
			return
		}
		if body == nil {
			body = map[string]string{"detail": http.StatusText(status)}
		}
		writeJSON(w, status, body)
	})
}

func (s *FakeServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return fakeSecret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || claims["token_type"] != "access" {
			writeDetail(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		email, _ := claims["email"].(string)
		s.mu.Lock()
		u := s.users[strings.ToLower(email)]
		s.mu.Unlock()
		if u == nil {
			writeDetail(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r, u)))
	})
}

func withUser(r *http.Request, u *fakeUser) context.Context {
	return context.WithValue(r.Context(), ctxKey{}, u)
}

func currentUser(r *http.Request) *fakeUser {
	if u, ok := r.Context().Value(ctxKey{}).(*fakeUser); ok {
		return u
	}
	return nil
}

// findListLocked returns the list if the caller is a member of it.
func (s *FakeServer) findListLocked(r *http.Request) *fakeList {
	id, err := uuid.Parse(chi.URLParam(r, "listID"))
	if err != nil {
		return nil
	}
	u := currentUser(r)
	for _, l := range s.lists {
		if l.ID == id && l.hasMember(u.ID) {
			return l
		}
	}
	return nil
}

func (l *fakeList) hasMember(id uuid.UUID) bool {
	for _, m := range l.Members {
		if m == id {
			return true
		}
	}
	return false
}

func (l *fakeList) render() map[string]any {
	done := 0
	var earliest *time.Time
	for _, t := range l.Tasks {
		if t.Done {
			done++
		}
		if earliest == nil || t.DueDate.Before(*earliest) {
			due := t.DueDate
			earliest = &due
		}
	}
	out := map[string]any{
		"uuid":              l.ID.String(),
		"created_at":        l.CreatedAt.Format(isoLayout),
		"title":             l.Title,
		"description":       l.Description,
		"total_tasks":       len(l.Tasks),
		"tasks_completed":   done,
		"earliest_due_date": nil,
	}
	if earliest != nil {
		out["earliest_due_date"] = earliest.Format(isoLayout)
	}
	return out
}

func (t *fakeTask) render(listID uuid.UUID) map[string]any {
	return map[string]any{
		"uuid":        t.ID.String(),
		"list_uuid":   listID.String(),
		"created_at":  t.CreatedAt.Format(isoLayout),
		"title":       t.Title,
		"description": t.Description,
		"due_date":    t.DueDate.Format(isoLayout),
		"done":        t.Done,
	}
}

func (s *FakeServer) handleGetLists(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := currentUser(r)
	out := []map[string]any{}
	for i := len(s.lists) - 1; i >= 0; i-- {
		if s.lists[i].hasMember(u.ID) {
			out = append(out, s.lists[i].render())
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *FakeServer) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == nil || body.Description == nil {
		writeMissingField(w, body.Title == nil, body.Description == nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l := &fakeList{
		ID:          uuid.New(),
		Title:       *body.Title,
		Description: *body.Description,
		CreatedAt:   time.Now().Truncate(time.Microsecond),
		Members:     []uuid.UUID{currentUser(r).ID},
	}
	s.lists = append(s.lists, l)
	writeJSON(w, http.StatusOK, l.render())
}

func writeMissingField(w http.ResponseWriter, title, description bool) {
	var items []map[string]any
	if title {
		items = append(items, map[string]any{"loc": []string{"body", "title"}, "msg": "Field required", "type": "missing"})
	}
	if description {
		items = append(items, map[string]any{"loc": []string{"body", "description"}, "msg": "Field required", "type": "missing"})
	}
	if len(items) == 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": items})
}

func (s *FakeServer) handleGetList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.findListLocked(r)
	if l == nil {
		writeDetail(w, http.StatusNotFound, "List not found")
		return
	}
	writeJSON(w, http.StatusOK, l.render())
}

func (s *FakeServer) handleUpdateList(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == nil || body.Description == nil {
		writeMissingField(w, body.Title == nil, body.Description == nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.findListLocked(r)
	if l == nil {
		writeDetail(w, http.StatusNotFound, "List not found")
		return
	}
	l.Title, l.Description = *body.Title, *body.Description
	writeJSON(w, http.StatusOK, l.render())
}

func (s *FakeServer) handleDeleteList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.findListLocked(r)
	if l == nil {
		writeDetail(w, http.StatusNotFound, "List not found or access denied")
		return
	}
	for i, x := range s.lists {
		if x == l {
			s.lists = append(s.lists[:i], s.lists[i+1:]...)
			break
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *FakeServer) handleGetAccess(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.findListLocked(r)
	if l == nil {
		writeDetail(w, http.StatusNotFound, "List not found")
		return
	}
	out := []map[string]string{}
	for _, id := range l.Members {
		for _, u := range s.users {
			if u.ID == id {
				out = append(out, map[string]string{
					"uuid":  u.ID.String(),
					"name":  u.FirstName + " " + u.LastName,
					"email": u.Email,
				})
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *FakeServer) handleGrantAccess(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	other := s.users[strings.ToLower(chi.URLParam(r, "email"))]
	if other == nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	l := s.findListLocked(r)
	if l == nil {
		writeDetail(w, http.StatusNotFound, "List not found")
		return
	}
	if l.hasMember(other.ID) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "User already has access"})
		return
	}
	l.Members = append(l.Members, other.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "Access granted"})
}

func (s *FakeServer) handleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.findListLocked(r)
	if l == nil {
		writeDetail(w, http.StatusNotFound, "List not found")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil || !l.hasMember(id) {
		writeDetail(w, http.StatusNotFound, "User does not have access")
		return
	}
	for i, m := range l.Members {
		if m == id {
			l.Members = append(l.Members[:i], l.Members[i+1:]...)
			break
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *FakeServer) handleGetTasks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.findListLocked(r)
	if l == nil {
		writeDetail(w, http.StatusNotFound, "List not found")
		return
	}
	tasks := append([]*fakeTask(nil), l.Tasks...)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].DueDate.After(tasks[j].DueDate) })
	out := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.render(l.ID))
	}
	writeJSON(w, http.StatusOK, out)
}

type taskBody struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	Done        *bool      `json:"done"`
}

func (s *FakeServer) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var body taskBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Title == nil || body.Description == nil || body.DueDate == nil {
		writeMissingField(w, body.Title == nil, body.Description == nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.findListLocked(r)
	if l == nil {
		writeDetail(w, http.StatusNotFound, "List not found")
		return
	}
	t := &fakeTask{
		ID:          uuid.New(),
		Title:       *body.Title,
		Description: *body.Description,
		CreatedAt:   time.Now().Truncate(time.Microsecond),
		DueDate:     body.DueDate.Local().Truncate(time.Microsecond),
	}
	if body.Done != nil {
		t.Done = *body.Done
	}
	l.Tasks = append(l.Tasks, t)
	writeJSON(w, http.StatusOK, t.render(l.ID))
}

func (s *FakeServer) findTaskLocked(r *http.Request, l *fakeList) (int, *fakeTask) {
	id, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		return -1, nil
	}
	for i, t := range l.Tasks {
		if t.ID == id {
			return i, t
		}
	}
	return -1, nil
}

func (s *FakeServer) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var body taskBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.findListLocked(r)
	if l == nil {
		writeDetail(w, http.StatusNotFound, "List not found")
		return
	}
	_, t := s.findTaskLocked(r, l)
	if t == nil {
		writeDetail(w, http.StatusNotFound, "Task not found")
		return
	}
	if body.Title != nil {
		t.Title = *body.Title
	}
	if body.Description != nil {
		t.Description = *body.Description
	}
	if body.DueDate != nil {
		t.DueDate = body.DueDate.Local().Truncate(time.Microsecond)
	}
	if body.Done != nil {
		t.Done = *body.Done
	}
	writeJSON(w, http.StatusOK, t.render(l.ID))
}

func (s *FakeServer) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.findListLocked(r)
	if l == nil {
		writeDetail(w, http.StatusNotFound, "List not found")
		return
	}
	i, t := s.findTaskLocked(r, l)
	if t == nil {
		writeDetail(w, http.StatusNotFound, "Task not found")
		return
	}
	l.Tasks = append(l.Tasks[:i], l.Tasks[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}
