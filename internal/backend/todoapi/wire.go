package todoapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"todoctl/internal/service"
)

// Server timestamps are ISO-8601, usually without a zone.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// apiTime accepts any of timeLayouts. Zoneless values are read as local time.
type apiTime struct {
	time.Time
}

func (t *apiTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := parseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

type wireList struct {
	UUID            uuid.UUID `json:"uuid"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	CreatedAt       apiTime   `json:"created_at"`
	EarliestDueDate *apiTime  `json:"earliest_due_date"`
	TotalTasks      int       `json:"total_tasks"`
	TasksCompleted  int       `json:"tasks_completed"`
}

func (w wireList) toList() service.List {
	l := service.List{
		ID:          w.UUID,
		Title:       w.Title,
		Description: w.Description,
		CreatedAt:   w.CreatedAt.Time,
		Aggregate: service.TaskAggregate{
			TotalTasks:     w.TotalTasks,
			CompletedTasks: w.TasksCompleted,
		},
	}
	if w.EarliestDueDate != nil && !w.EarliestDueDate.IsZero() {
		due := w.EarliestDueDate.Time
		l.EarliestDueDate = &due
	}
	return l
}

type wireTask struct {
	UUID        uuid.UUID `json:"uuid"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   apiTime   `json:"created_at"`
	DueDate     apiTime   `json:"due_date"`
	Done        bool      `json:"done"`
}

func (w wireTask) toTask() service.Task {
	return service.Task{
		ID:          w.UUID,
		Title:       w.Title,
		Description: w.Description,
		CreatedAt:   w.CreatedAt.Time,
		DueDate:     w.DueDate.Time,
		Done:        w.Done,
	}
}

type wireMember struct {
	UUID  uuid.UUID `json:"uuid"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// listBody is the create and update payload; the server requires both fields.
type listBody struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

// Collections decoded from JSON null come back as empty slices.

func toLists(in []wireList) []service.List {
	out := make([]service.List, len(in))
	for i, w := range in {
		out[i] = w.toList()
	}
	return out
}

func toTasks(in []wireTask) []service.Task {
	out := make([]service.Task, len(in))
	for i, w := range in {
		out[i] = w.toTask()
	}
	return out
}

func toMembers(in []wireMember) []service.Member {
	out := make([]service.Member, len(in))
	for i, w := range in {
		out[i] = service.Member{ID: w.UUID, Name: w.Name, Email: w.Email}
	}
	return out
}
