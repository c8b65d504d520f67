// Package service defines the backend-agnostic interface for list and task operations.
package service

import (
	"time"

	"github.com/google/uuid"
)

// TaskAggregate summarizes task completion for a list.
type TaskAggregate struct {
	TotalTasks     int
	CompletedTasks int
}

// OpenTasks returns the number of tasks not yet done.
func (a TaskAggregate) OpenTasks() int {
	return a.TotalTasks - a.CompletedTasks
}

// List represents a task list as last reported by the server.
type List struct {
	ID              uuid.UUID
	Title           string
	Description     string
	CreatedAt       time.Time
	EarliestDueDate *time.Time // nil when the list has no tasks
	Aggregate       TaskAggregate
}

// Task represents a single task. The owning list is implicit in the ListView holding it.
type Task struct {
	ID          uuid.UUID
	Title       string
	Description string
	CreatedAt   time.Time
	DueDate     time.Time
	Done        bool
}

// ListView is the projection returned by task operations: a list and its tasks in server order.
type ListView struct {
	List  List
	Tasks []Task
}

// Member is a user with access to a list.
type Member struct {
	ID    uuid.UUID
	Name  string
	Email string
}

// User identifies the signed-in user.
type User struct {
	Name  string
	Email string
}

// ListInput holds the fields for creating a list.
type ListInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// ListPatch holds optional list fields; nil fields are left unchanged.
type ListPatch struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// TaskInput holds the fields for creating a task.
type TaskInput struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=2000"`
	DueDate     time.Time `json:"due_date" validate:"required"`
	Done        bool      `json:"done"`
}

// TaskPatch holds optional task fields; nil fields are left unchanged.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Done        *bool      `json:"done,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.DueDate == nil && p.Done == nil
}

// SignupInput holds the fields for account creation.
type SignupInput struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}
