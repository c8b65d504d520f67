package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"todoctl/internal/service"
)

// TaskRef is a parsed task reference: a 1-based position in the list as
// displayed, or a task UUID.
type TaskRef struct {
	Num int       // 0 when ID is set
	ID  uuid.UUID // uuid.Nil when Num is set
}

// ErrTaskRefRequired indicates no task reference was provided.
var ErrTaskRefRequired = errors.New("task reference required")

// errTaskNotFound is returned by TaskRef.Find for references that match nothing.
var errTaskNotFound = errors.New("task not found")

// ParseTaskRef parses a task reference from args.
//
// Parsing rules:
// 1. No args → ErrTaskRefRequired
// 2. All digits → numeric reference (must be ≥ 1)
// 3. A UUID → ID reference
// 4. Anything else, or extra args → error: invalid task reference
func ParseTaskRef(args []string) (TaskRef, error) {
	if len(args) == 0 {
		return TaskRef{}, ErrTaskRefRequired
	}
	if len(args) > 1 {
		return TaskRef{}, fmt.Errorf("invalid task reference: %s", strings.Join(args, " "))
	}

	arg := strings.TrimSpace(args[0])
	if isAllDigits(arg) {
		num, err := strconv.Atoi(arg)
		if err != nil {
			return TaskRef{}, fmt.Errorf("invalid task reference: %s", arg)
		}
		if num < 1 {
			return TaskRef{}, fmt.Errorf("task number out of range: %d", num)
		}
		return TaskRef{Num: num}, nil
	}

	if id, err := uuid.Parse(arg); err == nil {
		return TaskRef{ID: id}, nil
	}

	return TaskRef{}, fmt.Errorf("invalid task reference: %s", arg)
}

// Find returns the referenced task in view.
func (r TaskRef) Find(view service.ListView) (service.Task, error) {
	if r.ID != uuid.Nil {
		for _, t := range view.Tasks {
			if t.ID == r.ID {
				return t, nil
			}
		}
		return service.Task{}, fmt.Errorf("%w: %s", errTaskNotFound, r.ID)
	}
	if r.Num > len(view.Tasks) {
		return service.Task{}, fmt.Errorf("%w: task number out of range: %d", errTaskNotFound, r.Num)
	}
	return view.Tasks[r.Num-1], nil
}

// isAllDigits returns true if s consists only of ASCII digits and is non-empty.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
