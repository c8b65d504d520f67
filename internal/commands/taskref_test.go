package commands

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"todoctl/internal/service"
)

func TestParseTaskRef_Numeric(t *testing.T) {
	ref, err := ParseTaskRef([]string{"5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.Num != 5 {
		t.Errorf("expected Num 5, got %d", ref.Num)
	}
	if ref.ID != uuid.Nil {
		t.Errorf("expected no ID, got %s", ref.ID)
	}
}

func TestParseTaskRef_UUID(t *testing.T) {
	id := uuid.MustParse("6a7c1f5e-7c7a-4df4-9d1c-3f3f0f2b9d10")
	ref, err := ParseTaskRef([]string{id.String()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.ID != id {
		t.Errorf("expected ID %s, got %s", id, ref.ID)
	}
	if ref.Num != 0 {
		t.Errorf("expected Num 0, got %d", ref.Num)
	}
}

func TestParseTaskRef_Errors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, "task reference required"},
		{[]string{"0"}, "task number out of range: 0"},
		{[]string{"a1"}, "invalid task reference: a1"},
		{[]string{"1", "2"}, "invalid task reference: 1 2"},
		{[]string{"-3"}, "invalid task reference: -3"},
		{[]string{"١"}, "invalid task reference: ١"},
	}
	for _, tt := range tests {
		_, err := ParseTaskRef(tt.args)
		if err == nil {
			t.Errorf("ParseTaskRef(%q): expected error", tt.args)
			continue
		}
		if err.Error() != tt.want {
			t.Errorf("ParseTaskRef(%q): expected %q, got %q", tt.args, tt.want, err.Error())
		}
	}

	if _, err := ParseTaskRef(nil); !errors.Is(err, ErrTaskRefRequired) {
		t.Errorf("expected ErrTaskRefRequired, got %v", err)
	}
}

func TestTaskRef_Find(t *testing.T) {
	a := service.Task{ID: uuid.New(), Title: "a"}
	b := service.Task{ID: uuid.New(), Title: "b"}
	view := service.ListView{Tasks: []service.Task{a, b}}

	got, err := TaskRef{Num: 2}.Find(view)
	if err != nil || got.ID != b.ID {
		t.Errorf("expected task b, got %v (err %v)", got, err)
	}

	got, err = TaskRef{ID: a.ID}.Find(view)
	if err != nil || got.ID != a.ID {
		t.Errorf("expected task a, got %v (err %v)", got, err)
	}

	_, err = TaskRef{Num: 3}.Find(view)
	if !errors.Is(err, errTaskNotFound) {
		t.Errorf("expected errTaskNotFound, got %v", err)
	}

	_, err = TaskRef{ID: uuid.New()}.Find(view)
	if !errors.Is(err, errTaskNotFound) {
		t.Errorf("expected errTaskNotFound, got %v", err)
	}
}
