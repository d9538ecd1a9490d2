package flow

import (
	"errors"
	"testing"
)

type testStep struct {
	id   string
	kind string
}

func stepID(s testStep) string { return s.id }

func TestNewRejectsDuplicateIDs(t *testing.T) {
	_, err := New([]testStep{{id: "a"}, {id: "a"}}, stepID)
	if !errors.Is(err, ErrDuplicateStep) {
		t.Fatalf("expected ErrDuplicateStep, got %v", err)
	}
}

func TestWalk(t *testing.T) {
	q, err := New([]testStep{
		{"s", "start"}, {"a", "action"}, {"c", "branch"}, {"b", "action"}, {"e", "end"},
	}, stepID)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	tests := []struct {
		name    string
		visit   func(i int, s testStep) Verdict
		want    int
		visited []string
		wantErr error
	}{
		{
			name:    "falls off the end",
			visit:   func(int, testStep) Verdict { return Next() },
			want:    5,
			visited: []string{"s", "a", "c", "b", "e"},
		},
		{
			name: "halts at first action",
			visit: func(_ int, s testStep) Verdict {
				if s.kind == "action" {
					return Halt()
				}
				return Next()
			},
			want:    1,
			visited: []string{"s", "a"},
		},
		{
			name: "branch skips forward",
			visit: func(_ int, s testStep) Verdict {
				if s.kind == "branch" {
					return Goto("e")
				}
				return Next()
			},
			want:    5,
			visited: []string{"s", "a", "c", "e"},
		},
		{
			name: "unknown target",
			visit: func(_ int, s testStep) Verdict {
				if s.kind == "branch" {
					return Goto("missing")
				}
				return Next()
			},
			want:    2,
			visited: []string{"s", "a", "c"},
			wantErr: ErrUnknownTarget,
		},
		{
			name: "backward branch is a cycle",
			visit: func(_ int, s testStep) Verdict {
				if s.kind == "branch" {
					return Goto("a")
				}
				return Next()
			},
			want:    1,
			visited: []string{"s", "a", "c"},
			wantErr: ErrCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var visited []string
			got, err := q.Walk(0, func(i int, s testStep) Verdict {
				visited = append(visited, s.id)
				return tt.visit(i, s)
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("halted at %d, want %d", got, tt.want)
			}
			if len(visited) != len(tt.visited) {
				t.Fatalf("visited %v, want %v", visited, tt.visited)
			}
			for i := range visited {
				if visited[i] != tt.visited[i] {
					t.Fatalf("visited %v, want %v", visited, tt.visited)
				}
			}
		})
	}
}

func TestCursor(t *testing.T) {
	c := NewCursor(1, 7)
	if c.Pos != 1 || c.Done() {
		t.Fatalf("unexpected start %+v", c)
	}
	if c.Back() {
		t.Error("Back() at first position should fail")
	}

	c.Forward()
	c.ForwardSub()
	if c.Pos != 2 || c.Sub != 1 {
		t.Fatalf("got pos=%d sub=%d", c.Pos, c.Sub)
	}
	c.Back()
	if c.Pos != 1 || c.Sub != 0 {
		t.Fatalf("Back() should reset sub, got pos=%d sub=%d", c.Pos, c.Sub)
	}

	if c.Jump(8) || c.Jump(0) {
		t.Error("Jump() outside bounds should fail")
	}
	if !c.Jump(7) {
		t.Fatal("Jump(7) failed")
	}
	c.Forward()
	if !c.Done() {
		t.Error("cursor should be done past last")
	}
	c.Forward()
	if c.Pos != 8 {
		t.Errorf("Forward() past done moved to %d", c.Pos)
	}

	r := Restore(1, 7, 6, 1)
	if r.Pos != 6 || r.Sub != 1 {
		t.Errorf("Restore() = %+v", r)
	}
	if r := Restore(1, 7, 42, 0); r.Pos != 1 {
		t.Errorf("Restore() out of range should reset, got %d", r.Pos)
	}
}
