package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func noopTool(name string) *Tool {
	return &Tool{
		Name:        name,
		Description: "test tool " + name,
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(context.Context, map[string]any) (string, error) {
			return "ok", nil
		},
	}
}

func TestListToolsSorted(t *testing.T) {
	reg := NewRegistry(0)
	for _, name := range []string{"zebra", "alpha", "middle"} {
		reg.Register(noopTool(name))
	}

	specs, err := reg.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}

	want := []string{"alpha", "middle", "zebra"}
	if len(specs) != len(want) {
		t.Fatalf("got %d specs, want %d", len(specs), len(want))
	}
	for i, s := range specs {
		if s.Name != want[i] {
			t.Errorf("spec[%d] = %q, want %q", i, s.Name, want[i])
		}
	}
}

func TestCallUnknownTool(t *testing.T) {
	reg := NewRegistry(0)

	_, err := reg.Call(context.Background(), "ghost", nil)
	if err == nil {
		t.Fatal("want error for unknown tool")
	}
	if !errors.Is(err, ErrToolUnknown) {
		t.Errorf("err = %v, want ErrToolUnknown", err)
	}
	var te *ToolError
	if !errors.As(err, &te) || te.Tool != "ghost" {
		t.Errorf("err = %v, want *ToolError naming the tool", err)
	}
}

func TestCallWrapsHandlerError(t *testing.T) {
	reg := NewRegistry(0)
	boom := errors.New("boom")
	reg.Register(&Tool{
		Name: "broken",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "", boom
		},
	})

	_, err := reg.Call(context.Background(), "broken", nil)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped handler error", err)
	}
}

func TestCallTimeout(t *testing.T) {
	reg := NewRegistry(20 * time.Millisecond)
	reg.Register(&Tool{
		Name: "slow",
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			select {
			case <-time.After(time.Second):
				return "too late", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	})

	_, err := reg.Call(context.Background(), "slow", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestFindProvider(t *testing.T) {
	listed := [][]Spec{
		{{Name: "alpha"}},
		{{Name: "beta"}, {Name: "gamma"}},
		{{Name: "beta"}}, // duplicate: first provider wins
	}

	cases := []struct {
		name string
		want int
	}{
		{"alpha", 0},
		{"beta", 1},
		{"gamma", 1},
		{"delta", -1},
	}
	for _, c := range cases {
		if got := FindProvider(listed, c.name); got != c.want {
			t.Errorf("FindProvider(%q) = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestForLLM(t *testing.T) {
	if ForLLM(nil) != nil {
		t.Error("ForLLM(nil) should be nil so no tools field is sent")
	}

	out := ForLLM([]Spec{{
		Name:        "web_search",
		Description: "search",
		Parameters:  map[string]any{"type": "object"},
	}})
	if len(out) != 1 {
		t.Fatalf("got %d entries, want 1", len(out))
	}
	if out[0]["type"] != "function" {
		t.Errorf("type = %v, want function", out[0]["type"])
	}
	fn, ok := out[0]["function"].(map[string]any)
	if !ok || fn["name"] != "web_search" {
		t.Errorf("function block = %v, want name web_search", out[0]["function"])
	}
}

func TestClockTool(t *testing.T) {
	tool := NewClockTool()

	out, err := tool.Handler(context.Background(), map[string]any{"timezone": "UTC"})
	if err != nil {
		t.Fatalf("clock: %v", err)
	}
	if !strings.Contains(out, "UTC") {
		t.Errorf("output %q should carry the zone abbreviation", out)
	}

	if _, err := tool.Handler(context.Background(), map[string]any{"timezone": "Not/AZone"}); err == nil {
		t.Error("want error for invalid timezone")
	}
}
