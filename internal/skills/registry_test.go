package skills

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type fakeSkill struct {
	name   string
	params map[string]any
	fn     func(ctx context.Context, args map[string]any) (string, error)
}

func (f *fakeSkill) Name() string               { return f.name }
func (f *fakeSkill) Description() string        { return "a fake skill" }
func (f *fakeSkill) Parameters() map[string]any { return f.params }
func (f *fakeSkill) Execute(ctx context.Context, args map[string]any) (string, error) {
	return f.fn(ctx, args)
}

func echoSkill(name string) *fakeSkill {
	return &fakeSkill{
		name:   name,
		params: ObjectSchema(map[string]any{"text": Property("string", "what to echo")}, "text"),
		fn: func(_ context.Context, args map[string]any) (string, error) {
			return StringArg(args, "text"), nil
		},
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoSkill("echo")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(echoSkill("echo")); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestRegisterRejectsBadSchema(t *testing.T) {
	bad := &fakeSkill{
		name:   "broken",
		params: map[string]any{"type": "object", "properties": map[string]any{"x": map[string]any{"type": 42}}},
		fn:     func(context.Context, map[string]any) (string, error) { return "", nil },
	}
	if err := NewRegistry().Register(bad); err == nil {
		t.Fatal("expected schema validation to fail")
	}
}

func TestExecuteUnknownSkill(t *testing.T) {
	got := NewRegistry().Execute(context.Background(), "nope", nil)
	want := "error: skill 'nope' not found"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExecuteStringifiesErrors(t *testing.T) {
	r := NewRegistry()
	failing := echoSkill("failing")
	failing.fn = func(context.Context, map[string]any) (string, error) {
		return "", errors.New("boom")
	}
	if err := r.Register(failing); err != nil {
		t.Fatal(err)
	}
	got := r.Execute(context.Background(), "failing", map[string]any{"text": "x"})
	if !IsError(got) || !strings.Contains(got, "boom") {
		t.Fatalf("got %q, want error result containing boom", got)
	}
}

func TestFilterArgsDropsUndeclaredKeys(t *testing.T) {
	skill := echoSkill("echo")
	got := FilterArgs(skill, map[string]any{
		"text":      "hello",
		"verbosity": "high",
		"reasoning": "because",
	}, nil)
	want := map[string]any{"text": "hello"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestFilterArgsReachesExecution(t *testing.T) {
	r := NewRegistry()
	var seen map[string]any
	spy := echoSkill("spy")
	spy.fn = func(_ context.Context, args map[string]any) (string, error) {
		seen = args
		return "ok", nil
	}
	if err := r.Register(spy); err != nil {
		t.Fatal(err)
	}
	r.Execute(context.Background(), "spy", map[string]any{"text": "a", "junk": true})
	if _, ok := seen["junk"]; ok {
		t.Fatal("undeclared key reached Execute")
	}
	if seen["text"] != "a" {
		t.Fatalf("declared key mangled: %v", seen)
	}
}

func TestDefinitionsShape(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoSkill("echo")); err != nil {
		t.Fatal(err)
	}
	defs := r.Definitions(nil)
	if len(defs) != 1 {
		t.Fatalf("got %d definitions, want 1", len(defs))
	}
	if defs[0].Type != "function" || defs[0].Function.Name != "echo" {
		t.Fatalf("unexpected definition: %+v", defs[0])
	}

	defs = r.Definitions([]string{"echo", "missing"})
	if len(defs) != 1 {
		t.Fatalf("unknown names should be skipped, got %d", len(defs))
	}
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"s": "x", "f": 3.0, "si": "7", "b": true, "bs": "no",
	}
	if StringArg(args, "s") != "x" || StringArg(args, "missing") != "" {
		t.Fatal("StringArg")
	}
	if IntArg(args, "f", 0) != 3 || IntArg(args, "si", 0) != 7 || IntArg(args, "missing", 9) != 9 {
		t.Fatal("IntArg")
	}
	if !BoolArg(args, "b", false) || BoolArg(args, "bs", true) || !BoolArg(args, "missing", true) {
		t.Fatal("BoolArg")
	}
}
