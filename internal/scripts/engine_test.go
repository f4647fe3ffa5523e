package scripts

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/fhaenel/frieda/internal/skills"
)

// fakeSkill records its calls and answers from a function.
type fakeSkill struct {
	name  string
	calls []map[string]any
	reply func(args map[string]any) string
}

func (f *fakeSkill) Name() string        { return f.name }
func (f *fakeSkill) Description() string { return "test skill" }
func (f *fakeSkill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"command": skills.Property("string", "c"),
		"text":    skills.Property("string", "t"),
	})
}
func (f *fakeSkill) Execute(_ context.Context, args map[string]any) (string, error) {
	f.calls = append(f.calls, args)
	return f.reply(args), nil
}

func newTestEngine(t *testing.T, skillList ...*fakeSkill) *Engine {
	t.Helper()
	registry := skills.NewRegistry()
	for _, s := range skillList {
		if err := registry.Register(s); err != nil {
			t.Fatalf("register %s: %v", s.name, err)
		}
	}
	return New(t.TempDir(), registry, nil)
}

func TestScriptSaveLoadList(t *testing.T) {
	engine := newTestEngine(t)
	script := &Script{
		Name:        "morgen",
		Description: "Morgenroutine",
		Steps:       []Step{{Skill: "system_command", Args: map[string]any{"command": "uptime"}}},
	}
	if err := engine.Save(script); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := engine.Save(&Script{Name: "leer"}); err == nil {
		t.Error("script without steps must be rejected")
	}

	loaded, err := engine.Load("morgen")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Description != "Morgenroutine" || len(loaded.Steps) != 1 {
		t.Errorf("loaded = %+v", loaded)
	}

	if names := engine.List(); len(names) != 1 || names[0] != "morgen" {
		t.Errorf("list = %v", names)
	}

	if err := engine.Delete("morgen"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := engine.Delete("morgen"); err == nil {
		t.Error("deleting a missing script must fail")
	}
}

func TestScriptRunSubstitutesStepResults(t *testing.T) {
	echo := &fakeSkill{name: "echo", reply: func(args map[string]any) string {
		return skills.StringArg(args, "text")
	}}
	engine := newTestEngine(t, echo)
	if err := engine.Save(&Script{Name: "kette", Steps: []Step{
		{Skill: "echo", Args: map[string]any{"text": "${start}"}},
		{Skill: "echo", Args: map[string]any{"text": "davor: ${step_0_result}"}},
	}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	report := engine.Run(context.Background(), "kette", map[string]string{"start": "hallo"})

	if len(echo.calls) != 2 {
		t.Fatalf("calls = %d", len(echo.calls))
	}
	if echo.calls[0]["text"] != "hallo" {
		t.Errorf("caller variable not substituted: %v", echo.calls[0])
	}
	if echo.calls[1]["text"] != "davor: hallo" {
		t.Errorf("step result not substituted: %v", echo.calls[1])
	}
	if !strings.Contains(report, "Step 1 (echo): hallo") || !strings.Contains(report, "Step 2 (echo): davor: hallo") {
		t.Errorf("report = %q", report)
	}
}

func TestScriptRunStopOnError(t *testing.T) {
	calls := 0
	flaky := &fakeSkill{name: "flaky", reply: func(map[string]any) string {
		calls++
		return skills.Errorf("kaputt")
	}}
	engine := newTestEngine(t, flaky)
	if err := engine.Save(&Script{Name: "abbruch", Steps: []Step{
		{Skill: "flaky", StopOnError: true},
		{Skill: "flaky"},
	}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	report := engine.Run(context.Background(), "abbruch", nil)
	if calls != 1 {
		t.Errorf("steps ran = %d, want 1", calls)
	}
	if !strings.Contains(report, "Script halted at step 1.") {
		t.Errorf("report = %q", report)
	}
}

func TestScriptRunUnknownVariableKept(t *testing.T) {
	echo := &fakeSkill{name: "echo", reply: func(args map[string]any) string {
		return skills.StringArg(args, "text")
	}}
	engine := newTestEngine(t, echo)
	if err := engine.Save(&Script{Name: "roh", Steps: []Step{
		{Skill: "echo", Args: map[string]any{"text": "${gibtesnicht}"}},
	}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	engine.Run(context.Background(), "roh", nil)
	if got := fmt.Sprint(echo.calls[0]["text"]); got != "${gibtesnicht}" {
		t.Errorf("unknown variable rewritten to %q", got)
	}
}

func TestScriptRunMissingScript(t *testing.T) {
	engine := newTestEngine(t)
	got := engine.Run(context.Background(), "phantom", nil)
	if !skills.IsError(got) || !strings.Contains(got, "script 'phantom' not found") {
		t.Errorf("result = %q", got)
	}
}
