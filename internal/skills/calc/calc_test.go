package calc

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/fhaenel/frieda/internal/skills"
)

func TestEval(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"1+2", 3},
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"10 / 4", 2.5},
		{"10 % 3", 1},
		{"2 ^ 10", 1024},
		{"2 ^ 3 ^ 2", 512}, // right-associative
		{"-5 + 3", -2},
		{"3 * -2", -6},
		{"-(2 + 3)", -5},
		{"1.5 * 2", 3},
		{"((1))", 1},
	}
	for _, tt := range tests {
		got, err := Eval(tt.expr)
		if err != nil {
			t.Errorf("Eval(%q): %v", tt.expr, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEvalErrors(t *testing.T) {
	exprs := []string{
		"1 / 0",
		"1 % 0",
		"2 +",
		"* 3",
		"(1 + 2",
		"1 + 2)",
		"zwei + drei",
		"1 $ 2",
		"",
	}
	for _, expr := range exprs {
		if _, err := Eval(expr); err == nil {
			t.Errorf("Eval(%q) succeeded, want error", expr)
		}
	}
}

func TestExecute(t *testing.T) {
	s := New()

	got, err := s.Execute(context.Background(), map[string]any{"expression": "6 * 7"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got != "42" {
		t.Errorf("result = %q", got)
	}

	got, err = s.Execute(context.Background(), map[string]any{"expression": "1/0"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !skills.IsError(got) {
		t.Errorf("division by zero not reported: %q", got)
	}

	got, _ = s.Execute(context.Background(), map[string]any{"expression": "  "})
	if !strings.Contains(got, "expression is empty") {
		t.Errorf("empty expression = %q", got)
	}
}
