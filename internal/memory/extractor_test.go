package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fhaenel/frieda/internal/llm"
	"github.com/fhaenel/frieda/internal/storage"
)

func TestParseFacts(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{
			name: "clean array",
			in:   `[{"category":"vorlieben","key":"kaffee","value":"schwarz"}]`,
			want: 1,
		},
		{
			name: "array embedded in prose",
			in:   "Hier sind die Fakten:\n[{\"category\":\"personen\",\"key\":\"anna\",\"value\":\"Schwester\"}]\nFertig.",
			want: 1,
		},
		{
			name: "brackets inside strings ignored",
			in:   `[{"category":"notiz","key":"liste","value":"[a] und [b]"}]`,
			want: 1,
		},
		{
			name: "entry missing a field dropped",
			in:   `[{"category":"x","key":"","value":"y"},{"category":"a","key":"b","value":"c"}]`,
			want: 1,
		},
		{
			name: "overlong value dropped",
			in:   fmt.Sprintf(`[{"category":"x","key":"y","value":%q}]`, strings.Repeat("ü", maxFactValueLen+1)),
			want: 0,
		},
		{
			name: "empty array",
			in:   "[]",
			want: 0,
		},
		{
			name: "no array at all",
			in:   "Es gibt nichts zu merken.",
			want: 0,
		},
		{
			name: "unterminated array",
			in:   `[{"category":"x","key":"y","value":"z"}`,
			want: 0,
		},
		{
			name: "not valid json",
			in:   "[nicht json]",
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseFacts(tt.in); len(got) != tt.want {
				t.Errorf("ParseFacts(%q) = %v, want %d facts", tt.in, got, tt.want)
			}
		})
	}
}

func TestShouldExtract(t *testing.T) {
	x := NewExtractor(nil, nil, "m", "", "Marlon", 10, nil)

	tests := []struct {
		in   string
		want bool
	}{
		{"Ich trinke meinen Kaffee immer schwarz", true},
		{"kurz", false},
		{"danke", false},
		{"danke dir, das war sehr hilfreich!", false},
		{"guten morgen wie wird das Wetter heute?", false},
		{"Dankeschön-Karten bestelle ich morgen", true},
		{"   ", false},
	}
	for _, tt := range tests {
		if got := x.shouldExtract(tt.in); got != tt.want {
			t.Errorf("shouldExtract(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestExtractStoresFacts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"response": `<think>mal sehen</think>[{"category":"vorlieben","key":"kaffee","value":"schwarz"}]`,
		})
	}))
	defer server.Close()

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	x := NewExtractor(llm.New(server.URL), store, "m", "", "Marlon", 10, nil)
	x.Extract(context.Background(), "Ich trinke meinen Kaffee immer schwarz", "Gut zu wissen!")

	facts, err := store.RecentFacts(context.Background(), 10)
	if err != nil {
		t.Fatalf("facts: %v", err)
	}
	if len(facts) != 1 || facts[0].Key != "kaffee" || facts[0].Value != "schwarz" {
		t.Errorf("stored facts = %+v", facts)
	}
}

func TestExtractSkipsSmalltalkWithoutModelCall(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	x := NewExtractor(llm.New(server.URL), store, "m", "", "Marlon", 10, nil)
	x.Extract(context.Background(), "danke", "Gerne!")

	if called {
		t.Error("smalltalk reached the model")
	}
}

func TestMemoryContext(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	builder := NewContextBuilder(store, "Marlon", 30, nil)
	if got := builder.MemoryContext(ctx); got != "" {
		t.Errorf("empty memory must yield an empty block, got %q", got)
	}

	for _, f := range []struct{ cat, key, val string }{
		{"vorlieben", "kaffee", "schwarz"},
		{"vorlieben", "musik", "Jazz"},
		{"personen", "anna", "Schwester"},
	} {
		if err := store.Remember(ctx, f.cat, f.key, f.val); err != nil {
			t.Fatalf("remember: %v", err)
		}
	}

	block := builder.MemoryContext(ctx)
	if !strings.Contains(block, "über Marlon") {
		t.Errorf("owner missing: %q", block)
	}
	if !strings.Contains(block, "[vorlieben]") || !strings.Contains(block, "[personen]") {
		t.Errorf("categories missing: %q", block)
	}
	if !strings.Contains(block, "- kaffee: schwarz") {
		t.Errorf("fact missing: %q", block)
	}
	if !strings.Contains(block, "memory_manager") {
		t.Errorf("tool hint missing: %q", block)
	}
}
