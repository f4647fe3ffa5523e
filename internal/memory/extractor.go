package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/fhaenel/frieda/internal/chat"
	"github.com/fhaenel/frieda/internal/llm"
	"github.com/fhaenel/frieda/internal/storage"
)

// maxFactValueLen caps stored fact values in runes.
const maxFactValueLen = 200

// smalltalk lists user openers that never carry durable facts.
var smalltalk = []string{
	"danke", "hallo", "hi ", "hey", "ok", "okay", "ja", "nein",
	"gut", "super", "thanks", "thank you", "guten morgen", "gute nacht",
}

// Extractor mines durable facts from finished exchanges in the background.
// Everything about it is best-effort: failures are logged and dropped.
type Extractor struct {
	llm    *llm.Client
	store  *storage.Store
	model  string
	prompt string // fmt template: owner, owner, dialog
	owner  string
	minLen int
	logger *slog.Logger
}

// NewExtractor creates an extractor. prompt may be empty to use the builtin
// German default; it receives the owner name twice and the dialog once.
func NewExtractor(client *llm.Client, store *storage.Store, model, prompt, owner string, minLen int, logger *slog.Logger) *Extractor {
	if prompt == "" {
		prompt = defaultPrompt
	}
	if minLen <= 0 {
		minLen = 10
	}
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "memory"))
	}
	return &Extractor{
		llm:    client,
		store:  store,
		model:  model,
		prompt: prompt,
		owner:  owner,
		minLen: minLen,
		logger: logger,
	}
}

const defaultPrompt = `Analysiere den folgenden Dialog zwischen %s und der Assistentin.
Extrahiere dauerhafte Fakten über %s: Vorlieben, Personen, Orte, Termine, Projekte.
Antworte NUR mit einem JSON-Array im Format
[{"category": "...", "key": "...", "value": "..."}].
Wenn es nichts zu merken gibt, antworte mit [].

Dialog:
%s`

// Extract runs one extraction pass over the exchange. It is safe to call
// from a detached goroutine; it never panics and never returns.
func (x *Extractor) Extract(ctx context.Context, userText, assistantText string) {
	if !x.shouldExtract(userText) {
		return
	}

	dialog := fmt.Sprintf("%s: %s\nAssistentin: %s", x.owner, userText, assistantText)
	prompt := fmt.Sprintf(x.prompt, x.owner, x.owner, dialog)

	raw, err := x.llm.Generate(ctx, x.model, prompt)
	if err != nil {
		x.logger.Debug("fact extraction failed", "error", err)
		return
	}

	facts := ParseFacts(chat.Scrub(raw, false))
	for _, fact := range facts {
		if err := x.store.Remember(ctx, fact.Category, fact.Key, fact.Value); err != nil {
			x.logger.Debug("fact upsert failed", "category", fact.Category, "key", fact.Key, "error", err)
		}
	}
	if len(facts) > 0 {
		x.logger.Info("facts extracted", "count", len(facts))
	}
}

// shouldExtract filters exchanges that cannot contain durable facts: very
// short messages and pure smalltalk.
func (x *Extractor) shouldExtract(userText string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(userText))
	if utf8.RuneCountInString(trimmed) < x.minLen {
		return false
	}
	for _, phrase := range smalltalk {
		if trimmed == strings.TrimSpace(phrase) || strings.HasPrefix(trimmed, phrase+" ") {
			return false
		}
	}
	return true
}

// ExtractedFact is one parsed extraction result.
type ExtractedFact struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	Value    string `json:"value"`
}

// ParseFacts finds the first JSON array in the model output and decodes the
// well-formed entries. Entries missing a field or with an overlong value are
// dropped.
func ParseFacts(output string) []ExtractedFact {
	array := firstJSONArray(output)
	if array == "" {
		return nil
	}
	var raw []ExtractedFact
	if err := json.Unmarshal([]byte(array), &raw); err != nil {
		return nil
	}
	var facts []ExtractedFact
	for _, fact := range raw {
		fact.Category = strings.TrimSpace(fact.Category)
		fact.Key = strings.TrimSpace(fact.Key)
		fact.Value = strings.TrimSpace(fact.Value)
		if fact.Category == "" || fact.Key == "" || fact.Value == "" {
			continue
		}
		if utf8.RuneCountInString(fact.Value) > maxFactValueLen {
			continue
		}
		facts = append(facts, fact)
	}
	return facts
}

// firstJSONArray extracts the first balanced bracket run, ignoring brackets
// inside JSON strings.
func firstJSONArray(s string) string {
	start := strings.Index(s, "[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
