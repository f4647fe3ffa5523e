// Package memory gives the assistant long-term recall: a context block of
// recent facts for the system prompt, a background fact extractor, and the
// memory_manager skill for explicit remember/recall/forget.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fhaenel/frieda/internal/storage"
)

// ContextBuilder renders the memory block injected into the system prompt.
type ContextBuilder struct {
	store  *storage.Store
	owner  string
	limit  int
	logger *slog.Logger
}

// NewContextBuilder creates a builder over the fact store. limit caps how
// many recent facts enter the prompt.
func NewContextBuilder(store *storage.Store, owner string, limit int, logger *slog.Logger) *ContextBuilder {
	if limit <= 0 {
		limit = 30
	}
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "memory"))
	}
	return &ContextBuilder{store: store, owner: owner, limit: limit, logger: logger}
}

// MemoryContext groups the most recent facts by category and renders them
// as a labelled block. Empty memory yields an empty string so the system
// prompt stays clean.
func (b *ContextBuilder) MemoryContext(ctx context.Context) string {
	facts, err := b.store.RecentFacts(ctx, b.limit)
	if err != nil {
		b.logger.Debug("memory context unavailable", "error", err)
		return ""
	}
	if len(facts) == 0 {
		return ""
	}

	// Group by category, keeping first-seen (most recent) category order.
	var order []string
	grouped := map[string][]storage.Fact{}
	for _, fact := range facts {
		if _, seen := grouped[fact.Category]; !seen {
			order = append(order, fact.Category)
		}
		grouped[fact.Category] = append(grouped[fact.Category], fact)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Dein Gedächtnis (was du über %s weißt):\n", b.owner)
	for _, category := range order {
		fmt.Fprintf(&sb, "\n[%s]\n", category)
		for _, fact := range grouped[category] {
			fmt.Fprintf(&sb, "- %s: %s\n", fact.Key, fact.Value)
		}
	}
	sb.WriteString("\nNutze das memory_manager-Werkzeug, um Fakten zu speichern oder zu korrigieren.")
	return sb.String()
}
