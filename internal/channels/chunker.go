package channels

import (
	"strings"
	"unicode"
)

// Chunker splits long messages to fit a platform length cap, preferring
// paragraph breaks, then newlines, then sentence ends, then spaces; a hard
// cut is the last resort. Markdown code fences are kept balanced by closing
// and reopening them across the cut.
type Chunker struct {
	// MaxSize is the maximum chunk length in bytes.
	MaxSize int
}

// NewChunker creates a chunker; size 0 defaults to Discord's 2000 cap.
func NewChunker(maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = 2000
	}
	return &Chunker{MaxSize: maxSize}
}

// Chunk splits text into pieces no longer than MaxSize.
func (c *Chunker) Chunk(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.MaxSize {
		return []string{text}
	}

	// Leave room for a reopening fence marker on continuation chunks.
	budget := c.MaxSize - len("```\n")

	var chunks []string
	remaining := text
	openFence := ""
	for len(remaining) > 0 {
		prefix := ""
		if openFence != "" {
			prefix = openFence + "\n"
		}
		if len(prefix)+len(remaining) <= c.MaxSize {
			chunks = append(chunks, prefix+remaining)
			break
		}

		cut := findCut(remaining, budget-len(prefix))
		chunk := strings.TrimRightFunc(remaining[:cut], unicode.IsSpace)
		remaining = strings.TrimLeftFunc(remaining[cut:], unicode.IsSpace)

		fence := danglingFence(chunk)
		if fence != "" {
			chunk += "\n```"
		}
		if chunk != "" {
			chunks = append(chunks, prefix+chunk)
		}
		if fence != "" {
			openFence = fence
		} else if openFence != "" && strings.Count(chunk, "```")%2 == 1 {
			openFence = ""
		}
	}
	return chunks
}

// findCut picks the break position within the first limit bytes.
func findCut(text string, limit int) int {
	if len(text) <= limit {
		return len(text)
	}
	window := text[:limit]

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx + 1
	}
	if idx := strings.LastIndex(window, "\n"); idx > 0 {
		return idx + 1
	}
	for _, ending := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, ending); idx > 0 {
			return idx + 1
		}
	}
	if idx := strings.LastIndexFunc(window, unicode.IsSpace); idx > 0 {
		return idx
	}
	return limit
}

// danglingFence returns the opening fence line when the chunk leaves a code
// block unclosed, empty otherwise.
func danglingFence(chunk string) string {
	open := ""
	inside := false
	for _, line := range strings.Split(chunk, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if inside {
				inside = false
				open = ""
			} else {
				inside = true
				open = trimmed
			}
		}
	}
	if inside {
		return open
	}
	return ""
}
