// Package workspace assembles the persona files that frame every system
// prompt: identity, tone, tool hints, and boot notes, kept as plain
// markdown so the owner can edit them with any editor.
package workspace

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// The well-known workspace files, loaded in this order.
var files = []struct {
	name   string
	header string
}{
	{"IDENTITY.md", "Identität"},
	{"SOUL.md", "Persönlichkeit"},
	{"TOOLS.md", "Hinweise zu Werkzeugen"},
	{"BOOT.md", "Aktuelle Notizen"},
}

// Load reads the workspace directory and renders the persona block. Missing
// files are skipped; a missing directory yields an empty block.
func Load(dir string, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "workspace"))
	}
	var sections []string
	for _, f := range files {
		raw, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("workspace file unreadable", "file", f.name, "error", err)
			}
			continue
		}
		content := strings.TrimSpace(string(raw))
		if content == "" {
			continue
		}
		sections = append(sections, "## "+f.header+"\n\n"+content)
	}
	if len(sections) == 0 {
		return ""
	}
	return strings.Join(sections, "\n\n")
}
