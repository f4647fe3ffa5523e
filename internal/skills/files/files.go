// Package files is the file_manager skill: list, read, write, and delete
// files inside a sandbox directory. Paths never escape the root.
package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fhaenel/frieda/internal/skills"
)

// maxReadBytes caps how much of a file the model gets back.
const maxReadBytes = 64 << 10

// Skill operates on files under the sandbox root.
type Skill struct {
	root string
}

// New creates the file_manager skill rooted at dir. The directory is
// created on first use.
func New(dir string) *Skill {
	return &Skill{root: dir}
}

func (s *Skill) Name() string { return "file_manager" }

func (s *Skill) Description() string {
	return "Work with files in the assistant's file area: list a directory, read a file, write (create or overwrite) a file, or delete one. Paths are relative to the file area."
}

func (s *Skill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"action":  skills.Property("string", "What to do", "list", "read", "write", "delete"),
		"path":    skills.Property("string", "Relative path, e.g. 'notizen/einkauf.md'"),
		"content": skills.Property("string", "File content (for write)"),
	}, "action")
}

func (s *Skill) Execute(_ context.Context, args map[string]any) (string, error) {
	rel := skills.StringArg(args, "path")

	switch action := skills.StringArg(args, "action"); action {
	case "list":
		return s.list(rel)
	case "read":
		return s.read(rel)
	case "write":
		return s.write(rel, skills.StringArg(args, "content"))
	case "delete":
		return s.delete(rel)
	default:
		return skills.Errorf("unknown action '%s'", action), nil
	}
}

// resolve maps a relative path into the sandbox and rejects escapes.
func (s *Skill) resolve(rel string) (string, error) {
	if strings.Contains(rel, "\x00") {
		return "", fmt.Errorf("invalid path")
	}
	clean := filepath.Clean("/" + rel) // collapses any ../ against the root
	full := filepath.Join(s.root, clean)
	rootAbs, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	fullAbs, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if fullAbs != rootAbs && !strings.HasPrefix(fullAbs, rootAbs+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes the file area")
	}
	return fullAbs, nil
}

func (s *Skill) list(rel string) (string, error) {
	dir, err := s.resolve(rel)
	if err != nil {
		return skills.Errorf("%v", err), nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "directory is empty", nil
		}
		return skills.Errorf("list: %v", err), nil
	}
	if len(entries) == 0 {
		return "directory is empty", nil
	}
	var sb strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(&sb, "%s/\n", e.Name())
			continue
		}
		info, err := e.Info()
		if err != nil {
			fmt.Fprintf(&sb, "%s\n", e.Name())
			continue
		}
		fmt.Fprintf(&sb, "%s (%d bytes)\n", e.Name(), info.Size())
	}
	return sb.String(), nil
}

func (s *Skill) read(rel string) (string, error) {
	if rel == "" {
		return skills.Errorf("read needs a path"), nil
	}
	path, err := s.resolve(rel)
	if err != nil {
		return skills.Errorf("%v", err), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return skills.Errorf("file '%s' not found", rel), nil
		}
		return skills.Errorf("read: %v", err), nil
	}
	if len(raw) > maxReadBytes {
		return string(raw[:maxReadBytes]) + "\n[... gekürzt]", nil
	}
	return string(raw), nil
}

func (s *Skill) write(rel, content string) (string, error) {
	if rel == "" {
		return skills.Errorf("write needs a path"), nil
	}
	path, err := s.resolve(rel)
	if err != nil {
		return skills.Errorf("%v", err), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return skills.Errorf("write: %v", err), nil
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return skills.Errorf("write: %v", err), nil
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), rel), nil
}

func (s *Skill) delete(rel string) (string, error) {
	if rel == "" {
		return skills.Errorf("delete needs a path"), nil
	}
	path, err := s.resolve(rel)
	if err != nil {
		return skills.Errorf("%v", err), nil
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return skills.Errorf("file '%s' not found", rel), nil
		}
		return skills.Errorf("delete: %v", err), nil
	}
	return fmt.Sprintf("deleted %s", rel), nil
}
