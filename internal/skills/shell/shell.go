// Package shell is the system_command skill: run a shell command with a
// timeout and a capped, combined output.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/fhaenel/frieda/internal/skills"
)

// maxOutputBytes caps what the model gets back from a command.
const maxOutputBytes = 16 << 10

// Skill executes shell commands.
type Skill struct {
	timeout time.Duration
	workdir string
}

// New creates the system_command skill. timeout 0 defaults to a minute.
func New(timeout time.Duration, workdir string) *Skill {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Skill{timeout: timeout, workdir: workdir}
}

func (s *Skill) Name() string { return "system_command" }

func (s *Skill) Description() string {
	return "Run a shell command on the host and return its combined output. Commands are killed after the timeout."
}

func (s *Skill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"command": skills.Property("string", "The shell command to run"),
	}, "command")
}

func (s *Skill) Execute(ctx context.Context, args map[string]any) (string, error) {
	command := strings.TrimSpace(skills.StringArg(args, "command"))
	if command == "" {
		return skills.Errorf("command is empty"), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.workdir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := truncate(out.String())
	if ctx.Err() == context.DeadlineExceeded {
		return skills.Errorf("command timed out after %s\n%s", s.timeout, output), nil
	}
	if err != nil {
		return skills.Errorf("command failed: %v\n%s", err, output), nil
	}
	if strings.TrimSpace(output) == "" {
		return "command finished with no output", nil
	}
	return output, nil
}

func truncate(out string) string {
	if len(out) <= maxOutputBytes {
		return out
	}
	return out[:maxOutputBytes] + fmt.Sprintf("\n[... %d bytes gekürzt]", len(out)-maxOutputBytes)
}
