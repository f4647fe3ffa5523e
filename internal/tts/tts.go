// Package tts shells out to the edge-tts command line tool to synthesize
// spoken replies. The generated MP3s land in the served media directory.
package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// Client runs the edge-tts subprocess. New returns nil when the binary is
// not installed; callers treat a nil client as speech disabled.
type Client struct {
	command string
	voice   string
	dir     string
	logger  *slog.Logger
}

// New probes for the synthesis command and prepares the output directory.
func New(command, voice, dir string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "tts"))
	}
	if command == "" {
		command = "edge-tts"
	}
	if _, err := exec.LookPath(command); err != nil {
		logger.Info("speech synthesis disabled", "command", command)
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("speech synthesis disabled", "dir", dir, "error", err)
		return nil
	}
	return &Client{command: command, voice: voice, dir: dir, logger: logger}
}

// Synthesize renders text to an MP3 file and returns the URL it is served
// under.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("nothing to synthesize")
	}
	name := "tts-" + uuid.NewString() + ".mp3"
	path := filepath.Join(c.dir, name)

	cmd := exec.CommandContext(ctx, c.command,
		"--voice", c.voice,
		"--text", text,
		"--write-media", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%s: %w: %s", c.command, err, out)
	}
	c.logger.Debug("speech synthesized", "file", name)
	return "/generated/" + name, nil
}
