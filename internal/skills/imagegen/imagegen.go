// Package imagegen is the image_generation skill: it asks a local Stable
// Diffusion webui to render a prompt and saves the PNG under the served
// media directory.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/fhaenel/frieda/internal/skills"
)

// Skill talks to the SD webui txt2img endpoint.
type Skill struct {
	baseURL string
	dir     string
	client  *http.Client
}

// New creates the image_generation skill. dir is the generated-media
// directory served under /generated/.
func New(baseURL, dir string) *Skill {
	return &Skill{
		baseURL: baseURL,
		dir:     dir,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (s *Skill) Name() string { return "image_generation" }

func (s *Skill) Description() string {
	return "Generate an image from a text prompt. Returns markdown embedding the image; keep the markdown in your answer so the image is shown."
}

func (s *Skill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"prompt":          skills.Property("string", "What to draw, in English"),
		"negative_prompt": skills.Property("string", "What to avoid"),
	}, "prompt")
}

type txt2imgRequest struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Steps          int    `json:"steps"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
}

func (s *Skill) Execute(ctx context.Context, args map[string]any) (string, error) {
	prompt := skills.StringArg(args, "prompt")
	if prompt == "" {
		return skills.Errorf("prompt is empty"), nil
	}

	body, err := json.Marshal(txt2imgRequest{
		Prompt:         prompt,
		NegativePrompt: skills.StringArg(args, "negative_prompt"),
		Steps:          25,
		Width:          768,
		Height:         768,
	})
	if err != nil {
		return skills.Errorf("encode request: %v", err), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sdapi/v1/txt2img", bytes.NewReader(body))
	if err != nil {
		return skills.Errorf("build request: %v", err), nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return skills.Errorf("image backend unreachable: %v", err), nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return skills.Errorf("image backend returned %d: %s", resp.StatusCode, snippet), nil
	}

	var result txt2imgResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return skills.Errorf("decode response: %v", err), nil
	}
	if len(result.Images) == 0 {
		return skills.Errorf("image backend returned no image"), nil
	}
	png, err := base64.StdEncoding.DecodeString(result.Images[0])
	if err != nil {
		return skills.Errorf("decode image: %v", err), nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return skills.Errorf("media dir: %v", err), nil
	}
	name := "img-" + uuid.NewString() + ".png"
	if err := os.WriteFile(filepath.Join(s.dir, name), png, 0o644); err != nil {
		return skills.Errorf("save image: %v", err), nil
	}
	return fmt.Sprintf("![%s](/generated/%s)", prompt, name), nil
}
