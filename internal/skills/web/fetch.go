// Package web holds the network skills: web_fetch turns a page into
// markdown, web_browse extracts the readable article and its links.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/fhaenel/frieda/internal/skills"
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 1 << 20

// maxResultBytes caps what the model gets back.
const maxResultBytes = 32 << 10

const userAgent = "Mozilla/5.0 (compatible; Frieda/1.0)"

// FetchSkill downloads a page and converts it to markdown.
type FetchSkill struct {
	client *http.Client
}

// NewFetch creates the web_fetch skill.
func NewFetch() *FetchSkill {
	return &FetchSkill{client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *FetchSkill) Name() string { return "web_fetch" }

func (s *FetchSkill) Description() string {
	return "Fetch a web page and return its content as markdown. Use for pages whose full content matters."
}

func (s *FetchSkill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"url": skills.Property("string", "The http(s) URL to fetch"),
	}, "url")
}

func (s *FetchSkill) Execute(ctx context.Context, args map[string]any) (string, error) {
	rawURL := skills.StringArg(args, "url")
	html, contentType, err := fetch(ctx, s.client, rawURL)
	if err != nil {
		return skills.Errorf("%v", err), nil
	}
	if !strings.Contains(contentType, "text/html") {
		return clip(html), nil
	}
	markdown, err := md.NewConverter("", true, nil).ConvertString(html)
	if err != nil {
		return skills.Errorf("convert to markdown: %v", err), nil
	}
	return clip(markdown), nil
}

// fetch downloads a URL with the shared limits and returns the body and
// content type.
func fetch(ctx context.Context, client *http.Client, rawURL string) (body, contentType string, err error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return "", "", fmt.Errorf("url must start with http:// or https://")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("invalid url: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", fmt.Errorf("read body: %w", err)
	}
	return string(raw), resp.Header.Get("Content-Type"), nil
}

func clip(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > maxResultBytes {
		return text[:maxResultBytes] + "\n[... gekürzt]"
	}
	return text
}
