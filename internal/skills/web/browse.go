package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/fhaenel/frieda/internal/skills"
)

// maxLinks caps the link list appended to an article.
const maxLinks = 20

// BrowseSkill extracts the readable article text and the page's links.
type BrowseSkill struct {
	client *http.Client
}

// NewBrowse creates the web_browse skill.
func NewBrowse() *BrowseSkill {
	return &BrowseSkill{client: &http.Client{Timeout: 30 * time.Second}}
}

func (s *BrowseSkill) Name() string { return "web_browse" }

func (s *BrowseSkill) Description() string {
	return "Read a web page like an article: returns the main text plus the page's links. Use for news sites and blogs."
}

func (s *BrowseSkill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"url": skills.Property("string", "The http(s) URL to read"),
	}, "url")
}

func (s *BrowseSkill) Execute(ctx context.Context, args map[string]any) (string, error) {
	rawURL := skills.StringArg(args, "url")
	html, _, err := fetch(ctx, s.client, rawURL)
	if err != nil {
		return skills.Errorf("%v", err), nil
	}

	parsed, _ := url.Parse(rawURL)
	var sb strings.Builder

	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		if article.Title != "" {
			fmt.Fprintf(&sb, "# %s\n\n", article.Title)
		}
		sb.WriteString(strings.TrimSpace(article.TextContent))
	} else {
		// Readability gave up; fall back to the stripped body text.
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return skills.Errorf("parse page: %v", err), nil
		}
		sb.WriteString(strings.Join(strings.Fields(doc.Find("body").Text()), " "))
	}

	if links := extractLinks(html, parsed); len(links) > 0 {
		sb.WriteString("\n\nLinks:\n")
		for _, link := range links {
			sb.WriteString("- " + link + "\n")
		}
	}
	return clip(sb.String()), nil
}

// extractLinks collects up to maxLinks absolute links with their anchor
// text.
func extractLinks(html string, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	seen := map[string]bool{}
	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		if ref.Scheme != "http" && ref.Scheme != "https" {
			return true
		}
		abs := ref.String()
		if seen[abs] {
			return true
		}
		seen[abs] = true
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			links = append(links, abs)
		} else {
			links = append(links, fmt.Sprintf("%s (%s)", text, abs))
		}
		return len(links) < maxLinks
	})
	return links
}
