package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/fhaenel/frieda/internal/skills"
)

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestFetchConvertsHTML(t *testing.T) {
	ts := serve(t, "text/html; charset=utf-8",
		`<html><body><h1>Wetterbericht</h1><p>Morgen wird es <strong>sonnig</strong>.</p></body></html>`)

	s := NewFetch()
	got, err := s.Execute(context.Background(), map[string]any{"url": ts.URL})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(got, "# Wetterbericht") {
		t.Errorf("heading not converted: %q", got)
	}
	if !strings.Contains(got, "**sonnig**") {
		t.Errorf("bold not converted: %q", got)
	}
	if strings.Contains(got, "<p>") {
		t.Errorf("html leaked through: %q", got)
	}
}

func TestFetchPassesPlainTextThrough(t *testing.T) {
	ts := serve(t, "text/plain", "nur Text, kein HTML")

	s := NewFetch()
	got, err := s.Execute(context.Background(), map[string]any{"url": ts.URL})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got != "nur Text, kein HTML" {
		t.Errorf("plain body = %q", got)
	}
}

func TestFetchRejectsBadURLs(t *testing.T) {
	s := NewFetch()

	got, _ := s.Execute(context.Background(), map[string]any{"url": "ftp://example.com/x"})
	if !skills.IsError(got) || !strings.Contains(got, "http:// or https://") {
		t.Errorf("scheme error = %q", got)
	}

	got, _ = s.Execute(context.Background(), map[string]any{"url": ""})
	if !skills.IsError(got) {
		t.Errorf("empty url = %q", got)
	}
}

func TestFetchReportsHTTPErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "weg", http.StatusNotFound)
	}))
	defer ts.Close()

	s := NewFetch()
	got, _ := s.Execute(context.Background(), map[string]any{"url": ts.URL})
	if !skills.IsError(got) || !strings.Contains(got, "HTTP 404") {
		t.Errorf("status error = %q", got)
	}
}

func TestBrowseExtractsArticleAndLinks(t *testing.T) {
	body := `<html><head><title>Blogeintrag</title></head><body>
		<article>
			<h1>Blogeintrag</h1>
			<p>Das Hochbeet ist fertig. Der Salat wächst, die Tomaten brauchen noch ein paar Wochen,
			und die Schnecken halten respektvollen Abstand. Nächste Woche kommt der Kompost dran.</p>
			<p>Wer selbst eines bauen will: Lärche hält deutlich länger als Fichte, und ein
			Wühlmausgitter am Boden spart späteren Ärger.</p>
		</article>
		<a href="/kompost">Kompost-Anleitung</a>
		<a href="https://example.org/laerche">Holzkunde</a>
		<a href="mailto:ich@example.org">Mail</a>
	</body></html>`
	ts := serve(t, "text/html", body)

	s := NewBrowse()
	got, err := s.Execute(context.Background(), map[string]any{"url": ts.URL})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(got, "Hochbeet") {
		t.Errorf("article text missing: %q", got)
	}
	if !strings.Contains(got, "Links:") {
		t.Errorf("link list missing: %q", got)
	}
	if !strings.Contains(got, "Kompost-Anleitung ("+ts.URL+"/kompost)") {
		t.Errorf("relative link not resolved: %q", got)
	}
	if !strings.Contains(got, "Holzkunde (https://example.org/laerche)") {
		t.Errorf("absolute link missing: %q", got)
	}
	if strings.Contains(got, "mailto:") {
		t.Errorf("non-http link leaked: %q", got)
	}
}

func TestExtractLinksDeduplicatesAndCaps(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for i := 0; i < maxLinks+10; i++ {
		sb.WriteString(`<a href="/seite` + strings.Repeat("x", i%5) + `">Link</a>`)
	}
	sb.WriteString(`<a href="/doppelt">a</a><a href="/doppelt">b</a>`)
	sb.WriteString("</body></html>")

	base, _ := url.Parse("https://example.org/")
	links := extractLinks(sb.String(), base)
	if len(links) > maxLinks {
		t.Errorf("links = %d, cap is %d", len(links), maxLinks)
	}
	seen := map[string]bool{}
	for _, l := range links {
		urlPart := l[strings.LastIndex(l, "("):]
		if seen[urlPart] {
			t.Errorf("duplicate link %q", l)
		}
		seen[urlPart] = true
	}
}
