// Package pdfread is the pdf_read skill: plain-text extraction from PDF
// files in the sandbox, optionally limited to a page range.
package pdfread

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/fhaenel/frieda/internal/skills"
)

// maxResultBytes caps what the model gets back.
const maxResultBytes = 48 << 10

// Skill extracts text from PDFs under the sandbox root.
type Skill struct {
	root string
}

// New creates the pdf_read skill rooted at dir.
func New(dir string) *Skill {
	return &Skill{root: dir}
}

func (s *Skill) Name() string { return "pdf_read" }

func (s *Skill) Description() string {
	return "Extract the text of a PDF from the file area, optionally only a page range."
}

func (s *Skill) Parameters() map[string]any {
	return skills.ObjectSchema(map[string]any{
		"path":      skills.Property("string", "Relative path to the PDF in the file area"),
		"from_page": skills.Property("integer", "First page to read (1-based)"),
		"to_page":   skills.Property("integer", "Last page to read (inclusive)"),
	}, "path")
}

func (s *Skill) Execute(_ context.Context, args map[string]any) (string, error) {
	rel := skills.StringArg(args, "path")
	if rel == "" {
		return skills.Errorf("path is empty"), nil
	}
	clean := filepath.Clean("/" + rel)
	path := filepath.Join(s.root, clean)
	if !strings.HasPrefix(path, filepath.Clean(s.root)+string(filepath.Separator)) {
		return skills.Errorf("path escapes the file area"), nil
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return skills.Errorf("open pdf: %v", err), nil
	}
	defer f.Close()

	total := reader.NumPage()
	from := skills.IntArg(args, "from_page", 1)
	to := skills.IntArg(args, "to_page", total)
	if from < 1 {
		from = 1
	}
	if to > total {
		to = total
	}
	if from > to {
		return skills.Errorf("page range %d-%d is empty (document has %d pages)", from, to, total), nil
	}

	var buf bytes.Buffer
	for i := from; i <= to; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}
	result := strings.TrimSpace(buf.String())
	if result == "" {
		return skills.Errorf("no extractable text in pages %d-%d", from, to), nil
	}
	if len(result) > maxResultBytes {
		result = result[:maxResultBytes] + "\n[... gekürzt]"
	}
	return fmt.Sprintf("(%d Seiten, gelesen %d-%d)\n%s", total, from, to, result), nil
}
