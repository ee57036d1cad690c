// Package extract turns uploaded resume documents into plain text.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// ExtractionError reports a document that is unsupported, corrupt, or yields too little text.
type ExtractionError struct {
	Filename string
	Reason   string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not extract text from %q: %s: %v", e.Filename, e.Reason, e.Err)
	}
	return fmt.Sprintf("could not extract text from %q: %s", e.Filename, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// TextExtractor returns normalised text with at least MinChars non-space characters.
type TextExtractor struct {
	MinChars int
}

func NewTextExtractor(minChars int) *TextExtractor {
	return &TextExtractor{MinChars: minChars}
}

// Supported reports whether filename has an extension the extractor understands.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".docx", ".txt", ".md":
		return true
	}
	return false
}

func (x *TextExtractor) Extract(filename string, data []byte) (text string, err error) {
	if len(data) == 0 {
		return "", &ExtractionError{Filename: filename, Reason: "empty document"}
	}

	// Both parsers panic on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", &ExtractionError{Filename: filename, Reason: "corrupt document", Err: fmt.Errorf("%v", r)}
		}
	}()

	var raw string
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		raw, err = pdfText(data)
	case ".docx":
		raw, err = docxText(data)
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return "", &ExtractionError{Filename: filename, Reason: "text file is not valid UTF-8"}
		}
		raw = string(data)
	default:
		return "", &ExtractionError{Filename: filename, Reason: "unsupported file type " + filepath.Ext(filename)}
	}
	if err != nil {
		return "", &ExtractionError{Filename: filename, Reason: "corrupt document", Err: err}
	}

	text = normalizeWhitespace(raw)
	if n := countNonSpace(text); n < x.MinChars {
		return "", &ExtractionError{
			Filename: filename,
			Reason:   fmt.Sprintf("document yielded %d characters of text, need at least %d", n, x.MinChars),
		}
	}
	return text, nil
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	return buf.String(), nil
}

var (
	paragraphEnd = regexp.MustCompile(`</w:p>`)
	xmlTag       = regexp.MustCompile(`<[^>]+>`)
)

func docxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse docx: %w", err)
	}
	defer doc.Close()

	// GetContent returns document.xml; keep paragraph breaks and drop the markup.
	content := paragraphEnd.ReplaceAllString(doc.Editable().GetContent(), "\n")
	content = xmlTag.ReplaceAllString(content, "")
	return unescapeXML(content), nil
}

var xmlEntities = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}

var (
	spaceRun = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = spaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRun.ReplaceAllString(s, "\n\n"))
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\n' && r != '\t' {
			n++
		}
	}
	return n
}
