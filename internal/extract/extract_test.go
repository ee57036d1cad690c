package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resume = `Jane Doe
Senior Backend Engineer

Experience:   6 years building Go services,
Kubernetes operators and PostgreSQL-backed APIs.`

func TestExtractPlainText(t *testing.T) {
	x := NewTextExtractor(50)
	text, err := x.Extract("jane.TXT", []byte(resume))
	require.NoError(t, err)
	assert.Contains(t, text, "Experience: 6 years")
	assert.False(t, strings.HasPrefix(text, " "))
}

func TestExtractRejectsShortText(t *testing.T) {
	_, err := NewTextExtractor(50).Extract("short.md", []byte("  hi   there \n\n "))
	var ee *ExtractionError
	require.True(t, errors.As(err, &ee))
	assert.Contains(t, ee.Reason, "need at least 50")
}

func TestExtractErrors(t *testing.T) {
	x := NewTextExtractor(10)
	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{"empty", "a.pdf", nil},
		{"unsupported", "photo.png", []byte("\x89PNG....")},
		{"corrupt pdf", "cv.pdf", []byte("this is definitely not a pdf document")},
		{"corrupt docx", "cv.docx", []byte("PK but not really a zip archive")},
		{"invalid utf8", "cv.txt", []byte{0xff, 0xfe, 0xfd, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := x.Extract(tt.filename, tt.data)
			var ee *ExtractionError
			require.True(t, errors.As(err, &ee), "got %v", err)
			assert.Equal(t, tt.filename, ee.Filename)
		})
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("cv.PDF"))
	assert.True(t, Supported("cv.docx"))
	assert.False(t, Supported("cv.doc"))
	assert.False(t, Supported("cv"))
}

func TestNormalizeWhitespace(t *testing.T) {
	got := normalizeWhitespace("  a\t\tb  \n\n\n\n  c \x00")
	assert.Equal(t, "a b\n\nc", got)
}

func TestDocxMarkupStripping(t *testing.T) {
	content := `<w:p><w:r><w:t>Go &amp; Rust</w:t></w:r></w:p><w:p><w:r><w:t>5 years</w:t></w:r></w:p>`
	content = paragraphEnd.ReplaceAllString(content, "\n")
	content = unescapeXML(xmlTag.ReplaceAllString(content, ""))
	assert.Equal(t, "Go & Rust\n5 years", strings.TrimSpace(content))
}
