package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSplitPages(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []Page
	}{
		{"single page", "hello", []Page{{1, "hello"}}},
		{"two pages", "one\ftwo", []Page{{1, "one"}, {2, "two"}}},
		{"trailing form feed", "one\ftwo\f", []Page{{1, "one"}, {2, "two"}}},
		{"empty middle page", "one\f\fthree", []Page{{1, "one"}, {2, ""}, {3, "three"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitPages(tt.in))
		})
	}
}

func TestTextExtractor(t *testing.T) {
	path := writeFile(t, "filing.txt", "Revenue\fNet income")

	pages, err := (&TextExtractor{}).Extract(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 2, pages[1].Number)
	assert.Equal(t, "Net income", pages[1].Text)
}

func TestTextExtractor_Empty(t *testing.T) {
	path := writeFile(t, "blank.txt", "  \f \n")

	_, err := (&TextExtractor{}).Extract(context.Background(), path)
	assert.True(t, errors.Is(err, ErrNoText))
}

func TestTextExtractor_Missing(t *testing.T) {
	_, err := (&TextExtractor{}).Extract(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestPDFExtractor_CorruptInput(t *testing.T) {
	path := writeFile(t, "broken.pdf", "%PDF-1.4\nthis is not really a pdf")

	assert.NotPanics(t, func() {
		_, err := (&PDFExtractor{}).Extract(context.Background(), path)
		assert.Error(t, err)
	})
}

func TestAuto_Dispatch(t *testing.T) {
	a := NewAuto()

	pages, err := a.Extract(context.Background(), writeFile(t, "notes.md", "# Title"))
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	_, err = a.Extract(context.Background(), writeFile(t, "sheet.xlsx", "x"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}
