package loader

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/docbot/pkg/loader/loadertest"
	"go.uber.org/zap/zaptest"
)

func TestLoad_ConcatenatesPages(t *testing.T) {
	l := New(zaptest.NewLogger(t))

	doc, err := l.Load("resume.pdf", loadertest.PDF("Jane Doe", "Go Engineer"))
	require.NoError(t, err)

	assert.Equal(t, "resume.pdf", doc.Name)
	assert.Equal(t, 2, doc.Pages)
	assert.Contains(t, doc.Content, "Jane Doe")
	assert.Contains(t, doc.Content, "Go Engineer")
	assert.Less(t, bytes.Index([]byte(doc.Content), []byte("Jane")), bytes.Index([]byte(doc.Content), []byte("Go Engineer")))
	assert.Equal(t, "application/pdf", doc.Metadata["mime"])
	assert.NotEmpty(t, doc.ID)
}

func TestLoad_RejectsNonPDF(t *testing.T) {
	l := New(nil)

	_, err := l.Load("notes.txt", []byte("just some text"))
	assert.ErrorIs(t, err, ErrNotPDF)

	_, err = l.Load("empty.pdf", nil)
	assert.ErrorIs(t, err, ErrEmptyFile)
}
