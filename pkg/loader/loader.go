// Package loader turns uploaded files into plain text documents.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"github.com/xhad/docbot/internal/models"
	"go.uber.org/zap"
)

const pdfMIME = "application/pdf"

var (
	ErrEmptyFile = errors.New("uploaded file is empty")
	ErrNotPDF    = errors.New("uploaded file is not a PDF")
)

type Loader struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger}
}

// Load extracts the text of every page of a PDF and concatenates it in page
// order without a separator. Pages without a text layer contribute nothing.
func (l *Loader) Load(name string, data []byte) (models.Document, error) {
	if len(data) == 0 {
		return models.Document{}, ErrEmptyFile
	}

	mtype := mimetype.Detect(data)
	if !mtype.Is(pdfMIME) {
		return models.Document{}, fmt.Errorf("%w: detected %s", ErrNotPDF, mtype.String())
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to open pdf: %w", err)
	}

	var text strings.Builder
	pages := reader.NumPage()
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, err := page.GetPlainText(nil)
		if err != nil {
			l.logger.Warn("pdf page text extraction failed",
				zap.String("file", name),
				zap.Int("page", i),
				zap.Error(err))
			continue
		}
		text.WriteString(pageText)
	}

	content := text.String()
	if strings.TrimSpace(content) == "" {
		l.logger.Warn("pdf has no extractable text",
			zap.String("file", name),
			zap.Int("pages", pages))
	}

	return models.Document{
		ID:      uuid.New().String(),
		Name:    name,
		Content: content,
		Pages:   pages,
		Metadata: map[string]interface{}{
			"mime": mtype.String(),
			"size": len(data),
		},
	}, nil
}
