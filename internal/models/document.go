package models

import "unicode/utf8"

// Document is the plain text extracted from one uploaded file.
type Document struct {
	ID       string
	Name     string
	Content  string
	Pages    int
	Metadata map[string]interface{}
}

// Chunk is a window of a document's text. Start is the character (rune)
// offset of Text in the document content.
type Chunk struct {
	Index int
	Start int
	Text  string
}

// End returns the character offset just past the chunk.
func (c Chunk) End() int {
	return c.Start + utf8.RuneCountInString(c.Text)
}

type ScoredChunk struct {
	Chunk
	Score float32
}
