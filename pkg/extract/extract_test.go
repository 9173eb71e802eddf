package extract

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/docbot/internal/models"
	"go.uber.org/zap/zaptest"
)

type constEmbedder struct{}

func (constEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (constEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 1}, nil
}

type scriptedAnswerer struct {
	reply     string
	err       error
	questions []string
	contexts  [][]models.ScoredChunk
}

func (s *scriptedAnswerer) Answer(ctx context.Context, question string, chunks []models.ScoredChunk) (string, error) {
	s.questions = append(s.questions, question)
	s.contexts = append(s.contexts, chunks)
	return s.reply, s.err
}

type streamingAnswerer struct {
	scriptedAnswerer
}

func (s *streamingAnswerer) AnswerStream(ctx context.Context, question string, chunks []models.ScoredChunk, onChunk func(string) error) (string, error) {
	s.questions = append(s.questions, question)
	for _, w := range strings.SplitAfter(s.reply, " ") {
		if err := onChunk(w); err != nil {
			return "", err
		}
	}
	return s.reply, nil
}

func validReply(t *testing.T, tmpl *Template) string {
	t.Helper()
	reply := map[string]any{"docFlag": true}
	for _, f := range tmpl.Fields {
		if f.IsList() {
			reply[f.Key] = []any{}
			continue
		}
		reply[f.Key] = "value of " + f.Key
	}
	b, err := json.Marshal(reply)
	require.NoError(t, err)
	return string(b)
}

func testDocument() models.Document {
	return models.Document{
		ID:      "doc-1",
		Name:    "upload.pdf",
		Content: strings.Repeat("a line of document text\n", 200),
	}
}

func TestTemplates_UseEmbeddedPrompts(t *testing.T) {
	files := map[DocType]string{
		Resume:        "prompts/resume.txt",
		BillOfLoading: "prompts/bill_of_loading.txt",
		Procurement:   "prompts/procurement.txt",
	}
	for docType, file := range files {
		want, err := os.ReadFile(file)
		require.NoError(t, err)

		tmpl, err := Lookup(docType)
		require.NoError(t, err)
		assert.Equal(t, string(want), tmpl.Prompt, docType)
		assert.Equal(t, string(want), tmpl.Query("ignored"), docType)
	}

	ask, err := Lookup(AskYourPDF)
	require.NoError(t, err)
	assert.True(t, ask.FreeForm())

	_, err = Lookup("Invoice")
	assert.ErrorIs(t, err, ErrUnknownDocType)

	assert.Equal(t, []DocType{Resume, BillOfLoading, Procurement, AskYourPDF}, Types())
}

func TestRun_SendsFixedPromptForStructuredTypes(t *testing.T) {
	for _, docType := range []DocType{Resume, BillOfLoading, Procurement} {
		t.Run(string(docType), func(t *testing.T) {
			tmpl, err := Lookup(docType)
			require.NoError(t, err)

			answerer := &scriptedAnswerer{reply: validReply(t, tmpl)}
			ex := New(constEmbedder{}, answerer, WithLogger(zaptest.NewLogger(t)))

			out, err := ex.Run(context.Background(), testDocument(), docType, "this question is ignored")
			require.NoError(t, err)

			require.Len(t, answerer.questions, 1)
			assert.Equal(t, tmpl.Prompt, answerer.questions[0])
			assert.LessOrEqual(t, len(answerer.contexts[0]), DefaultTopK)

			require.NotNil(t, out.Record)
			assert.True(t, out.Record.Matches)
			assert.Equal(t, "value of "+tmpl.Fields[0].Key, out.Record.Values[tmpl.Fields[0].Key])
			assert.NotContains(t, out.Record.Values, "docFlag")
			assert.Nil(t, out.Retriever)
			assert.Greater(t, out.Chunks, 1)
		})
	}
}

func TestRun_FreeFormSendsLiteralQuestion(t *testing.T) {
	answerer := &scriptedAnswerer{reply: "The total is 42."}
	ex := New(constEmbedder{}, answerer, WithTopK(2))

	question := "  what is the TOTAL?\n"
	out, err := ex.Run(context.Background(), testDocument(), AskYourPDF, question)
	require.NoError(t, err)
	defer out.Close()

	require.Len(t, answerer.questions, 1)
	assert.Equal(t, question, answerer.questions[0])
	assert.Len(t, answerer.contexts[0], 2)
	assert.Equal(t, "The total is 42.", out.Answer)
	assert.Nil(t, out.Record)
	assert.NotNil(t, out.Retriever)
}

func TestRun_FreeFormWithoutQuestionOnlyIndexes(t *testing.T) {
	answerer := &scriptedAnswerer{}
	ex := New(constEmbedder{}, answerer)

	out, err := ex.Run(context.Background(), testDocument(), AskYourPDF, "   ")
	require.NoError(t, err)
	defer out.Close()

	assert.Empty(t, answerer.questions)
	assert.NotNil(t, out.Retriever)

	answer, err := ex.Ask(context.Background(), out.Retriever, "follow up", nil)
	require.NoError(t, err)
	assert.Equal(t, "", answer)
	assert.Equal(t, []string{"follow up"}, answerer.questions)
}

func TestRun_DocTypeMismatch(t *testing.T) {
	answerer := &scriptedAnswerer{reply: `{"docFlag": "False", "name": 12, "surprise": true}`}
	ex := New(constEmbedder{}, answerer)

	out, err := ex.Run(context.Background(), testDocument(), Resume, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDocTypeMismatch)

	require.NotNil(t, out)
	require.NotNil(t, out.Record)
	assert.False(t, out.Record.Matches)
	assert.Nil(t, out.Record.Values)
	assert.Nil(t, out.Retriever)
}

func TestRun_ErrorsPropagate(t *testing.T) {
	boom := errors.New("provider down")
	ex := New(constEmbedder{}, &scriptedAnswerer{err: boom})

	_, err := ex.Run(context.Background(), testDocument(), Procurement, "")
	assert.ErrorIs(t, err, boom)

	ex = New(constEmbedder{}, &scriptedAnswerer{reply: "I could not find anything."})
	_, err = ex.Run(context.Background(), testDocument(), Procurement, "")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, Procurement, perr.Type)
	assert.Equal(t, "I could not find anything.", perr.Raw)

	_, err = ex.Run(context.Background(), testDocument(), "Invoice", "")
	assert.ErrorIs(t, err, ErrUnknownDocType)
}

func TestParse(t *testing.T) {
	tmpl, err := Lookup(Resume)
	require.NoError(t, err)
	valid := validReply(t, tmpl)

	tests := []struct {
		name     string
		raw      string
		mismatch bool
		parseErr bool
	}{
		{name: "plain json", raw: valid},
		{name: "fenced json", raw: "```json\n" + valid + "\n```"},
		{name: "prose around json", raw: "Here is the record:\n" + valid + "\nLet me know."},
		{name: "string flag true", raw: strings.Replace(valid, `"docFlag":true`, `"docFlag":"True"`, 1)},
		{name: "flag False string", raw: `{"docFlag": "False"}`, mismatch: true},
		{name: "flag no", raw: `{"docFlag": "no"}`, mismatch: true},
		{name: "flag json false", raw: `{"docFlag": false, "name": ["not", "a", "string"]}`, mismatch: true},
		{name: "flag zero", raw: `{"docFlag": 0}`, mismatch: true},
		{name: "unknown flag", raw: `{"docFlag": "maybe"}`, parseErr: true},
		{name: "missing flag", raw: `{"name": "Ada"}`, parseErr: true},
		{name: "not json", raw: "name: Ada", parseErr: true},
		{name: "python literal", raw: `{'docFlag': True, 'name': 'Ada'}`, parseErr: true},
		{name: "missing field", raw: `{"docFlag": true, "name": "Ada"}`, parseErr: true},
		{name: "extra field", raw: strings.Replace(valid, `{`, `{"salary":"lots",`, 1), parseErr: true},
		{name: "array item wrong type", raw: strings.Replace(valid, `"education":[]`, `"education":["MIT"]`, 1), parseErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := Parse(tmpl, tt.raw)
			switch {
			case tt.mismatch:
				assert.ErrorIs(t, err, ErrDocTypeMismatch)
				require.NotNil(t, record)
				assert.False(t, record.Matches)
				assert.Nil(t, record.Values)
			case tt.parseErr:
				var perr *ParseError
				assert.ErrorAs(t, err, &perr)
				assert.Nil(t, record)
			default:
				require.NoError(t, err)
				assert.True(t, record.Matches)
				assert.Equal(t, "value of name", record.Values["name"])
			}
		})
	}
}

func TestParse_RejectsFreeForm(t *testing.T) {
	tmpl, err := Lookup(AskYourPDF)
	require.NoError(t, err)
	_, err = Parse(tmpl, `{"docFlag": true}`)
	assert.Error(t, err)
}

func TestAsk_Streaming(t *testing.T) {
	ctx := context.Background()
	streamer := &streamingAnswerer{scriptedAnswerer{reply: "three word answer"}}
	ex := New(constEmbedder{}, streamer)

	out, err := ex.Run(ctx, testDocument(), AskYourPDF, "")
	require.NoError(t, err)
	defer out.Close()

	var pieces []string
	answer, err := ex.Ask(ctx, out.Retriever, "question", func(s string) error {
		pieces = append(pieces, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "three word answer", answer)
	assert.Equal(t, []string{"three ", "word ", "answer"}, pieces)

	plain := &scriptedAnswerer{reply: "whole answer"}
	ex = New(constEmbedder{}, plain)
	pieces = nil
	answer, err = ex.Ask(ctx, out.Retriever, "question", func(s string) error {
		pieces = append(pieces, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "whole answer", answer)
	assert.Equal(t, []string{"whole answer"}, pieces)
}
