package processor_test

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/docbot/internal/models"
	"github.com/xhad/docbot/pkg/processor"
)

func randomText(r *rand.Rand, n int) string {
	alphabet := []rune("abcdefghij klmnop\nqrstuvwxyzé€ ")
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteRune(alphabet[r.Intn(len(alphabet))])
	}
	return b.String()
}

func TestSplit_CoverageAndOverlap(t *testing.T) {
	r := rand.New(rand.NewSource(7))

	configs := []processor.ProcessorConfig{
		{ChunkSize: 1000, ChunkOverlap: 200},
		{ChunkSize: 1250, ChunkOverlap: 200},
		{ChunkSize: 50, ChunkOverlap: 10},
		{ChunkSize: 10, ChunkOverlap: 0},
	}

	for _, cfg := range configs {
		p, err := processor.NewWithConfig(cfg)
		require.NoError(t, err)

		for _, length := range []int{1, 9, 10, 11, 199, 1000, 1001, 4321} {
			text := randomText(r, length)
			runes := []rune(text)
			chunks := p.Split(text)
			require.NotEmpty(t, chunks)

			assert.Equal(t, 0, chunks[0].Start)
			assert.Equal(t, len(runes), chunks[len(chunks)-1].End())

			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), cfg.ChunkSize)
				assert.Equal(t, string(runes[c.Start:c.End()]), c.Text)
				if i > 0 {
					prev := chunks[i-1]
					assert.Equal(t, cfg.ChunkOverlap, prev.End()-c.Start,
						"chunks %d and %d must overlap by exactly %d", i-1, i, cfg.ChunkOverlap)
				}
			}
		}
	}
}

func TestSplit_PrefersNewlines(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 20, ChunkOverlap: 5})
	require.NoError(t, err)

	text := "first line here\nsecond line is longer\nthird"
	chunks := p.Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "first line here\n", chunks[0].Text)
	assert.True(t, strings.HasPrefix(chunks[1].Text, "here\n"))
}

func TestSplit_Empty(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{})
	require.NoError(t, err)
	assert.Nil(t, p.Split(""))
	assert.Equal(t, 1000, p.Config().ChunkSize)
}

func TestNewWithConfig_RejectsOverlap(t *testing.T) {
	_, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 100, ChunkOverlap: 100})
	assert.Error(t, err)

	_, err = processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 100, ChunkOverlap: -1})
	assert.Error(t, err)
}

func TestProcess_DropsInvalidUTF8(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 100, ChunkOverlap: 10})
	require.NoError(t, err)

	chunks := p.Process(models.Document{Content: "bill\xffof lading"})
	require.Len(t, chunks, 1)
	assert.Equal(t, "billof lading", chunks[0].Text)
}
