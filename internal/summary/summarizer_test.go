package summary

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wechat_digest/internal/domain"
)

func TestTruncateShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "短文本。", Truncate("短文本。", 50))
}

func TestTruncatePrefersSentenceBoundary(t *testing.T) {
	text := strings.Repeat("字", 30) + "。" + strings.Repeat("字", 40)
	got := Truncate(text, 50)
	assert.Equal(t, strings.Repeat("字", 30)+"。", got)
}

func TestTruncateHardCutWhenNoBoundary(t *testing.T) {
	text := strings.Repeat("字", 80)
	got := Truncate(text, 50)
	assert.Equal(t, 51, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestTruncateIgnoresEarlyBoundary(t *testing.T) {
	// A boundary in the first half wastes too much of the window.
	text := "短。" + strings.Repeat("字", 80)
	got := Truncate(text, 50)
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestHashVectorDeterministicUnitLength(t *testing.T) {
	a := HashVector("人工智能的新进展")
	b := HashVector("人工智能的新进展")
	c := HashVector("completely different")

	require.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	var norm float64
	for _, v := range a {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestSummarizeWithoutAPIFallsBack(t *testing.T) {
	s := NewSummarizer(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	article := &domain.Article{
		Title:   "标题",
		Excerpt: strings.Repeat("内容", 60),
	}
	text, model := s.Summarize(context.Background(), article)
	assert.Equal(t, FallbackModel, model)
	assert.LessOrEqual(t, len([]rune(text)), 51)
	assert.NotEmpty(t, text)
}

func TestSummarizeEmptyArticle(t *testing.T) {
	s := NewSummarizer(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	text, model := s.Summarize(context.Background(), &domain.Article{})
	assert.Equal(t, FallbackModel, model)
	assert.Empty(t, text)
}

func TestEmbedWithoutAPIUsesLocalVector(t *testing.T) {
	s := NewSummarizer(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	encoded, model := s.Embed(context.Background(), "some text")
	assert.Equal(t, LocalVectorModel, model)
	assert.True(t, strings.HasPrefix(encoded, "["))
}
