// Package summary produces short article summaries and embedding vectors.
// When no API key is configured, or a call fails, it degrades to local
// fallbacks: excerpt truncation and a hash-derived vector.
package summary

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	openai "github.com/sashabaranov/go-openai"

	"wechat_digest/internal/domain"
)

const (
	// FallbackModel marks summaries produced without the API.
	FallbackModel = "fallback"
	// LocalVectorModel marks hash-derived embedding vectors.
	LocalVectorModel = "local-hash"

	summaryRuneLimit = 50
	vectorDims       = 64
)

type Config struct {
	APIKey           string
	BaseURL          string
	ChatModel        string
	EmbedModel       string
	SourceCharLimit  int
	FetchTimeoutSecs int
}

type Summarizer struct {
	client    *openai.Client
	enabled   bool
	chatModel string
	embModel  string
	charLimit int
	fetch     *http.Client
	logger    *slog.Logger
}

func NewSummarizer(cfg Config, logger *slog.Logger) *Summarizer {
	s := &Summarizer{
		enabled:   cfg.APIKey != "",
		chatModel: cfg.ChatModel,
		embModel:  cfg.EmbedModel,
		charLimit: cfg.SourceCharLimit,
		fetch:     &http.Client{Timeout: time.Duration(cfg.FetchTimeoutSecs) * time.Second},
		logger:    logger,
	}
	if s.enabled {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		s.client = openai.NewClientWithConfig(clientCfg)
	}
	return s
}

// Summarize returns a short summary for the article and the model that
// produced it. It never fails outright: every error path lands on the
// truncated-excerpt fallback.
func (s *Summarizer) Summarize(ctx context.Context, article *domain.Article) (string, string) {
	if !s.enabled {
		return Truncate(fallbackSource(article), summaryRuneLimit), FallbackModel
	}

	source := s.fullText(ctx, article)
	if source == "" {
		source = fallbackSource(article)
	}
	if source == "" {
		return "", FallbackModel
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "你是一个公众号文章摘要助手。用一句不超过50字的中文概括文章要点,不要评论,不要前缀。",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("标题:%s\n\n%s", article.Title, source),
			},
		},
		MaxTokens:   120,
		Temperature: 0.2,
	})
	if err != nil || len(resp.Choices) == 0 {
		s.logger.Warn("summary request failed, using excerpt",
			slog.String("title", article.Title),
			slog.Any("error", err))
		return Truncate(fallbackSource(article), summaryRuneLimit), FallbackModel
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	return Truncate(text, summaryRuneLimit), s.chatModel
}

// Embed returns a JSON-encoded embedding vector and the model that produced
// it. Without the API it derives a deterministic unit vector from the text
// hash, so cosine similarity still behaves.
func (s *Summarizer) Embed(ctx context.Context, text string) (string, string) {
	if s.enabled {
		resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(s.embModel),
			Input: []string{Truncate(text, 2000)},
		})
		if err == nil && len(resp.Data) > 0 {
			encoded, err := json.Marshal(resp.Data[0].Embedding)
			if err == nil {
				return string(encoded), s.embModel
			}
		}
		s.logger.Warn("embedding request failed, using local vector", slog.Any("error", err))
	}

	encoded, _ := json.Marshal(HashVector(text))
	return string(encoded), LocalVectorModel
}

func (s *Summarizer) fullText(ctx context.Context, article *domain.Article) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, article.URL, nil)
	if err != nil {
		return ""
	}
	resp, err := s.fetch.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	parsed, err := readability.FromReader(resp.Body, resp.Request.URL)
	if err != nil {
		return ""
	}
	return Truncate(strings.TrimSpace(parsed.TextContent), s.charLimit)
}

func fallbackSource(article *domain.Article) string {
	if article.Excerpt != "" {
		return article.Excerpt
	}
	return article.Title
}

// Truncate cuts text to at most limit runes, preferring to break after the
// last sentence-ending punctuation in the window.
func Truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	window := runes[:limit]
	cut := -1
	for i, r := range window {
		switch r {
		case '。', '！', '？', '.', '!', '?', '；', ';':
			cut = i
		}
	}
	if cut >= limit/2 {
		return string(window[:cut+1])
	}
	return strings.TrimSpace(string(window)) + "…"
}

// HashVector derives a deterministic 64-dimension unit vector from the text.
func HashVector(text string) []float64 {
	vec := make([]float64, vectorDims)
	digest := sha256.Sum256([]byte(text))
	for i := 0; i < vectorDims; i++ {
		// Stretch the 32-byte digest by rehashing with the dimension index.
		block := sha256.Sum256(append(digest[:], byte(i)))
		raw := binary.BigEndian.Uint64(block[:8])
		vec[i] = float64(raw)/float64(math.MaxUint64)*2 - 1
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
