package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tradeberg/tradeberg/logger"
)

const defaultMockModel = "sim-analyst"

func init() {
	RegisterProvider("mock", ProviderRegistration{
		Models: []string{defaultMockModel},
		Constructor: func(apiKey, apiBase, modelType, modelName string, maxTokens int, temperature float64) Provider {
			if modelName == "" {
				modelName = modelType
			}
			return NewMock(MockConfig{ModelName: modelName})
		},
	})
}

// MockConfig tunes the simulated analyst.
type MockConfig struct {
	ModelName string

	// TypingInterval is the pause between emitted chunks, simulating
	// a model typing. Zero disables pacing.
	TypingInterval time.Duration

	// ChunkRunes is the chunk size in runes. Defaults to 12.
	ChunkRunes int
}

// Mock is a deterministic offline provider. It composes a canned
// market commentary from the prompt and streams it with a typing
// cadence, making the full reply pipeline exercisable without any
// API credentials.
type Mock struct {
	modelName  string
	interval   time.Duration
	chunkRunes int
}

// NewMock creates the simulated analyst provider.
func NewMock(cfg MockConfig) *Mock {
	if cfg.ModelName == "" {
		cfg.ModelName = defaultMockModel
	}
	if cfg.ChunkRunes <= 0 {
		cfg.ChunkRunes = 12
	}
	return &Mock{
		modelName:  cfg.ModelName,
		interval:   cfg.TypingInterval,
		chunkRunes: cfg.ChunkRunes,
	}
}

// StreamChat streams a composed commentary chunk by chunk.
func (m *Mock) StreamChat(ctx context.Context, req *Request, emit StreamFunc) (*Response, error) {
	start := time.Now()
	logger.Info("mock request",
		"provider", "mock",
		"modelName", m.modelName,
		"inputChars", requestInputChars(req.Messages))

	reply := m.compose(req)

	var sent strings.Builder
	for _, chunk := range chunkRunes(reply, m.chunkRunes) {
		if m.interval > 0 {
			select {
			case <-ctx.Done():
				return m.finish(req, sent.String()), ctx.Err()
			case <-time.After(m.interval):
			}
		} else if err := ctx.Err(); err != nil {
			return m.finish(req, sent.String()), err
		}

		if err := emit(ctx, chunk); err != nil {
			return m.finish(req, sent.String()), err
		}
		sent.WriteString(chunk)
	}

	resp := m.finish(req, sent.String())
	logger.Info("mock response",
		"provider", "mock",
		"modelName", m.modelName,
		"promptTokens", resp.Usage.PromptTokens,
		"completionTokens", resp.Usage.CompletionTokens,
		"totalTokens", resp.Usage.TotalTokens,
		"outputChars", len(resp.Content),
		"latencyMs", time.Since(start).Milliseconds())
	return resp, nil
}

func (m *Mock) finish(req *Request, content string) *Response {
	prompt := 0
	for _, msg := range req.Messages {
		prompt += tokenCount(msg.Content)
	}
	completion := tokenCount(content)
	return &Response{
		Content: content,
		Usage: Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}
}

var mockOpeners = []string{
	"Looking at this setup, the first thing that stands out is the structure of the recent move.",
	"This chart is telling a fairly clean story right now.",
	"A few things worth flagging on this timeframe.",
	"Price action here has been constructive, with some caveats.",
}

var mockObservations = []string{
	"Volume has been fading on the latest push, which usually means the move needs a pause before continuation.",
	"The last consolidation resolved upward, and prior resistance is now acting as support on retests.",
	"Momentum is stretched versus its recent range, so chasing at these levels carries poor risk-reward.",
	"The range lows have been defended several times, suggesting real demand sitting under the market.",
	"Higher lows keep stacking against a flat ceiling, a pattern that tends to resolve in the direction of the squeeze.",
}

var mockRisks = []string{
	"The obvious risk is a failed breakout that traps late entries, so watch how price behaves on the first pullback.",
	"If the broader tape rolls over, this setup invalidates quickly below the last swing low.",
	"Earnings and macro prints can cut through this structure, so position sizing matters more than the entry.",
}

var mockClosers = []string{
	"Not financial advice, just how the chart reads to me.",
	"Worth watching the next few sessions before committing either way.",
	"I'd want confirmation from volume before treating this as a trend change.",
}

// compose builds a deterministic commentary for the request, so the
// same conversation always streams the same reply.
func (m *Mock) compose(req *Request) string {
	prompt := lastUserContent(req.Messages)
	seed := fnvHash(prompt)

	var b strings.Builder
	if symbol := extractSymbol(prompt); symbol != "" {
		fmt.Fprintf(&b, "On %s: ", symbol)
	}
	if strings.Contains(prompt, "[attached:") {
		b.WriteString("Going off the chart you attached. ")
	}
	b.WriteString(mockOpeners[seed%uint64(len(mockOpeners))])
	b.WriteString(" ")
	b.WriteString(mockObservations[(seed/7)%uint64(len(mockObservations))])
	b.WriteString(" ")
	b.WriteString(mockRisks[(seed/31)%uint64(len(mockRisks))])
	b.WriteString(" ")
	b.WriteString(mockClosers[(seed/101)%uint64(len(mockClosers))])
	return b.String()
}

func lastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// extractSymbol finds an exchange-prefixed ticker like NASDAQ:AAPL in
// the prompt.
func extractSymbol(prompt string) string {
	for _, field := range strings.Fields(prompt) {
		field = strings.Trim(field, ".,!?()[]")
		colon := strings.Index(field, ":")
		if colon <= 0 || colon == len(field)-1 {
			continue
		}
		if isTickerPart(field[:colon]) && isTickerPart(field[colon+1:]) {
			return field
		}
	}
	return ""
}

func isTickerPart(s string) bool {
	if len(s) == 0 || len(s) > 12 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-', r == '!':
		default:
			return false
		}
	}
	return true
}

func chunkRunes(s string, size int) []string {
	runes := []rune(s)
	out := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

func fnvHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

var (
	tokenizerOnce  sync.Once
	tokenizerCodec tokenizer.Codec
)

// tokenCount measures text with the cl100k vocabulary, falling back
// to a bytes/4 estimate if the vocabulary cannot be loaded.
func tokenCount(text string) int {
	if text == "" {
		return 0
	}
	tokenizerOnce.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			logger.Warn("tokenizer unavailable, estimating usage", "error", err)
			return
		}
		tokenizerCodec = codec
	})
	if tokenizerCodec != nil {
		if ids, _, err := tokenizerCodec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return (len(text) + 3) / 4
}
