package provider

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	oaioption "github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/tradeberg/tradeberg/logger"
)

func init() {
	RegisterProvider("openai", ProviderRegistration{
		Models:  []string{"gpt-5", "gpt-5-mini", "gpt-4o"},
		EnvKey:  "OPENAI_API_KEY",
		EnvBase: "OPENAI_API_BASE",
		Constructor: func(apiKey, apiBase, modelType, modelName string, maxTokens int, temperature float64) Provider {
			if modelName == "" {
				modelName = modelType
			}
			return NewOpenAI(apiKey, apiBase, modelName, maxTokens, temperature)
		},
	})
}

// OpenAI streams chat completions through the OpenAI API.
type OpenAI struct {
	client      openai.Client
	modelName   string
	maxTokens   int
	temperature float64
}

// NewOpenAI creates an OpenAI-backed provider. apiBase overrides the
// default endpoint for compatible gateways.
func NewOpenAI(apiKey, apiBase, modelName string, maxTokens int, temperature float64) *OpenAI {
	opts := []oaioption.RequestOption{
		oaioption.WithAPIKey(apiKey),
		oaioption.WithMaxRetries(2),
	}
	if apiBase != "" {
		opts = append(opts, oaioption.WithBaseURL(apiBase))
	}
	return &OpenAI{
		client:      openai.NewClient(opts...),
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// StreamChat sends the conversation and forwards deltas as the model
// produces them.
func (p *OpenAI) StreamChat(ctx context.Context, req *Request, emit StreamFunc) (*Response, error) {
	start := time.Now()
	logger.Info("openai request",
		"provider", "openai",
		"modelName", p.modelName,
		"messages", len(req.Messages),
		"inputChars", requestInputChars(req.Messages))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.modelName),
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: openai.Float(p.temperature),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(p.maxTokens))
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	var content strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := emit(ctx, delta); err != nil {
			return partialResponse(content.String()), err
		}
		content.WriteString(delta)
	}
	if err := stream.Err(); err != nil {
		logger.Error("openai stream failed",
			"provider", "openai",
			"modelName", p.modelName,
			"error", err,
			"latencyMs", time.Since(start).Milliseconds())
		return partialResponse(content.String()), wrapStreamErr(ctx, "openai", err)
	}

	resp := &Response{
		Content: content.String(),
		Usage: Usage{
			PromptTokens:     int(acc.Usage.PromptTokens),
			CompletionTokens: int(acc.Usage.CompletionTokens),
			TotalTokens:      int(acc.Usage.TotalTokens),
		},
	}
	logger.Info("openai response",
		"provider", "openai",
		"modelName", p.modelName,
		"promptTokens", resp.Usage.PromptTokens,
		"completionTokens", resp.Usage.CompletionTokens,
		"outputChars", len(resp.Content),
		"latencyMs", time.Since(start).Milliseconds())
	return resp, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			out = append(out, openai.SystemMessage(msg.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
