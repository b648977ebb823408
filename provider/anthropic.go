package provider

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tradeberg/tradeberg/logger"
)

func init() {
	RegisterProvider("anthropic", ProviderRegistration{
		Models: []string{"claude-sonnet-4-5", "claude-opus-4-1"},
		EnvKey: "ANTHROPIC_API_KEY",
		Constructor: func(apiKey, apiBase, modelType, modelName string, maxTokens int, temperature float64) Provider {
			if modelName == "" {
				modelName = modelType
			}
			return NewAnthropic(apiKey, apiBase, modelName, maxTokens, temperature)
		},
	})
}

// Anthropic streams replies through the Anthropic Messages API.
type Anthropic struct {
	client      anthropic.Client
	modelName   string
	maxTokens   int
	temperature float64
}

// NewAnthropic creates an Anthropic-backed provider.
func NewAnthropic(apiKey, apiBase, modelName string, maxTokens int, temperature float64) *Anthropic {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if apiBase != "" {
		opts = append(opts, option.WithBaseURL(apiBase))
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Anthropic{
		client:      anthropic.NewClient(opts...),
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// StreamChat sends the conversation and forwards text deltas as the
// model produces them. System messages are lifted into the system
// prompt, which the Messages API keeps separate from turns.
func (p *Anthropic) StreamChat(ctx context.Context, req *Request, emit StreamFunc) (*Response, error) {
	start := time.Now()
	logger.Info("anthropic request",
		"provider", "anthropic",
		"modelName", p.modelName,
		"messages", len(req.Messages),
		"inputChars", requestInputChars(req.Messages))

	system, turns := toAnthropicMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.modelName),
		MaxTokens:   int64(p.maxTokens),
		Temperature: anthropic.Float(p.temperature),
		Messages:    turns,
	}
	if len(system) > 0 {
		params.System = system
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	acc := anthropic.Message{}
	var content strings.Builder
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return partialResponse(content.String()), wrapStreamErr(ctx, "anthropic", err)
		}
		eventVariant, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		textDelta, ok := eventVariant.Delta.AsAny().(anthropic.TextDelta)
		if !ok || textDelta.Text == "" {
			continue
		}
		if err := emit(ctx, textDelta.Text); err != nil {
			return partialResponse(content.String()), err
		}
		content.WriteString(textDelta.Text)
	}
	if err := stream.Err(); err != nil {
		logger.Error("anthropic stream failed",
			"provider", "anthropic",
			"modelName", p.modelName,
			"error", err,
			"latencyMs", time.Since(start).Milliseconds())
		return partialResponse(content.String()), wrapStreamErr(ctx, "anthropic", err)
	}

	resp := &Response{
		Content: content.String(),
		Usage: Usage{
			PromptTokens:     int(acc.Usage.InputTokens),
			CompletionTokens: int(acc.Usage.OutputTokens),
			TotalTokens:      int(acc.Usage.InputTokens + acc.Usage.OutputTokens),
		},
	}
	logger.Info("anthropic response",
		"provider", "anthropic",
		"modelName", p.modelName,
		"promptTokens", resp.Usage.PromptTokens,
		"completionTokens", resp.Usage.CompletionTokens,
		"outputChars", len(resp.Content),
		"latencyMs", time.Since(start).Milliseconds())
	return resp, nil
}

func toAnthropicMessages(messages []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	turns := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case "assistant":
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return system, turns
}
