// Package provider defines the streaming reply provider interface and
// common types.
package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// StreamFunc receives one reply delta. Returning an error aborts the
// stream.
type StreamFunc func(ctx context.Context, delta string) error

// Provider is the interface for reply providers.
type Provider interface {
	// StreamChat sends a chat request and streams the reply through
	// emit as it is produced. When the context is cancelled mid-stream
	// it returns the partial response together with the context error,
	// so callers can keep the text produced so far.
	StreamChat(ctx context.Context, req *Request, emit StreamFunc) (*Response, error)
}

// Request represents a chat completion request.
type Request struct {
	Messages []Message
}

// Message represents a chat message in OpenAI format (internal
// canonical format).
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content,omitempty"`
}

// Response represents a completed (or partially completed) reply.
type Response struct {
	Content string
	Usage   Usage
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderConstructor builds a provider for the requested model and
// runtime settings.
type ProviderConstructor func(apiKey, apiBase, modelType, modelName string, maxTokens int, temperature float64) Provider

// ProviderRegistration defines metadata and constructor for a provider.
type ProviderRegistration struct {
	Models      []string
	EnvKey      string
	EnvBase     string
	Constructor ProviderConstructor
}

// supportedModelTypes is the whitelist of supported model types.
var supportedModelTypes = map[string]bool{}

// providerModelTypes maps providers to their supported model types.
var providerModelTypes = map[string][]string{}

var providerRegistry = map[string]ProviderRegistration{}

// RegisterProvider registers provider metadata and constructor.
func RegisterProvider(name string, reg ProviderRegistration) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	models := make([]string, 0, len(reg.Models))
	for _, model := range reg.Models {
		model = strings.TrimSpace(model)
		if model == "" {
			continue
		}
		models = append(models, model)
		supportedModelTypes[model] = true
	}

	reg.Models = models
	reg.EnvKey = strings.TrimSpace(reg.EnvKey)
	reg.EnvBase = strings.TrimSpace(reg.EnvBase)
	providerRegistry[name] = reg
	providerModelTypes[name] = append([]string(nil), models...)
}

// New builds a provider by registry name. Missing credentials fall
// back to the provider's environment variables.
func New(name, apiKey, apiBase, modelType, modelName string, maxTokens int, temperature float64) (Provider, error) {
	reg, ok := providerRegistry[name]
	if !ok {
		return nil, fmt.Errorf("provider: unknown provider %q", name)
	}
	if err := ValidateProviderModelType(name, modelType); err != nil {
		return nil, err
	}
	if apiKey == "" && reg.EnvKey != "" {
		apiKey = os.Getenv(reg.EnvKey)
	}
	if apiBase == "" && reg.EnvBase != "" {
		apiBase = os.Getenv(reg.EnvBase)
	}
	return reg.Constructor(apiKey, apiBase, modelType, modelName, maxTokens, temperature), nil
}

// SupportedProviders returns all supported provider names in sorted order.
func SupportedProviders() []string {
	names := make([]string, 0, len(providerModelTypes))
	for name := range providerModelTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SupportedModelsForProvider returns supported model types for the given provider.
func SupportedModelsForProvider(providerName string) []string {
	models, ok := providerModelTypes[providerName]
	if !ok {
		return nil
	}
	out := make([]string, len(models))
	copy(out, models)
	return out
}

// ValidateProviderModelType checks if a model type is valid for a provider.
func ValidateProviderModelType(providerName, modelType string) error {
	if !supportedModelTypes[modelType] {
		return errors.New("unsupported model type: " + modelType)
	}

	allowed, ok := providerModelTypes[providerName]
	if !ok {
		return errors.New("unknown provider: " + providerName)
	}

	for _, m := range allowed {
		if m == modelType {
			return nil
		}
	}

	return errors.New("model type " + modelType + " is not supported by provider " + providerName)
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// SystemMessage creates a system message.
func SystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

func requestInputChars(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Role)
		total += len(m.Content)
	}
	return total
}

func partialResponse(content string) *Response {
	return &Response{Content: content}
}

// wrapStreamErr surfaces context cancellation as the context error so
// callers can distinguish a cancelled stream from a failed one.
func wrapStreamErr(ctx context.Context, name string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%s: stream: %w", name, err)
}
