// Package config handles configuration loading and saving.
package config

import (
	"strings"

	schedulepkg "github.com/tradeberg/tradeberg/schedule"
)

const (
	configFileName = "config.yaml"
)

var configDirOverride string

// SetConfigDir overrides the config directory for the current process.
// Empty value clears the override.
func SetConfigDir(dir string) {
	configDirOverride = strings.TrimSpace(dir)
}

// Config is the root configuration structure.
type Config struct {
	Chat      ChatConfig       `json:"chat" yaml:"chat"`
	Providers ProvidersConfig  `json:"providers" yaml:"providers"`
	Server    *ServerConfig    `json:"server" yaml:"server"`
	Widget    WidgetConfig     `json:"widget,omitempty" yaml:"widget,omitempty"`
	Capture   CaptureConfig    `json:"capture,omitempty" yaml:"capture,omitempty"`
	Logging   LoggingConfig    `json:"logging,omitempty" yaml:"logging,omitempty"`
	Snapshots []schedulepkg.Job `json:"snapshots,omitempty" yaml:"snapshots,omitempty"`
}

// ChatConfig contains chat runtime defaults.
type ChatConfig struct {
	Provider         string  `json:"provider" yaml:"provider"` // mock, openai, anthropic
	ModelType        string  `json:"modelType" yaml:"modelType"`
	ModelName        string  `json:"modelName,omitempty" yaml:"modelName,omitempty"`               // optional, defaults to modelType
	Workspace        string  `json:"workspace,omitempty" yaml:"workspace,omitempty"`               // defaults to ~/.tradeberg/workspace
	MaxTokens        int     `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`               // defaults to 4096
	Temperature      float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`           // defaults to 0.7
	HistoryWindow    int     `json:"historyWindow,omitempty" yaml:"historyWindow,omitempty"`       // messages sent per request, defaults to 40
	TypingIntervalMs int     `json:"typingIntervalMs,omitempty" yaml:"typingIntervalMs,omitempty"` // mock stream cadence, defaults to 24
	SystemPrompt     string  `json:"systemPrompt,omitempty" yaml:"systemPrompt,omitempty"`
}

// ProvidersConfig contains provider API configurations.
type ProvidersConfig struct {
	OpenAI    *ProviderConfig `json:"openai,omitempty" yaml:"openai,omitempty"`
	Anthropic *ProviderConfig `json:"anthropic,omitempty" yaml:"anthropic,omitempty"`
}

// ProviderConfig contains API credentials for a provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" yaml:"apiKey"`
	APIBase string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"` // optional custom base URL
}

// ServerConfig contains web server configuration.
type ServerConfig struct {
	Addr           string   `json:"addr,omitempty" yaml:"addr,omitempty"`           // default: 127.0.0.1:8421
	PublicURL      string   `json:"publicUrl,omitempty" yaml:"publicUrl,omitempty"` // default: http://<addr>
	AllowedOrigins []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`
}

// WidgetConfig contains chart widget defaults.
type WidgetConfig struct {
	Symbol   string `json:"symbol,omitempty" yaml:"symbol,omitempty"`     // default: NASDAQ:AAPL
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"` // default: D
	Theme    string `json:"theme,omitempty" yaml:"theme,omitempty"`       // dark or light
	Locale   string `json:"locale,omitempty" yaml:"locale,omitempty"`     // default: en
	Source   string `json:"source,omitempty" yaml:"source,omitempty"`     // vendor or builtin
}

// CaptureConfig contains snapshot engine configuration.
type CaptureConfig struct {
	BrowserBin     string  `json:"browserBin,omitempty" yaml:"browserBin,omitempty"`         // explicit Chrome/Chromium binary
	DebuggerURL    string  `json:"debuggerUrl,omitempty" yaml:"debuggerUrl,omitempty"`       // attach to an already running browser
	Headless       *bool   `json:"headless,omitempty" yaml:"headless,omitempty"`             // default: true
	NoSandbox      bool    `json:"noSandbox,omitempty" yaml:"noSandbox,omitempty"`           // required in most containers
	ViewportWidth  int     `json:"viewportWidth,omitempty" yaml:"viewportWidth,omitempty"`   // default: 1280
	ViewportHeight int     `json:"viewportHeight,omitempty" yaml:"viewportHeight,omitempty"` // default: 720
	ScaleFactor    float64 `json:"scaleFactor,omitempty" yaml:"scaleFactor,omitempty"`       // default: 1.0
	TimeoutMs      int     `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`           // whole-capture deadline, default: 8000
	SettleMs       int     `json:"settleMs,omitempty" yaml:"settleMs,omitempty"`             // post-render settle, default: 750
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Level   string `json:"level,omitempty" yaml:"level,omitempty"`   // debug, info, warn, error
	Stdout  bool   `json:"stdout,omitempty" yaml:"stdout,omitempty"` // log to stdout
	File    string `json:"file,omitempty" yaml:"file,omitempty"`     // log file path
}
