package config

const (
	defaultProvider         = "mock"
	defaultModelType        = "sim-analyst"
	defaultMaxTokens        = 4096
	defaultTemperature      = 0.7
	defaultHistoryWindow    = 40
	defaultTypingIntervalMs = 24
	defaultServerAddr       = "127.0.0.1:8421"

	defaultWidgetSymbol   = "NASDAQ:AAPL"
	defaultWidgetInterval = "D"
	defaultWidgetTheme    = "dark"
	defaultWidgetLocale   = "en"
	defaultWidgetSource   = "vendor"

	defaultViewportWidth  = 1280
	defaultViewportHeight = 720
	defaultCaptureTimeout = 8000
	defaultCaptureSettle  = 750
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	headless := true
	return &Config{
		Chat: ChatConfig{
			Provider:         defaultProvider,
			ModelType:        defaultModelType,
			MaxTokens:        defaultMaxTokens,
			Temperature:      defaultTemperature,
			HistoryWindow:    defaultHistoryWindow,
			TypingIntervalMs: defaultTypingIntervalMs,
		},
		Providers: ProvidersConfig{},
		Server: &ServerConfig{
			Addr: defaultServerAddr,
		},
		Widget: WidgetConfig{
			Symbol:   defaultWidgetSymbol,
			Interval: defaultWidgetInterval,
			Theme:    defaultWidgetTheme,
			Locale:   defaultWidgetLocale,
			Source:   defaultWidgetSource,
		},
		Capture: CaptureConfig{
			Headless:       &headless,
			ViewportWidth:  defaultViewportWidth,
			ViewportHeight: defaultViewportHeight,
			ScaleFactor:    1.0,
			TimeoutMs:      defaultCaptureTimeout,
			SettleMs:       defaultCaptureSettle,
		},
		Logging: defaultLoggingConfig(),
	}
}

func defaultLoggingConfig() LoggingConfig {
	enabled := true
	return LoggingConfig{
		Enabled: &enabled,
		Level:   "info",
		Stdout:  true,
		File:    "logs/tradeberg.log",
	}
}

func (c *Config) applyDefaults() {
	if c.Chat.Provider == "" {
		c.Chat.Provider = defaultProvider
	}
	if c.Chat.ModelType == "" {
		c.Chat.ModelType = defaultModelType
	}
	if c.Chat.MaxTokens <= 0 {
		c.Chat.MaxTokens = defaultMaxTokens
	}
	if c.Chat.Temperature == 0 {
		c.Chat.Temperature = defaultTemperature
	}
	if c.Chat.HistoryWindow <= 0 {
		c.Chat.HistoryWindow = defaultHistoryWindow
	}
	if c.Chat.TypingIntervalMs <= 0 {
		c.Chat.TypingIntervalMs = defaultTypingIntervalMs
	}

	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}

	if c.Widget.Symbol == "" {
		c.Widget.Symbol = defaultWidgetSymbol
	}
	if c.Widget.Interval == "" {
		c.Widget.Interval = defaultWidgetInterval
	}
	if c.Widget.Theme == "" {
		c.Widget.Theme = defaultWidgetTheme
	}
	if c.Widget.Locale == "" {
		c.Widget.Locale = defaultWidgetLocale
	}
	if c.Widget.Source == "" {
		c.Widget.Source = defaultWidgetSource
	}

	if c.Capture.Headless == nil {
		headless := true
		c.Capture.Headless = &headless
	}
	if c.Capture.ViewportWidth <= 0 {
		c.Capture.ViewportWidth = defaultViewportWidth
	}
	if c.Capture.ViewportHeight <= 0 {
		c.Capture.ViewportHeight = defaultViewportHeight
	}
	if c.Capture.ScaleFactor <= 0 {
		c.Capture.ScaleFactor = 1.0
	}
	if c.Capture.TimeoutMs <= 0 {
		c.Capture.TimeoutMs = defaultCaptureTimeout
	}
	if c.Capture.SettleMs <= 0 {
		c.Capture.SettleMs = defaultCaptureSettle
	}

	def := defaultLoggingConfig()
	if c.Logging == (LoggingConfig{}) {
		c.Logging = def
		return
	}

	hasAny := c.Logging.Level != "" || c.Logging.File != "" || c.Logging.Stdout
	if c.Logging.Enabled == nil && hasAny {
		enabled := true
		c.Logging.Enabled = &enabled
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Level
	}
	if c.Logging.File == "" {
		c.Logging.File = def.File
	}
	if !c.Logging.Stdout && c.Logging.File == "" {
		c.Logging.Stdout = def.Stdout
	}
	if c.Logging.Enabled == nil {
		c.Logging.Enabled = def.Enabled
	}
}
