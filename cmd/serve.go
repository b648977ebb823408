package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradeberg/tradeberg/bus"
	"github.com/tradeberg/tradeberg/capture"
	"github.com/tradeberg/tradeberg/channel"
	"github.com/tradeberg/tradeberg/chat"
	"github.com/tradeberg/tradeberg/chatsvc"
	"github.com/tradeberg/tradeberg/config"
	"github.com/tradeberg/tradeberg/internal/health"
	"github.com/tradeberg/tradeberg/logger"
	"github.com/tradeberg/tradeberg/provider"
	"github.com/tradeberg/tradeberg/schedule"
	"github.com/tradeberg/tradeberg/unfurl"
	"github.com/tradeberg/tradeberg/widget"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tradeberg service",
	Long: `Start tradeberg as a long-running service: web UI with the chart
widget, streaming chat API, snapshot engine, and scheduled snapshots.

Examples:
  tradeberg serve                  # web UI on the configured address
  tradeberg serve --cli            # also attach an interactive terminal
  tradeberg serve --addr :9000     # override the listen address
  tradeberg serve --no-capture     # run without the snapshot browser`,
	RunE: runServe,
}

var (
	serveCLI       bool
	serveAddr      string
	serveNoCapture bool
)

func init() {
	serveCmd.Flags().BoolVar(&serveCLI, "cli", false, "Attach an interactive terminal channel")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoCapture, "no-capture", false, "Disable the chart snapshot engine")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	workspace, err := config.WorkspacePath(cfg)
	if err != nil {
		return err
	}

	store, err := chat.NewStore(workspace)
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}

	prov, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	addr := strings.TrimSpace(serveAddr)
	if addr == "" {
		addr = cfg.Server.Addr
	}
	publicURL := strings.TrimSpace(cfg.Server.PublicURL)
	if publicURL == "" {
		publicURL = "http://" + addr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var engine *capture.Engine
	if !serveNoCapture {
		engine = capture.NewEngine(buildEngineConfig(cfg.Capture))
		if err := engine.Start(ctx); err != nil {
			logger.Warn("capture engine unavailable", "err", err)
			fmt.Println("Chart capture unavailable:", err)
		}
	}

	eventBus := bus.NewBus(256)

	var snap capture.Snapshotter
	if engine != nil {
		snap = engine
	}
	svc := chatsvc.New(store, prov, eventBus, snap, unfurl.New(), chatsvc.Config{
		SystemPrompt:  cfg.Chat.SystemPrompt,
		HistoryWindow: cfg.Chat.HistoryWindow,
		PublicURL:     publicURL,
		Widget: widget.Options{
			Symbol:   cfg.Widget.Symbol,
			Interval: cfg.Widget.Interval,
			Theme:    cfg.Widget.Theme,
			Locale:   cfg.Widget.Locale,
			Source:   cfg.Widget.Source,
		},
	})

	scheduler := schedule.NewScheduler(
		filepath.Join(workspace, "snapshots.yaml"),
		buildSnapshotRunner(svc),
	)

	manager := channel.NewManager()
	manager.Register(channel.NewWebChannel(svc, eventBus, channel.WebConfig{
		Addr:           addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		HealthProbe: func(opts health.Options) health.Options {
			opts.CaptureEnabled = engine != nil
			if engine != nil {
				opts.CaptureConnected = engine.Connected()
			}
			opts.ScheduledJobs = scheduler.Count()
			return opts
		},
	}))
	logger.Info("web channel enabled", "addr", addr)

	manager.Register(channel.NewScheduleChannel(scheduler, cfg.Snapshots))

	if serveCLI {
		manager.Register(channel.NewCLIChannel(svc, eventBus))
		logger.Info("cli channel enabled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start channels: %w", err)
	}

	logger.Info("tradeberg service started", "addr", addr, "provider", cfg.Chat.Provider)
	if web, ok := manager.Get("web"); ok {
		if wc, ok := web.(*channel.WebChannel); ok {
			fmt.Printf("tradeberg is running at http://%s (Ctrl+C to stop)\n", wc.Addr())
		}
	}

	<-ctx.Done()

	if err := manager.StopAll(); err != nil {
		logger.Error("error stopping channels", "err", err)
	}
	svc.Close()
	if engine != nil {
		engine.Shutdown()
	}
	eventBus.Close()

	logger.Info("tradeberg service stopped")
	return nil
}

// buildProvider constructs the chat provider from config. The mock
// provider is built directly so the typing cadence applies.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	chatCfg := cfg.Chat
	if chatCfg.Provider == "" || chatCfg.Provider == "mock" {
		return provider.NewMock(provider.MockConfig{
			ModelName:      chatCfg.ModelName,
			TypingInterval: time.Duration(chatCfg.TypingIntervalMs) * time.Millisecond,
		}), nil
	}

	apiKey, apiBase := providerCredentials(cfg, chatCfg.Provider)
	prov, err := provider.New(chatCfg.Provider, apiKey, apiBase,
		chatCfg.ModelType, chatCfg.ModelName, chatCfg.MaxTokens, chatCfg.Temperature)
	if err != nil {
		return nil, fmt.Errorf("%w\nRun 'tradeberg onboard' to reconfigure", err)
	}
	return prov, nil
}

func providerCredentials(cfg *config.Config, name string) (apiKey, apiBase string) {
	var pc *config.ProviderConfig
	switch name {
	case "openai":
		pc = cfg.Providers.OpenAI
	case "anthropic":
		pc = cfg.Providers.Anthropic
	}
	if pc == nil {
		return "", ""
	}
	return pc.APIKey, pc.APIBase
}

func buildEngineConfig(c config.CaptureConfig) capture.EngineConfig {
	headless := true
	if c.Headless != nil {
		headless = *c.Headless
	}
	return capture.EngineConfig{
		BrowserBin:     c.BrowserBin,
		DebuggerURL:    c.DebuggerURL,
		Headless:       headless,
		NoSandbox:      c.NoSandbox,
		ViewportWidth:  c.ViewportWidth,
		ViewportHeight: c.ViewportHeight,
		ScaleFactor:    c.ScaleFactor,
		Timeout:        time.Duration(c.TimeoutMs) * time.Millisecond,
		Settle:         time.Duration(c.SettleMs) * time.Millisecond,
	}
}

// buildSnapshotRunner delivers a scheduled snapshot: capture the chart
// into the job's conversation, then send the note so the analyst
// comments on the fresh chart. A deleted conversation is replaced and
// the new id reported back for pinning.
func buildSnapshotRunner(svc *chatsvc.Service) schedule.Runner {
	return func(job *schedule.Job) (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		convID := job.Conversation
		if convID != "" {
			if _, err := svc.Conversation(convID); err != nil {
				convID = ""
			}
		}
		if convID == "" {
			conv, err := svc.CreateConversation(ctx, "")
			if err != nil {
				return "", err
			}
			convID = conv.ID
		}

		if _, err := svc.Capture(ctx, convID, widget.Options{
			Symbol:   job.Symbol,
			Interval: job.Interval,
			Theme:    job.Theme,
		}); err != nil {
			return convID, err
		}

		note := job.Note
		if note == "" {
			note = fmt.Sprintf("Scheduled check-in on %s.", job.Symbol)
		}
		if _, err := svc.SendMessage(ctx, convID, note); err != nil {
			return convID, err
		}
		return convID, nil
	}
}
