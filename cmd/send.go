package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradeberg/tradeberg/bus"
	"github.com/tradeberg/tradeberg/chat"
	"github.com/tradeberg/tradeberg/chatsvc"
	"github.com/tradeberg/tradeberg/config"
)

var sendCmd = &cobra.Command{
	Use:   "send [text]",
	Short: "Send one message and stream the reply",
	Long: `Send a single message to the configured provider and stream the
reply to stdout. Uses the same conversation store as the service.

Use --provider, --model, --api-key, --api-base to override config at
runtime, which allows testing providers without editing config.yaml.

Examples:
  tradeberg send "how is NASDAQ:AAPL trending?"
  tradeberg send --conversation 2f1c... "and compared to MSFT?"
  tradeberg send --provider anthropic --api-key sk-ant-xxx "hi"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSend,
}

var (
	sendText         string
	sendConversation string
	sendProvider     string
	sendModel        string
	sendAPIKey       string
	sendAPIBase      string
)

func init() {
	sendCmd.Flags().StringVar(&sendText, "text", "", "Message text (or pass as argument)")
	sendCmd.Flags().StringVar(&sendConversation, "conversation", "", "Continue an existing conversation by ID")
	sendCmd.Flags().StringVar(&sendProvider, "provider", "", "Override provider (mock, openai, anthropic)")
	sendCmd.Flags().StringVar(&sendModel, "model", "", "Override model type (e.g. gpt-5-mini)")
	sendCmd.Flags().StringVar(&sendAPIKey, "api-key", "", "Override API key")
	sendCmd.Flags().StringVar(&sendAPIBase, "api-base", "", "Override API base URL")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	text := strings.TrimSpace(sendText)
	if text == "" && len(args) > 0 {
		text = strings.TrimSpace(args[0])
	}
	if text == "" {
		return fmt.Errorf("message text is required (--text or argument)")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applySendOverrides(cfg)

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

	eventBus := bus.NewBus(64)
	defer eventBus.Close()

	svc := chatsvc.New(store, prov, eventBus, nil, nil, chatsvc.Config{
		SystemPrompt:  cfg.Chat.SystemPrompt,
		HistoryWindow: cfg.Chat.HistoryWindow,
	})
	defer svc.Close()

	// The only traffic on this bus is our own reply.
	done := make(chan *bus.Event, 1)
	subID := eventBus.Subscribe(bus.EventAny, func(ctx context.Context, event *bus.Event) {
		switch event.Type {
		case bus.EventReplyChunk:
			var data bus.ReplyEventData
			if event.ParseData(&data) == nil {
				fmt.Print(data.Delta)
			}
		case bus.EventReplyDone, bus.EventReplyCancelled, bus.EventReplyFailed:
			select {
			case done <- event:
			default:
			}
		}
	})
	defer eventBus.Unsubscribe(subID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if sendConversation != "" {
		if _, err := svc.SendMessage(ctx, sendConversation, text); err != nil {
			return err
		}
	} else {
		if _, err := svc.CreateConversation(ctx, text); err != nil {
			return err
		}
	}

	select {
	case event := <-done:
		fmt.Println()
		if event.Type == bus.EventReplyFailed {
			var data bus.ReplyEventData
			_ = event.ParseData(&data)
			return fmt.Errorf("reply failed: %s", data.Error)
		}
		if event.Type == bus.EventReplyCancelled {
			fmt.Println("(reply cancelled)")
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for the reply")
	}
}

// applySendOverrides applies CLI flag overrides to config so providers
// can be tested side by side without editing config.yaml.
func applySendOverrides(cfg *config.Config) {
	if sendProvider != "" {
		cfg.Chat.Provider = sendProvider
	}
	if sendModel != "" {
		cfg.Chat.ModelType = sendModel
		cfg.Chat.ModelName = "" // reset so modelType takes effect
	}

	providerName := cfg.Chat.Provider
	if sendAPIKey != "" {
		switch providerName {
		case "openai":
			if cfg.Providers.OpenAI == nil {
				cfg.Providers.OpenAI = &config.ProviderConfig{}
			}
			cfg.Providers.OpenAI.APIKey = sendAPIKey
		case "anthropic":
			if cfg.Providers.Anthropic == nil {
				cfg.Providers.Anthropic = &config.ProviderConfig{}
			}
			cfg.Providers.Anthropic.APIKey = sendAPIKey
		}
	}
	if sendAPIBase != "" {
		switch providerName {
		case "openai":
			if cfg.Providers.OpenAI == nil {
				cfg.Providers.OpenAI = &config.ProviderConfig{}
			}
			cfg.Providers.OpenAI.APIBase = sendAPIBase
		case "anthropic":
			if cfg.Providers.Anthropic == nil {
				cfg.Providers.Anthropic = &config.ProviderConfig{}
			}
			cfg.Providers.Anthropic.APIBase = sendAPIBase
		}
	}
}
