package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tradeberg/tradeberg/config"
	"github.com/tradeberg/tradeberg/provider"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize tradeberg configuration",
	Long:  `Create the tradeberg configuration directory and default config file.`,
	RunE:  runOnboard,
}

func init() {
	rootCmd.AddCommand(onboardCmd)
}

// providerURLs maps provider names to their API key portal URLs.
var providerURLs = map[string]string{
	"openai":    "https://platform.openai.com/api-keys",
	"anthropic": "https://console.anthropic.com",
}

func runOnboard(_ *cobra.Command, _ []string) error {
	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Config already exists at:", configPath)
		fmt.Println("To reconfigure, edit the file directly or delete it first.")
		return nil
	}

	// --- interactive wizard ---

	var (
		selectedProvider string
		selectedModel    string
		apiKey           string
		symbol           string
		theme            string
		noSandbox        bool
	)

	// Step 1: select provider
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose your chat provider").
				Description("The mock analyst needs no API key and exercises everything, including chart capture.").
				Options(buildProviderOptions()...).
				Value(&selectedProvider),
		),
	).Run()
	if err != nil {
		return err
	}

	// Step 2: select model (dynamic based on provider)
	modelOptions := buildModelOptions(selectedProvider)
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose model for "+selectedProvider).
				Description("The first option is the recommended default.").
				Options(modelOptions...).
				Value(&selectedModel),
		),
	).Run()
	if err != nil {
		return err
	}

	// Step 3: API key (mock runs without credentials)
	if selectedProvider != "mock" {
		keyURL := providerURLs[selectedProvider]
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Enter your "+selectedProvider+" API key").
					Description("Create one at "+keyURL).
					EchoMode(huh.EchoModePassword).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return fmt.Errorf("API key is required")
						}
						return nil
					}).
					Value(&apiKey),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	// Step 4: chart defaults
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Default chart symbol").
				Description("EXCHANGE:TICKER, e.g. NASDAQ:AAPL or BINANCE:BTCUSDT. Leave empty for NASDAQ:AAPL.").
				Value(&symbol),
			huh.NewSelect[string]().
				Title("Chart theme").
				Options(
					huh.NewOption("dark", "dark"),
					huh.NewOption("light", "light"),
				).
				Value(&theme),
			huh.NewConfirm().
				Title("Run the capture browser with --no-sandbox?").
				Description("Required when tradeberg runs as root or inside a container.").
				Value(&noSandbox),
		),
	).Run()
	if err != nil {
		return err
	}

	// --- apply config ---

	cfg := config.DefaultConfig()
	cfg.Chat.Provider = selectedProvider
	cfg.Chat.ModelType = selectedModel
	if key := strings.TrimSpace(apiKey); key != "" {
		switch selectedProvider {
		case "openai":
			cfg.Providers.OpenAI = &config.ProviderConfig{APIKey: key}
		case "anthropic":
			cfg.Providers.Anthropic = &config.ProviderConfig{APIKey: key}
		}
	}
	if s := strings.TrimSpace(symbol); s != "" {
		cfg.Widget.Symbol = strings.ToUpper(s)
	}
	if theme != "" {
		cfg.Widget.Theme = theme
	}
	cfg.Capture.NoSandbox = noSandbox

	// --- create directories and files ---

	workspace, err := config.WorkspacePath(cfg)
	if err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("tradeberg initialized successfully!")
	fmt.Println()
	fmt.Println("  Config:      ", configPath)
	fmt.Println("  Workspace:   ", workspace)
	fmt.Println("  Provider:    ", selectedProvider)
	fmt.Println("  Model:       ", selectedModel)
	fmt.Println("  Symbol:      ", cfg.Widget.Symbol)
	fmt.Println()
	fmt.Println("Run 'tradeberg serve' to start.")
	return nil
}

func buildProviderOptions() []huh.Option[string] {
	names := provider.SupportedProviders()
	// Put mock first.
	sorted := make([]string, 0, len(names))
	for _, n := range names {
		if n == "mock" {
			sorted = append([]string{n}, sorted...)
		} else {
			sorted = append(sorted, n)
		}
	}
	options := make([]huh.Option[string], 0, len(sorted))
	for _, name := range sorted {
		models := provider.SupportedModelsForProvider(name)
		label := name + " (" + strings.Join(models, ", ") + ")"
		if name == "mock" {
			label += " [No API key needed]"
		}
		options = append(options, huh.NewOption(label, name))
	}
	return options
}

func buildModelOptions(providerName string) []huh.Option[string] {
	models := provider.SupportedModelsForProvider(providerName)
	options := make([]huh.Option[string], 0, len(models))
	for _, m := range models {
		options = append(options, huh.NewOption(m, m))
	}
	return options
}
