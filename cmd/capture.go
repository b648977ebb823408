package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradeberg/tradeberg/capture"
	"github.com/tradeberg/tradeberg/config"
	"github.com/tradeberg/tradeberg/logger"
	"github.com/tradeberg/tradeberg/widget"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Snapshot a chart to a PNG file",
	Long: `Render the chart widget in a headless browser and write the
screenshot to a file. Runs standalone, no service required.

Examples:
  tradeberg capture --symbol NASDAQ:AAPL
  tradeberg capture --symbol BINANCE:BTCUSDT --interval 60 --theme light
  tradeberg capture --symbol NASDAQ:TSLA --source builtin --out tsla.png`,
	RunE: runCapture,
}

var (
	captureSymbol   string
	captureInterval string
	captureTheme    string
	captureSource   string
	captureOut      string
	captureWidth    int
	captureHeight   int
)

func init() {
	captureCmd.Flags().StringVar(&captureSymbol, "symbol", "", "Chart symbol (defaults to config)")
	captureCmd.Flags().StringVar(&captureInterval, "interval", "", "Chart interval (defaults to config)")
	captureCmd.Flags().StringVar(&captureTheme, "theme", "", "Chart theme: dark or light")
	captureCmd.Flags().StringVar(&captureSource, "source", "", "Widget source: vendor or builtin")
	captureCmd.Flags().StringVar(&captureOut, "out", "", "Output file (defaults to <symbol>-<time>.png)")
	captureCmd.Flags().IntVar(&captureWidth, "width", 0, "Viewport width override")
	captureCmd.Flags().IntVar(&captureHeight, "height", 0, "Viewport height override")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts := widget.Options{
		Symbol:   firstNonEmpty(captureSymbol, cfg.Widget.Symbol),
		Interval: firstNonEmpty(captureInterval, cfg.Widget.Interval),
		Theme:    firstNonEmpty(captureTheme, cfg.Widget.Theme),
		Locale:   cfg.Widget.Locale,
		Source:   firstNonEmpty(captureSource, cfg.Widget.Source),
	}.Normalize()

	pageURL, stop, err := serveWidgetPage(opts)
	if err != nil {
		return err
	}
	defer stop()

	engine := capture.NewEngine(buildEngineConfig(cfg.Capture))
	defer engine.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	fmt.Printf("Capturing %s (%s, %s)...\n", opts.Symbol, opts.Interval, opts.Theme)
	result, err := engine.Snapshot(ctx, capture.Target{
		URL:      pageURL,
		Symbol:   opts.Symbol,
		Interval: opts.Interval,
		Theme:    opts.Theme,
		Width:    captureWidth,
		Height:   captureHeight,
	})
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}

	out := strings.TrimSpace(captureOut)
	if out == "" {
		out = fmt.Sprintf("%s-%s.png",
			strings.ReplaceAll(opts.Symbol, ":", "-"),
			result.CapturedAt.Format("20060102-150405"))
	}
	if err := os.WriteFile(out, result.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}

	fmt.Printf("Snapshot written to %s (%d bytes)\n", out, len(result.Data))
	return nil
}

// serveWidgetPage serves the rendered widget page on an ephemeral
// localhost port so the engine has something to navigate to.
func serveWidgetPage(opts widget.Options) (pageURL string, stop func(), err error) {
	page, err := widget.PageHTML(opts)
	if err != nil {
		return "", nil, fmt.Errorf("failed to render widget page: %w", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("failed to listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/widget", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if serveErr := server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Warn("widget page server stopped", "err", serveErr)
		}
	}()

	return fmt.Sprintf("http://%s/widget", ln.Addr().String()), func() { server.Close() }, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
