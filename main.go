// tradeberg is a local chat service built around a trading chart.
package main

import (
	"fmt"
	"os"

	"github.com/tradeberg/tradeberg/cmd"
	"github.com/tradeberg/tradeberg/config"
	"github.com/tradeberg/tradeberg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	workspace, _ := config.WorkspacePath(cfg)
	if err := logger.Init(config.BuildLoggerConfig(cfg), workspace); err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
	}
	cmd.Execute()
}
