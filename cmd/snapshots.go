package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tradeberg/tradeberg/config"
	"github.com/tradeberg/tradeberg/schedule"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Manage scheduled chart snapshots",
	Long: `List, add, remove, enable, and disable scheduled snapshot jobs in
workspace/snapshots.yaml. A running service picks changes up on restart.`,
}

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all snapshot jobs",
	RunE:  runSnapshotsList,
}

var snapshotsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a snapshot job",
	Long: `Add a recurring snapshot job.

Examples:
  tradeberg snapshots add --id aapl-open --expr "30 9 * * 1-5" --symbol NASDAQ:AAPL
  tradeberg snapshots add --id btc-hourly --expr "@hourly" --symbol BINANCE:BTCUSDT --note "Hourly BTC check"`,
	RunE: runSnapshotsAdd,
}

var snapshotsRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a snapshot job by ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotsRemove,
}

var snapshotsEnableCmd = &cobra.Command{
	Use:   "enable [id]",
	Short: "Enable a snapshot job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSnapshotDisabled(args[0], false)
	},
}

var snapshotsDisableCmd = &cobra.Command{
	Use:   "disable [id]",
	Short: "Disable a snapshot job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSnapshotDisabled(args[0], true)
	},
}

var (
	snapAddID       string
	snapAddExpr     string
	snapAddSymbol   string
	snapAddInterval string
	snapAddTheme    string
	snapAddNote     string
	snapAddConv     string
)

func init() {
	rootCmd.AddCommand(snapshotsCmd)
	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsAddCmd)
	snapshotsCmd.AddCommand(snapshotsRemoveCmd)
	snapshotsCmd.AddCommand(snapshotsEnableCmd)
	snapshotsCmd.AddCommand(snapshotsDisableCmd)

	snapshotsAddCmd.Flags().StringVar(&snapAddID, "id", "", "Job ID (required)")
	snapshotsAddCmd.Flags().StringVar(&snapAddExpr, "expr", "", "Cron expression, e.g. '30 9 * * 1-5' or '@hourly' (required)")
	snapshotsAddCmd.Flags().StringVar(&snapAddSymbol, "symbol", "", "Chart symbol, e.g. NASDAQ:AAPL (required)")
	snapshotsAddCmd.Flags().StringVar(&snapAddInterval, "interval", "", "Chart interval (defaults to config)")
	snapshotsAddCmd.Flags().StringVar(&snapAddTheme, "theme", "", "Chart theme (defaults to config)")
	snapshotsAddCmd.Flags().StringVar(&snapAddNote, "note", "", "Message sent with each snapshot")
	snapshotsAddCmd.Flags().StringVar(&snapAddConv, "conversation", "", "Deliver into an existing conversation")
	_ = snapshotsAddCmd.MarkFlagRequired("id")
	_ = snapshotsAddCmd.MarkFlagRequired("expr")
	_ = snapshotsAddCmd.MarkFlagRequired("symbol")
}

func openSnapshotScheduler() (*schedule.Scheduler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	workspace, err := config.WorkspacePath(cfg)
	if err != nil {
		return nil, err
	}
	s := schedule.NewScheduler(filepath.Join(workspace, "snapshots.yaml"), nil)
	if err := s.Load(); err != nil {
		return nil, fmt.Errorf("failed to load snapshot jobs: %w", err)
	}
	return s, nil
}

func runSnapshotsList(cmd *cobra.Command, args []string) error {
	s, err := openSnapshotScheduler()
	if err != nil {
		return err
	}

	jobs := s.List()
	if len(jobs) == 0 {
		fmt.Println("No snapshot jobs configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSYMBOL\tSCHEDULE\tENABLED\tCONVERSATION")
	fmt.Fprintln(w, "--\t------\t--------\t-------\t------------")
	for _, job := range jobs {
		conv := job.Conversation
		if conv == "" {
			conv = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n", job.ID, job.Symbol, job.Expr, !job.Disabled, conv)
	}
	return w.Flush()
}

func runSnapshotsAdd(cmd *cobra.Command, args []string) error {
	s, err := openSnapshotScheduler()
	if err != nil {
		return err
	}

	if err := s.Add(schedule.Job{
		ID:           snapAddID,
		Expr:         snapAddExpr,
		Symbol:       snapAddSymbol,
		Interval:     snapAddInterval,
		Theme:        snapAddTheme,
		Note:         snapAddNote,
		Conversation: snapAddConv,
	}); err != nil {
		return err
	}

	fmt.Printf("Snapshot job '%s' added.\n", snapAddID)
	return nil
}

func runSnapshotsRemove(cmd *cobra.Command, args []string) error {
	s, err := openSnapshotScheduler()
	if err != nil {
		return err
	}
	if err := s.Remove(args[0]); err != nil {
		return err
	}
	fmt.Printf("Snapshot job '%s' removed.\n", args[0])
	return nil
}

func setSnapshotDisabled(id string, disabled bool) error {
	s, err := openSnapshotScheduler()
	if err != nil {
		return err
	}
	if err := s.SetDisabled(id, disabled); err != nil {
		return err
	}
	state := "enabled"
	if disabled {
		state = "disabled"
	}
	fmt.Printf("Snapshot job '%s' %s.\n", id, state)
	return nil
}
