package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mmcdole/tonearm/internal/tui"
)

var (
	// Set via ldflags at build time
	Version = "dev"
	Commit  = "unknown"
)

var (
	serverURL string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "tonearm",
	Short: "Offline-first music player for a tonearmd catalog",
	Long: `Tonearm plays songs from a tonearmd catalog server and keeps a local
copy of every song so the library stays playable without a network.

Run without a subcommand to open the interactive player.`,
	RunE:         runTUI,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tonearm %s (%s, %s/%s)\n", Version, Commit, runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "catalog server URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(playCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl, err := a.startPlayer()
	if err != nil {
		return err
	}

	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	model := tui.NewModel(a.library, ctrl, a.session, a.queries, a.cacheEvents, updates)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
	)

	a.logger.Info("starting TUI")

	if _, err := p.Run(); err != nil {
		a.logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	a.logger.Info("shutting down")
	return nil
}
