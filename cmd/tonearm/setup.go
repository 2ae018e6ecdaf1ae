package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmcdole/tonearm/internal/adapter"
	"github.com/mmcdole/tonearm/internal/catalog"
)

// clearSpinnerLine clears the spinner line from the terminal
const clearSpinnerLine = "\r                                    \r"

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Choose the catalog server and save it to the config file",
	Args:  cobra.NoArgs,
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := adapter.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println()
	fmt.Println("Welcome to Tonearm!")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	var url string

	// Loop until we get a server that answers like a catalog
	for {
		url = serverURL
		if url == "" {
			fmt.Printf("Enter your catalog server URL [%s]: ", cfg.Server.URL)
			input, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			url = strings.TrimSpace(input)
			if url == "" {
				url = cfg.Server.URL
			}
		}

		info, err := probeWithSpinner(cmd.Context(), url)
		if err == nil {
			fmt.Printf("✓ Found %s with %d songs\n", info.Name, info.Songs)
			break
		}

		fmt.Printf("✗ %v\n", err)
		if serverURL != "" {
			return err
		}
		fmt.Println("Please check the URL and try again.")
		fmt.Println()
	}

	cfg.Server.URL = strings.TrimRight(url, "/")
	if err := adapter.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("✓ Configuration saved!")
	fmt.Println()
	fmt.Println("Run tonearm to start listening.")
	return nil
}

// probeWithSpinner probes the server while animating a spinner
func probeWithSpinner(ctx context.Context, url string) (catalog.ServerInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	type result struct {
		info catalog.ServerInfo
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		info, err := catalog.Probe(ctx, url)
		resultCh <- result{info, err}
	}()

	frame := 0
	fmt.Printf("\r%s Contacting server...", spinnerFrames[frame])

	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case res := <-resultCh:
			fmt.Print(clearSpinnerLine)
			return res.info, res.err

		case <-ticker.C:
			frame++
			fmt.Printf("\r%s Contacting server...", spinnerFrames[frame%len(spinnerFrames)])

		case <-ctx.Done():
			fmt.Print(clearSpinnerLine)
			return catalog.ServerInfo{}, fmt.Errorf("server did not answer in time")
		}
	}
}
