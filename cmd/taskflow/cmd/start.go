package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CemAyyildiz/taskFlow/cmd/taskflow/app"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the taskflow node",
	Long: `Start the taskflow node with the specified configuration.

This command will:
1. Load configuration from the specified file
2. Initialize all required components
3. Start the HTTP API and supporting services
4. Handle graceful shutdown on interrupt`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// create signal channel for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// create app instance
	application := app.New(cmd.Context())

	// start app in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := application.Run(cfgFile, privateKey, debugMode); err != nil {
			errChan <- fmt.Errorf("application error: %w", err)
		}
	}()

	// wait for interrupt signal or error
	select {
	case <-sigChan:
		fmt.Println("\nReceived interrupt signal. Shutting down...")
		if err := application.Shutdown(); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
		return nil
	case err := <-errChan:
		return err
	}
}
