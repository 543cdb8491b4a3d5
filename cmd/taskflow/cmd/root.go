package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CemAyyildiz/taskFlow/pkg/version"
)

var (
	// Global flags
	cfgFile    string
	privateKey string
	debugMode  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taskflow",
	Short: "TaskFlow marketplace node",
	Long: `TaskFlow runs the task marketplace: requesters post paid tasks,
workers claim and fulfill them, and confirmed work settles on an
Ethereum-compatible chain.

This application provides the following features:
- Task lifecycle registry
- On-chain reward settlement
- Lifecycle event stream
- Monitoring sweep
- HTTP API

Platform Key Options:
1. Pass the key directly:
   --private-key 0x123...abc

2. Set it in the environment:
   PLATFORM_PRIVATE_KEY=0x123...abc

Without a key the node still runs, but payouts are disabled.`,
	Version: fmt.Sprintf("%s (Build: %s, Commit: %s)", version.Version, version.BuildTime, version.GitCommit),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags - available to all commands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./config/taskflow.yaml)")
	rootCmd.PersistentFlags().StringVar(&privateKey, "private-key", "",
		"platform ECDSA private key in hex format (overrides config and PLATFORM_PRIVATE_KEY)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"enable debug logging")

	// Add version template
	rootCmd.SetVersionTemplate(`Version: {{.Version}}
`)
}

// initConfig resolves the config file path
func initConfig() {
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
			fmt.Printf("Config file not found: %s\n", cfgFile)
			os.Exit(1)
		}
		return
	}

	defaultConfig := "./config/taskflow.yaml"
	if _, err := os.Stat(defaultConfig); os.IsNotExist(err) {
		// No file at all: the defaults are enough to run.
		return
	}
	cfgFile = defaultConfig
}
