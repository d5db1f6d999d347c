// Command tonegate runs the tone-rewrite gateway and its companion tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "tonegate",
	Short: "Persona-driven tone rewrite gateway",
	Long: `tonegate rewrites draft messages in a chosen persona's voice.

Every request is checked against an external entitlement service and sent to
an LLM provider, either concurrently or one after the other, and the two
outcomes are reconciled into a single answer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tonegate.yaml", "Path to tonegate config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.AddCommand(mockCmd)
	rootCmd.AddCommand(receiverCmd)
	rootCmd.AddCommand(benchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tonegate:", err)
		os.Exit(1)
	}
}
