// Codemaged is the plugin generation daemon.
//
// It loads configuration, builds the generation pipeline and serves the
// HTTP control surface, the SSE event stream and Prometheus metrics. With
// --mcp it also serves the generation tools over MCP on stdio.
//
// Usage:
//
//	# Start with ~/.config/codemage/config.yaml
//	codemaged
//
//	# Serve MCP on stdio as well
//	codemaged --mcp
//
//	# Override via environment
//	CODEMAGE_GENERATION_AUTO_APPROVE=true codemaged
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	serveMCP   bool
)

var rootCmd = &cobra.Command{
	Use:     "codemaged",
	Short:   "AstrBot plugin generation daemon",
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), options{configPath: configPath, mcp: serveMCP})
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "codemaged by Fyrsmith Labs\n")
		fmt.Fprintf(cmd.OutOrStdout(), "Version:    %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "Commit:     %s\n", gitCommit)
		fmt.Fprintf(cmd.OutOrStdout(), "Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "config file (default ~/.config/codemage/config.yaml)")
	rootCmd.Flags().BoolVar(&serveMCP, "mcp", false, "serve MCP tools on stdio")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signalContext()
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
