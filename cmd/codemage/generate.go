package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/codemage/internal/generator"
	httpapi "github.com/fyrsmithlabs/codemage/internal/http"
)

var (
	generateOrigin  string
	confirmFeedback string
)

var generateCmd = &cobra.Command{
	Use:   "generate <description>",
	Short: "Start a plugin generation",
	Long: `Start a plugin generation from a natural-language description.

Unless the daemon auto-approves, this stops at a proposal. Review it, then
run confirm or reject.

Examples:
  codemage generate "查询城市天气，支持 /weather 城市名"
  codemage generate --origin qq-group-123 "每日新闻推送插件"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := httpapi.StartRequest{Description: strings.Join(args, " "), Origin: generateOrigin}
		return runGeneration(cmd, "/api/v1/generations", req)
	},
}

var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Approve the pending proposal",
	Long: `Approve the pending proposal and generate the plugin. With --feedback
the proposal is revised first.

Examples:
  codemage confirm
  codemage confirm --feedback "再加一个 /forecast 命令"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := httpapi.ConfirmRequest{Approved: true, Feedback: confirmFeedback}
		return runGeneration(cmd, "/api/v1/generations/confirm", req)
	},
}

var rejectCmd = &cobra.Command{
	Use:   "reject",
	Short: "Discard the pending proposal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGeneration(cmd, "/api/v1/generations/reject", nil)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running generation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		var st generator.Status
		if err := call(ctx, http.MethodGet, "/api/v1/status", nil, &st); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderStatus(st))
		return nil
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show the proposal waiting for confirmation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		var p generator.Pending
		if err := call(ctx, http.MethodGet, "/api/v1/pending", nil, &p); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), p)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderPending(p))
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateOrigin, "origin", "cli", "who asked for the plugin (recorded on the proposal)")
	confirmCmd.Flags().StringVar(&confirmFeedback, "feedback", "", "changes to apply to the proposal before generating code")
}

// runGeneration posts to a generation endpoint and renders the result. A
// failed generation is printed and returned as an error.
func runGeneration(cmd *cobra.Command, path string, body any) error {
	var res generator.Result
	err := call(cmd.Context(), http.MethodPost, path, body, &res)
	if err != nil && res.Outcome == "" {
		return err
	}

	if jsonOutput {
		if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
			return perr
		}
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), renderResult(res))
	}
	return err
}
