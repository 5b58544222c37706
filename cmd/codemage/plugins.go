package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	httpapi "github.com/fyrsmithlabs/codemage/internal/http"
	"github.com/fyrsmithlabs/codemage/internal/installer"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Manage plugins on the host",
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plugins in the host plugins directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		var resp httpapi.PluginsResponse
		if err := call(ctx, http.MethodGet, "/api/v1/plugins", nil, &resp); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderPlugins(resp.Root, resp.Plugins))
		return nil
	},
}

var pluginsInstallCmd = &cobra.Command{
	Use:   "install <path>",
	Short: "Package a plugin directory and install it on the host",
	Long: `Package a plugin directory and upload it to the host. A relative path is
resolved against the host plugins directory.

Examples:
  codemage plugins install astrbot_plugin_weather
  codemage plugins install /srv/astrbot/data/plugins/astrbot_plugin_weather`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res installer.InstallResult
		err := call(cmd.Context(), http.MethodPost, "/api/v1/plugins/install", httpapi.InstallRequest{Path: args[0]}, &res)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		msg := res.Message
		if msg == "" {
			msg = "installed"
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ "+res.PluginName)+" "+dimStyle.Render(msg))
		return nil
	},
}

var pluginsUninstallCmd = &cobra.Command{
	Use:   "uninstall <name>",
	Short: "Remove a plugin from the host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := call(ctx, http.MethodDelete, "/api/v1/plugins/"+url.PathEscape(args[0]), nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s\n", args[0])
		return nil
	},
}

func init() {
	pluginsCmd.AddCommand(pluginsListCmd, pluginsInstallCmd, pluginsUninstallCmd)
}
