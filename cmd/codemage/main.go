// Package main implements the codemage CLI, a client for the codemaged HTTP
// API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the codemaged HTTP server
	serverURL string
	// jsonOutput prints raw JSON instead of styled text
	jsonOutput bool

	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "codemage",
	Short: "Generate AstrBot plugins from natural language",
	Long: `codemage talks to a running codemaged daemon. It starts generations,
answers the confirmation gate, follows progress events and manages plugins
on the host.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "codemaged server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON responses")
	rootCmd.AddCommand(generateCmd, confirmCmd, rejectCmd, statusCmd, pendingCmd, eventsCmd, pluginsCmd, credentialsCmd, healthCmd)
}

func defaultServerURL() string {
	if u := os.Getenv("CODEMAGE_SERVER"); u != "" {
		return u
	}
	return "http://127.0.0.1:6190"
}

// apiError is a non-2xx response. Body is kept for rendering.
type apiError struct {
	Status int
	Body   []byte
}

func (e *apiError) Error() string {
	var msg struct {
		Kind    string `json:"kind"`
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Body, &msg) == nil {
		switch {
		case msg.Kind != "":
			return fmt.Sprintf("%s: %s", msg.Kind, msg.Detail)
		case msg.Error != "":
			return msg.Error
		case msg.Message != "":
			return msg.Message
		}
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, strings.TrimSpace(string(e.Body)))
}

var httpClient = &http.Client{}

// call sends a JSON request and decodes the response into out. Generation
// endpoints report failures with a result body; decodeOnError keeps it.
func call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := strings.TrimRight(serverURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode, Body: data}
		if out != nil && len(data) > 0 {
			_ = json.Unmarshal(data, out)
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// requestContext bounds short requests. Generations run as long as the
// daemon needs, so they use the command context directly.
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check codemaged server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		var resp struct {
			Status string `json:"status"`
		}
		if err := call(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", resp.Status)
		return nil
	},
}
