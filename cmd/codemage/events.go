package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/codemage/internal/events"
)

var (
	eventsGenerationID string
	eventsFollow       bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream generation progress events",
	Long: `Stream progress events from the daemon.

Examples:
  # Everything, until interrupted
  codemage events

  # One generation, stop when it finishes or parks
  codemage events --generation-id 6f1c... --follow=false`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().StringVar(&eventsGenerationID, "generation-id", "", "only show events of this generation")
	eventsCmd.Flags().BoolVar(&eventsFollow, "follow", true, "keep streaming after a terminal event")
}

func runEvents(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if eventsGenerationID != "" {
		q.Set("generation_id", eventsGenerationID)
	}
	if !eventsFollow {
		q.Set("follow", "false")
	}
	u := strings.TrimRight(serverURL, "/") + "/api/v1/events"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return readEvents(resp.Body, func(e events.Event) {
		if jsonOutput {
			_ = printJSON(cmd.OutOrStdout(), e)
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderEvent(e))
	})
}

// readEvents parses an SSE stream and calls fn for every data line.
// Comments (heartbeats) and other fields are skipped.
func readEvents(r io.Reader, fn func(events.Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var e events.Event
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return fmt.Errorf("decoding event: %w", err)
		}
		fn(e)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
