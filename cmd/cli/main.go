package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/yourusername/shortforge-go/internal/domain"
)

var (
	serverURL   string
	noAutoStart bool
	configPath  string
	rootCmd     = &cobra.Command{
		Use:   "shortforge",
		Short: "Shortforge CLI - Generate short narrated videos from stock footage",
		Long: `A command-line interface for generating short videos. Runs can be
executed locally with "generate" or submitted to a shortforge server.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(configCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// fetchJSON performs a request against the server and decodes a JSON
// response into out. Non-2xx responses are returned as errors carrying the
// server's message.
func fetchJSON(method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected HTTP %d: %s", resp.StatusCode, string(data))
	}
	return json.Unmarshal(data, out)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var submitCmd = &cobra.Command{
	Use:   "submit [topic]",
	Short: "Submit a run to the server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		aspect, _ := cmd.Flags().GetString("aspect")
		payload := map[string]string{
			"topic": args[0],
		}
		if aspect != "" {
			payload["aspect_ratio"] = aspect
		}

		var run domain.RunRecord
		exitOnError(fetchJSON(http.MethodPost, "/api/v1/runs", payload, &run))

		fmt.Printf("Run submitted successfully!\n")
		fmt.Printf("ID: %s\n", run.ID)
		fmt.Printf("Status: %s\n", run.Status)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		status, _ := cmd.Flags().GetString("status")

		path := "/api/v1/runs"
		if status != "" {
			path += "?status=" + url.QueryEscape(status)
		}

		var runs []domain.RunRecord
		exitOnError(fetchJSON(http.MethodGet, path, nil, &runs))

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTOPIC\tASPECT\tSTATUS\tCREATED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				truncate(r.ID, 8),
				truncate(r.Topic, 40),
				r.AspectRatio,
				r.Status,
				r.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show run statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var stats domain.RunStats
		exitOnError(fetchJSON(http.MethodGet, "/api/v1/runs/stats", nil, &stats))

		fmt.Println("Run Statistics:")
		fmt.Printf("  Total:      %d\n", stats.Total)
		fmt.Printf("  Queued:     %d\n", stats.Queued)
		fmt.Printf("  Processing: %d\n", stats.Processing)
		fmt.Printf("  Completed:  %d\n", stats.Completed)
		fmt.Printf("  Failed:     %d\n", stats.Failed)
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get run details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var run domain.RunRecord
		exitOnError(fetchJSON(http.MethodGet, "/api/v1/runs/"+url.PathEscape(args[0]), nil, &run))

		fmt.Printf("Run Details:\n")
		fmt.Printf("  ID:      %s\n", run.ID)
		fmt.Printf("  Topic:   %s\n", run.Topic)
		fmt.Printf("  Aspect:  %s\n", run.AspectRatio)
		fmt.Printf("  Status:  %s\n", run.Status)
		fmt.Printf("  Created: %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
		if run.Title != "" {
			fmt.Printf("  Title:   %s\n", run.Title)
		}
		if run.Message != "" {
			fmt.Printf("  Message: %s\n", run.Message)
		}
		if run.OutputPath != "" {
			fmt.Printf("  Output:  %s\n", run.OutputPath)
		}
		if run.PublishedKey != "" {
			fmt.Printf("  Key:     %s\n", run.PublishedKey)
		}
		if run.ErrorMessage != "" {
			fmt.Printf("  Error:   %s\n", run.ErrorMessage)
		}
	},
}

func init() {
	submitCmd.Flags().StringP("aspect", "a", "", "Aspect ratio (9:16, 16:9, 1:1)")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
