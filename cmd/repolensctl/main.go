// Package main implements repolensctl, a command-line client for the
// repolens HTTP server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/repolens/internal/http"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options are the persistent flags shared by every command.
type options struct {
	serverURL string
	timeout   time.Duration
}

func (o *options) client() *client {
	return newClient(o.serverURL, o.timeout)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "repolensctl",
		Short: "CLI for the repolens server",
		Long: `repolensctl talks to a repolens server. It indexes GitHub and GitLab
repositories, streams chunked security analysis, and scrubs secrets.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.serverURL, "server", envOr("REPOLENS_SERVER", "http://localhost:9090"), "repolens server URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "overall request timeout")

	root.AddCommand(
		newHealthCmd(opts),
		newScrubCmd(opts),
		newIndexCmd(opts),
		newAnalyzeCmd(opts),
	)
	return root
}

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check repolens server health",
		Long: `Check the health status of the repolens HTTP server.

Examples:
  repolensctl health
  repolensctl health --server http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var health httpserver.HealthResponse
			if err := opts.client().getJSON(cmd.Context(), "/health", &health); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Server Status:"), statusStyle(health.Status).Render(health.Status))
			fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Service:"), health.Service)
			fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Server URL:"), opts.serverURL)
			return nil
		},
	}
}

func newScrubCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scrub [file]",
		Short: "Scrub secrets from a file or stdin",
		Long: `Scrub secrets from a file or stdin using the repolens server.

Examples:
  repolensctl scrub .env
  cat output.log | repolensctl scrub -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content []byte
			var err error
			if len(args) == 0 || args[0] == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
			} else {
				content, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			if len(content) == 0 {
				return fmt.Errorf("no content to scrub")
			}

			var resp httpserver.ScrubResponse
			if err := opts.client().postJSON(cmd.Context(), "/api/v1/scrub", httpserver.ScrubRequest{Content: string(content)}, &resp); err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), resp.Content)
			if n := len(resp.Findings); n > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n%s\n", warnStyle.Render(fmt.Sprintf("Scrubbed %d secret(s)", n)))
			}
			return nil
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
