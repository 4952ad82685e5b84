package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/repolens/internal/http"
	"github.com/fyrsmithlabs/repolens/internal/stream"
	"github.com/fyrsmithlabs/repolens/pkg/git"
)

type indexOptions struct {
	provider string
	token    string
	save     string
	dir      string
}

func newIndexCmd(opts *options) *cobra.Command {
	iopts := &indexOptions{}
	cmd := &cobra.Command{
		Use:   "index [owner/name]",
		Short: "Index a GitHub or GitLab repository",
		Long: `Index a hosted repository through the repolens server and report progress.

Without an argument the repository and provider are taken from the origin
remote of the local checkout. The access token is read from --token,
REPOLENS_TOKEN, or the provider's GITHUB_TOKEN / GITLAB_TOKEN.

Examples:
  repolensctl index
  repolensctl index acme/api --provider github --save files.json
  repolensctl index group/sub/project --provider gitlab`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := iopts.request(args)
			if err != nil {
				return err
			}
			token := iopts.resolveToken(req.Provider)
			if token == "" {
				return fmt.Errorf("no access token: set --token or REPOLENS_TOKEN")
			}
			completed, err := runIndex(cmd, opts.client(), req, token)
			if err != nil {
				return err
			}
			if iopts.save != "" {
				if err := writeJSONFile(iopts.save, completed.Files); err != nil {
					return fmt.Errorf("failed to save files: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", labelStyle.Render("Saved:"), iopts.save)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&iopts.provider, "provider", "", "provider: github or gitlab (default: inferred from the git remote)")
	cmd.Flags().StringVar(&iopts.token, "token", "", "provider access token")
	cmd.Flags().StringVar(&iopts.save, "save", "", "write the indexed files as JSON to this path")
	cmd.Flags().StringVar(&iopts.dir, "dir", ".", "local checkout used to infer the repository")
	return cmd
}

// request resolves the repository and provider from args, flags and the
// local checkout.
func (o *indexOptions) request(args []string) (httpserver.IndexRequest, error) {
	req := httpserver.IndexRequest{Provider: strings.ToLower(o.provider)}
	if len(args) == 1 {
		req.Repository = args[0]
	}
	if req.Repository != "" && req.Provider != "" {
		return req, nil
	}

	remote, err := git.DetectRemote(o.dir)
	if err != nil {
		if req.Repository == "" {
			return req, fmt.Errorf("no repository given and none detected: %w", err)
		}
		req.Provider = "github"
		return req, nil
	}
	if req.Repository == "" {
		req.Repository = remote.Repository
	}
	if req.Provider == "" {
		req.Provider = remote.Provider
	}
	return req, nil
}

func (o *indexOptions) resolveToken(provider string) string {
	if o.token != "" {
		return o.token
	}
	if t := os.Getenv("REPOLENS_TOKEN"); t != "" {
		return t
	}
	switch provider {
	case "gitlab":
		return os.Getenv("GITLAB_TOKEN")
	default:
		return os.Getenv("GITHUB_TOKEN")
	}
}

// runIndex posts the index request and renders its event stream until the
// run completes or fails.
func runIndex(cmd *cobra.Command, c *client, req httpserver.IndexRequest, token string) (*httpserver.IndexCompleted, error) {
	resp, err := c.post(cmd.Context(), "/api/v1/index", req, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "%s %s (%s)\n", headerStyle.Render("Indexing"), req.Repository, req.Provider)
	if id := resp.Header.Get(httpserver.HeaderRunID); id != "" {
		fmt.Fprintf(errOut, "%s %s\n", labelStyle.Render("Run:"), dimStyle.Render(id))
	}

	bar := newProgressBar()
	var completed *httpserver.IndexCompleted
	var failure error
	errStop := errors.New("stop")
	err = stream.ReadEvents(resp.Body, func(ev stream.Event) error {
		switch ev.Name {
		case httpserver.EventProgress:
			var p httpserver.IndexProgress
			if json.Unmarshal([]byte(ev.Data), &p) == nil {
				fmt.Fprintf(errOut, "\r%s", renderProgress(bar, p.Progress))
			}
		case httpserver.EventCompleted:
			var done httpserver.IndexCompleted
			if err := json.Unmarshal([]byte(ev.Data), &done); err != nil {
				return fmt.Errorf("invalid completed event: %w", err)
			}
			completed = &done
			return errStop
		case httpserver.EventError:
			var f httpserver.IndexFailed
			_ = json.Unmarshal([]byte(ev.Data), &f)
			if f.Error == "" {
				f.Error = "indexing failed"
			}
			failure = errors.New(f.Error)
			return errStop
		}
		return nil
	})
	fmt.Fprintln(errOut)
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	if failure != nil {
		fmt.Fprintf(errOut, "%s %s\n", errStyle.Render("Failed:"), failure)
		return nil, failure
	}
	if completed == nil {
		return nil, fmt.Errorf("event stream ended before the run completed")
	}

	fmt.Fprintf(errOut, "%s %s@%s\n", okStyle.Render("Indexed"), completed.Repository, completed.Branch)
	fmt.Fprintf(cmd.OutOrStdout(), "files_indexed=%d files_skipped=%d\n", completed.FilesIndexed, completed.FilesSkipped)
	return completed, nil
}
