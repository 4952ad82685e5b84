package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/repolens/internal/analysis"
	httpserver "github.com/fyrsmithlabs/repolens/internal/http"
	"github.com/fyrsmithlabs/repolens/internal/stream"
	"github.com/fyrsmithlabs/repolens/pkg/git"
)

type analyzeOptions struct {
	corpus      string
	dir         string
	repo        string
	currentFile string
	maxFileSize int64
	startChunk  int
}

func newAnalyzeCmd(opts *options) *cobra.Command {
	aopts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Stream a security analysis of a repository",
		Long: `Send repository content to the repolens server and stream the report.

Large repositories are split into chunks by the server. Every chunk is
requested in turn until the server reports no more remain.

Examples:
  repolensctl analyze --dir .
  repolensctl analyze --corpus files.json --repo acme/api
  repolensctl analyze --dir . --current-file internal/auth/token.go`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actx, err := aopts.context()
			if err != nil {
				return err
			}
			return runAnalyze(cmd, opts.client(), actx, aopts.startChunk)
		},
	}
	cmd.Flags().StringVar(&aopts.corpus, "corpus", "", "JSON file with the files to analyze (e.g. saved by index --save)")
	cmd.Flags().StringVar(&aopts.dir, "dir", "", "local directory to analyze")
	cmd.Flags().StringVar(&aopts.repo, "repo", "", "repository name (default: inferred from the git remote or directory)")
	cmd.Flags().StringVar(&aopts.currentFile, "current-file", "", "file to emphasize in the analysis")
	cmd.Flags().Int64Var(&aopts.maxFileSize, "max-file-size", defaultMaxLocalFileSize, "skip local files larger than this many bytes")
	cmd.Flags().IntVar(&aopts.startChunk, "chunk", 0, "chunk index to start from")
	cmd.MarkFlagsMutuallyExclusive("corpus", "dir")
	cmd.MarkFlagsOneRequired("corpus", "dir")
	return cmd
}

// context builds the analysis context from the flags.
func (o *analyzeOptions) context() (*analysis.Context, error) {
	var actx *analysis.Context
	if o.corpus != "" {
		c, err := loadCorpus(o.corpus)
		if err != nil {
			return nil, err
		}
		actx = c
	} else {
		files, err := loadDir(o.dir, o.maxFileSize)
		if err != nil {
			return nil, err
		}
		actx = &analysis.Context{Files: files}
	}

	name := o.repo
	if name == "" && actx.Repository != nil {
		name = actx.Repository.FullName
	}
	if name == "" && o.dir != "" {
		name = inferRepoName(o.dir)
	}
	if name == "" {
		return nil, fmt.Errorf("--repo is required")
	}
	actx.Repository = &analysis.Repository{FullName: name}

	if o.currentFile != "" {
		f, err := findFile(actx.Files, o.dir, o.currentFile)
		if err != nil {
			return nil, err
		}
		actx.CurrentFile = f
	}
	return actx, nil
}

// inferRepoName prefers the origin remote and falls back to the directory
// name.
func inferRepoName(dir string) string {
	if remote, err := git.DetectRemote(dir); err == nil {
		return remote.Repository
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	return filepath.Base(abs)
}

// runAnalyze requests chunks from start until X-Has-More is false,
// writing the report text to stdout and part headers to stderr.
func runAnalyze(cmd *cobra.Command, c *client, actx *analysis.Context, start int) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	for index := start; ; index++ {
		resp, err := c.post(cmd.Context(), "/api/v1/analyze", analysis.Request{Context: actx, ChunkIndex: index}, "")
		if err != nil {
			return err
		}

		total, _ := strconv.Atoi(resp.Header.Get(httpserver.HeaderTotalChunks))
		hasMore, _ := strconv.ParseBool(resp.Header.Get(httpserver.HeaderHasMore))
		if total > 1 {
			fmt.Fprintf(errOut, "%s\n", headerStyle.Render(fmt.Sprintf("Part %d of %d", index+1, total)))
		}

		err = stream.DecodeDeltas(resp.Body, func(content string) error {
			_, werr := io.WriteString(out, content)
			return werr
		})
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("chunk %d: %w", index, err)
		}
		fmt.Fprintln(out)

		if !hasMore {
			fmt.Fprintf(errOut, "%s\n", okStyle.Render("Analysis complete"))
			return nil
		}
	}
}
