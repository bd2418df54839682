package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fyrsmithlabs/bellaqa/internal/apperr"
	"github.com/fyrsmithlabs/bellaqa/internal/config"
	"github.com/fyrsmithlabs/bellaqa/internal/indexer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// indexCmd builds the index from the configured source files
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the vector index from the story files",
	Long: `Load the configured source files, split them into overlapping chunks,
embed every chunk and atomically replace the index on disk.

A failed run leaves the previous index in place.

Examples:
  # Index the default files (bella_main.txt, plot.txt, Original.txt)
  bellaqa index

  # Index other files
  BELLAQA_SOURCES_FILES=plot.txt,notes.md bellaqa index`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cfg.CheckCredentials(true, false); err != nil {
		return apperr.Configuration("index", err)
	}

	embedder, err := newEmbedder(a.cfg, a.logger.Underlying())
	if err != nil {
		return err
	}
	defer embedder.Close()

	_, err = buildIndex(ctx, cmd.OutOrStdout(), a.cfg, embedder, a.logger.Underlying())
	return err
}

// buildIndex runs one indexing pass, printing progress and a summary to out.
func buildIndex(ctx context.Context, out io.Writer, cfg *config.Config, embedder indexer.Embedder, logger *zap.Logger) (*indexer.Result, error) {
	ix, err := indexer.New(indexerConfig(cfg), embedder, logger,
		indexer.WithProgress(func(p indexer.Progress) {
			fmt.Fprintln(out, renderProgress(p))
		}),
	)
	if err != nil {
		return nil, err
	}

	res, err := ix.Run(ctx, cfg.Sources.Files)
	if err != nil {
		return nil, err
	}

	fmt.Fprint(out, renderIndexSummary(res))
	logger.Info("index built",
		zap.String("build_id", res.Manifest.BuildID),
		zap.Int("chunks", res.Chunks),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}
