package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fyrsmithlabs/bellaqa/internal/apperr"
	"github.com/fyrsmithlabs/bellaqa/internal/config"
	"github.com/fyrsmithlabs/bellaqa/internal/logging"
	"github.com/fyrsmithlabs/bellaqa/internal/rag"
	"github.com/fyrsmithlabs/bellaqa/internal/vectorstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// showSources prints the retrieved chunks under the answer
var showSources bool

// askCmd answers one question in-process
var askCmd = &cobra.Command{
	Use:   `ask "<question>"`,
	Short: "Answer one question from the terminal",
	Long: `Answer a single question against the local index without starting
the HTTP server. Words after "ask" are joined into one question.

Examples:
  bellaqa ask "ベラの剣は誰のものですか？"

  # Show which chunks the answer was grounded on
  bellaqa ask --sources "ベラはどこに住んでいますか？"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&showSources, "sources", false, "show the retrieved chunks")
}

// questionEmbedder embeds questions and names its model for the index check.
type questionEmbedder interface {
	rag.QueryEmbedder
	Model() string
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	zl := a.logger.Underlying()
	if err := a.cfg.CheckCredentials(true, true); err != nil {
		return apperr.Configuration("ask", err)
	}

	embedder, err := newEmbedder(a.cfg, zl)
	if err != nil {
		return err
	}
	defer embedder.Close()

	generator, err := newGenerator(a.cfg, zl)
	if err != nil {
		return err
	}

	return askOnce(ctx, cmd.OutOrStdout(), a.cfg, embedder, generator, strings.Join(args, " "), showSources, a.logger)
}

// askOnce opens the index, answers question and writes the rendered answer to out.
func askOnce(ctx context.Context, out io.Writer, cfg *config.Config, embedder questionEmbedder, generator rag.Generator, question string, withSources bool, logger *logging.Logger) error {
	ix, err := vectorstore.Open(indexConfig(cfg), expectations(cfg, embedder.Model()), logger.Underlying())
	if err != nil {
		return err
	}

	engine, err := rag.NewEngine(embedder, ix, generator, rag.Config{TopK: cfg.Retrieval.TopK}, logger)
	if err != nil {
		return apperr.Configuration("ask", err)
	}

	if timeout := cfg.Server.RequestTimeout.Duration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	answer, err := engine.Ask(ctx, rag.Query{Question: question})
	if err != nil {
		return err
	}
	logger.Debug(ctx, "answered", zap.Duration("duration", time.Since(start)), zap.Int("sources", len(answer.Sources)))

	_, err = fmt.Fprint(out, renderAnswer(answer, withSources))
	return err
}
