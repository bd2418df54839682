package main

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/bellaqa/internal/apperr"
	bellahttp "github.com/fyrsmithlabs/bellaqa/internal/http"
	"github.com/fyrsmithlabs/bellaqa/internal/rag"
	"github.com/fyrsmithlabs/bellaqa/internal/vectorstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// serveCmd serves the web page and POST /ask
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve questions over HTTP",
	Long: `Open the index and serve the question page at /, POST /ask, /health,
/ready and /metrics until SIGINT or SIGTERM.

A missing or incompatible index is fatal; run "bellaqa index" first.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	logger := a.logger.Underlying()

	if err := cfg.CheckCredentials(true, true); err != nil {
		return apperr.Configuration("serve", err)
	}

	embedder, err := newEmbedder(cfg, logger)
	if err != nil {
		return err
	}
	defer embedder.Close()

	generator, err := newGenerator(cfg, logger)
	if err != nil {
		return err
	}

	ix, err := vectorstore.Open(indexConfig(cfg), expectations(cfg, embedder.Model()), logger)
	if err != nil {
		return err
	}
	handle := vectorstore.NewHandle(ix)

	engine, err := rag.NewEngine(embedder, handle, generator, rag.Config{TopK: cfg.Retrieval.TopK}, a.logger)
	if err != nil {
		return apperr.Configuration("serve", err)
	}

	srv, err := bellahttp.NewServer(engine, handle, a.logger, &bellahttp.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		RequestTimeout: cfg.Server.RequestTimeout.Duration(),
		StaticDir:      cfg.Server.StaticDir,
	})
	if err != nil {
		return apperr.Configuration("serve", err)
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	watchDone := make(chan struct{})
	if cfg.Index.Watch {
		w, err := vectorstore.NewWatcher(indexConfig(cfg), expectations(cfg, embedder.Model()), handle, logger)
		if err != nil {
			return apperr.Configuration("serve", err)
		}
		go func() {
			defer close(watchDone)
			if err := w.Run(watchCtx); err != nil {
				logger.Warn("index watcher stopped", zap.Error(err))
			}
		}()
	} else {
		close(watchDone)
	}

	m := ix.Manifest()
	logger.Info("starting bellaqa",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("build_id", m.BuildID),
		zap.Int("chunks", ix.Count()),
		zap.String("embedding_model", embedder.Model()),
		zap.String("generation_model", generator.Model()),
		zap.Bool("watch", cfg.Index.Watch),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout.Duration()),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		stopWatch()
		<-watchDone
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	stopWatch()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	<-watchDone
	return <-errCh
}
