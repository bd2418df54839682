// Package main implements the bellaqa CLI: it builds the plot index and
// serves questions about 『Bella』 over HTTP or from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/bellaqa/internal/apperr"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultEnvFile = ".env"

var (
	// configPath is an optional YAML file layered over the embedded defaults
	configPath string
	// envFile is loaded into the process environment before config is read
	envFile string
	// version information
	version = "dev"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error:"), err)
		cancel()
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "bellaqa",
	Short: "Question answering over the 『Bella』 plot files",
	Long: `bellaqa indexes the 『Bella』 story files into a local vector index and
answers questions about them with retrieval-augmented generation.

Examples:
  # Build the index from the configured source files
  bellaqa index

  # Serve the web page and POST /ask
  bellaqa serve

  # Ask once from the terminal
  bellaqa ask "ベラはどこに住んでいますか？" --sources`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadEnv,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", defaultEnvFile, "dotenv file loaded before configuration")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadEnv(cmd *cobra.Command, _ []string) error {
	return loadEnvFile(envFile, cmd.Flags().Changed("env-file"))
}

// loadEnvFile loads path into the environment without overriding variables
// already set. A missing file is only an error when it was asked for explicitly.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return apperr.Configuration("load_env_file", fmt.Errorf("loading %s: %w", path, err))
	}
	return nil
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindConfiguration:
		return 2
	case apperr.KindIndexBuild:
		return 3
	default:
		return 1
	}
}
