// Package main provides the docqa CLI for ingesting documents and asking questions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/docqa-server/internal/app"
	"github.com/bull/docqa-server/internal/config"
	"github.com/bull/docqa-server/internal/watch"
)

var (
	sessionID  string
	configPath string
	crawlDepth int
	ingestOld  bool
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Document question answering tool",
	Long: `CLI for ingesting documents and websites into a session and asking questions about them.

Sessions only persist between commands with the qdrant vector store and the
sqlite history backend.

Environment variables:
  DOCQA_CONFIG         YAML or TOML config file (optional)
  VECTOR_DB_TYPE       memory or qdrant (default: memory)
  HISTORY_BACKEND      memory or sqlite (default: memory)
  QDRANT_HOST          Qdrant hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY       OpenAI API key (required for OpenAI models)
  GCP_PROJECT_ID       Google Cloud project (required for Vertex/Gemini models)
  LLM_MODEL            Chat model (default: gpt-3.5-turbo)
  EMBEDDING_MODEL      Embedding model (default: text-embedding-3-small)`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			os.Setenv("DOCQA_CONFIG", configPath)
		}
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Ingest pdf, docx, txt or html files into the session",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var crawlCmd = &cobra.Command{
	Use:   "crawl URL",
	Short: "Crawl a website and ingest its pages into the session",
	Args:  cobra.ExactArgs(1),
	RunE:  runCrawl,
}

var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Answer a question from the session's documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the session's conversation history",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

var watchCmd = &cobra.Command{
	Use:   "watch DIR",
	Short: "Ingest files as they appear in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "default", "session id")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (overrides DOCQA_CONFIG)")
	crawlCmd.Flags().IntVar(&crawlDepth, "depth", 3, "maximum link depth")
	watchCmd.Flags().BoolVar(&ingestOld, "existing", false, "also ingest files already in the directory")

	rootCmd.AddCommand(ingestCmd, crawlCmd, askCmd, clearCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and wires the service.
func setup(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(os.Stderr, cfg.Server.LogLevel, cfg.Server.LogFormat)
	return app.New(ctx, cfg, logger)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	var total, failed int
	for _, path := range args {
		result, err := a.Pipeline.IngestFile(ctx, path, filepath.Base(path), sessionID)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %s: %v\n", path, err)
			continue
		}
		total += result.Chunks
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", path, result.Chunks)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nIngested %d/%d files into session %s (%d chunks, %s)\n",
		len(args)-failed, len(args), sessionID, total, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d files failed", failed)
	}
	return nil
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Pipeline.IngestURL(ctx, args[0], crawlDepth, sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Crawled %d pages from %s into session %s (%d chunks, %s)\n",
		result.Pages, args[0], sessionID, result.Chunks, result.Duration.Round(time.Millisecond))
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Service.Ask(ctx, sessionID, strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		for _, src := range resp.Sources {
			line := "  - " + src.Source
			if src.Page > 0 {
				line += fmt.Sprintf(" (page %d)", src.Page)
			}
			if src.Title != "" {
				line += " " + src.Title
			}
			fmt.Fprintln(out, line)
		}
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Service.Clear(ctx, sessionID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s cleared\n", sessionID)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	w := watch.New(args[0], sessionID, a.Pipeline, watch.Options{IngestExisting: ingestOld}, a.Logger)
	return w.Run(ctx)
}
