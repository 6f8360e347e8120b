// Package main provides the pdf-rag CLI for ingesting PDFs and asking
// questions about them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mike-a-ellis/pdf-rag/internal/app"
	"github.com/mike-a-ellis/pdf-rag/internal/config"
	"github.com/mike-a-ellis/pdf-rag/internal/indexer"
	"github.com/mike-a-ellis/pdf-rag/internal/retrieval"
	"github.com/mike-a-ellis/pdf-rag/internal/telemetry"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "pdf-rag",
	Short:         "PDF ingestion and question answering",
	Long:          "CLI tool for indexing PDFs into a vector store and answering questions from their content",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.pdf>...",
	Short: "Extract, chunk and index PDF files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var ingestDirCmd = &cobra.Command{
	Use:   "ingest-dir <dir>",
	Short: "Index every PDF below a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestDir,
}

var ingestGitHubCmd = &cobra.Command{
	Use:   "ingest-github",
	Short: "Index every PDF below github.path of github.owner/github.repo",
	Long: `Lists PDFs in a GitHub repository directory and indexes each one.

Environment variables:
  GITHUB_OWNER   Repository owner (required)
  GITHUB_REPO    Repository name (required)
  GITHUB_PATH    Directory inside the repository (default: root)
  GITHUB_TOKEN   GitHub token for higher rate limits (optional)`,
	Args: cobra.NoArgs,
	RunE: runIngestGitHub,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from ready documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents and their status",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List chat sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete documents and their indexed chunks",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

var (
	askDocs    []string
	askSession string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	askCmd.Flags().StringSliceVar(&askDocs, "doc", nil, "document ID to search (repeatable)")
	askCmd.Flags().StringVar(&askSession, "session", "", "chat session to continue")
	_ = askCmd.MarkFlagRequired("doc")

	rootCmd.AddCommand(ingestCmd, ingestDirCmd, ingestGitHubCmd, askCmd, listCmd, sessionsCmd, deleteCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the application. The returned
// function releases everything.
func setup(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := cfg.NewLogger()

	_, shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.Config{
		Endpoint:    cfg.Otel.Endpoint,
		ServiceName: cfg.Otel.ServiceName,
		Insecure:    cfg.Otel.Insecure,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = shutdownTracer(context.Background())
		return nil, nil, err
	}
	if cfg.Mongo.URI == "" || cfg.Vector.Backend == "memory" {
		fmt.Fprintln(os.Stderr, "Warning: in-memory storage is discarded when this command exits")
	}

	return a, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(shutdownCtx); err != nil {
			logger.Warn("Close failed", "error", err)
		}
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Warn("Tracer shutdown failed", "error", err)
		}
	}, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	var failed int
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("FAIL  %s: %v\n", path, err)
			failed++
			continue
		}
		doc, err := a.Pipeline.Ingest(cmd.Context(), indexer.Upload{Filename: filepath.Base(path), Data: data})
		if err != nil {
			fmt.Printf("FAIL  %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("OK    %s  id=%s chunks=%d pages=%d\n", path, doc.ID, doc.ChunksCount, doc.PageCount)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func runIngestDir(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := a.Pipeline.IndexSource(cmd.Context(), indexer.LocalSource{Dir: args[0]})
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	printIndexResult(result)
	return nil
}

func runIngestGitHub(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	src, err := a.GitHubSource()
	if err != nil {
		return err
	}
	fmt.Println("Indexing PDFs from GitHub...")
	result, err := a.Pipeline.IndexSource(cmd.Context(), src)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	printIndexResult(result)
	return nil
}

func printIndexResult(result *indexer.IndexResult) {
	fmt.Println()
	fmt.Println("Indexing complete!")
	fmt.Printf("  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))
	if result.Revision != "" {
		fmt.Printf("  Commit: %s\n", result.Revision)
	}
	for _, doc := range result.Documents {
		fmt.Printf("  + %s  %s\n", doc.ID, doc.OriginalName)
	}

	if len(result.FailedDocs) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range result.FailedDocs {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	answer, err := a.Ask(cmd.Context(), retrieval.Request{
		Question:    strings.Join(args, " "),
		DocumentIDs: askDocs,
		SessionID:   askSession,
	})
	if err != nil {
		return err
	}

	fmt.Println(answer.Response)
	if answer.SessionID != "" {
		fmt.Printf("\nSession: %s (%s)\n", answer.SessionID, answer.SessionTitle)
	}
	for _, s := range answer.Sources {
		fmt.Printf("  [%s #%d] score=%.3f\n", s.DocumentID, s.ChunkIndex, s.Score)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	docs, err := a.Records.ListDocuments(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPAGES\tCHUNKS\tCREATED")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			d.ID, d.OriginalName, d.Status, d.PageCount, d.ChunksCount, d.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runSessions(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	sessions, err := a.Records.ListSessions(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tDOCUMENTS\tMESSAGES\tUPDATED")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			s.ID, s.Title, strings.Join(s.DocumentIDs, ","), len(s.Messages), s.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	for _, id := range args {
		if err := a.Pipeline.DeleteDocument(cmd.Context(), id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		fmt.Printf("Deleted %s\n", id)
	}
	return nil
}
