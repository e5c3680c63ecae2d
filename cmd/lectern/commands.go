package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/lectern"
	"github.com/poiesic/lectern/answer"
	"github.com/poiesic/lectern/citation"
	"github.com/poiesic/lectern/config"
	"github.com/poiesic/lectern/extract"
	"github.com/poiesic/lectern/ingestion"
	"github.com/poiesic/lectern/storage"
)

func ingestCommand(c *cli.Context) error {
	ctx := c.Context

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("dir") {
		cfg.Ingestion.DocumentsDir = c.String("dir")
	}
	if c.IsSet("batch-size") {
		cfg.Ingestion.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("chunk-size") {
		cfg.Ingestion.ChunkSize = c.Int("chunk-size")
	}
	if c.IsSet("chunk-overlap") {
		cfg.Ingestion.ChunkOverlap = c.Int("chunk-overlap")
	}
	if c.IsSet("dedup") {
		cfg.Ingestion.Dedup = c.String("dedup")
	}
	if c.Int("max-retries") <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	src, err := extract.NewPDFDirectory(cfg.Ingestion.DocumentsDir)
	if err != nil {
		return fmt.Errorf("failed to open documents: %w", err)
	}

	lib, err := lectern.Open(ctx, cfg,
		lectern.WithRetry(c.Int("max-retries"), c.Duration("retry-delay")),
		lectern.WithLogger(slog.Default()),
	)
	if err != nil {
		return fmt.Errorf("failed to open library: %w", err)
	}
	defer lib.Close()

	var opts []ingestion.Option
	if n := c.Int("progress"); n > 0 {
		opts = append(opts, ingestion.WithProgress(c.App.ErrWriter, n))
	}

	fmt.Fprintf(c.App.ErrWriter, "Documents: %s\n", cfg.Ingestion.DocumentsDir)
	fmt.Fprintf(c.App.ErrWriter, "Collection: %s\n", cfg.Collection)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	result, err := lib.Ingest(ctx, src, opts...)
	if result != nil {
		printIngestResult(c.App.Writer, result)
	}
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	return ingestFailure(result)
}

// ingestFailure returns an exit error when any batch of r failed.
func ingestFailure(r *ingestion.Result) error {
	if len(r.Failures) == 0 {
		return nil
	}
	return cli.Exit(fmt.Sprintf("%d batches failed (%d chunks not written)", len(r.Failures), r.Failed()), 1)
}

func searchCommand(c *cli.Context) error {
	ctx := c.Context

	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	queriesFile := c.String("queries-file")
	if query == "" && queriesFile == "" {
		return errors.New("a query or --queries-file is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	limit, threshold := retrievalParams(c, cfg)

	lib, err := lectern.Open(ctx, cfg, lectern.WithDeferredCollection(), lectern.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("failed to open library: %w", err)
	}
	defer lib.Close()

	w := c.App.Writer
	if queriesFile != "" {
		queries, err := readQueries(queriesFile)
		if err != nil {
			return err
		}
		batches, err := lib.Engine().QueryBatch(ctx, queries, limit, threshold)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		for i, q := range queries {
			fmt.Fprintf(w, "Query: %s\n\n", q)
			printCitations(w, citation.GroupResults(batches[i]))
			fmt.Fprintln(w)
		}
		return nil
	}

	if c.Bool("explain") {
		results, err := lib.Engine().QueryWithMonitor(ctx, query, limit, threshold, &explainMonitor{w: c.App.ErrWriter})
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		printCitations(w, citation.GroupResults(results))
		return nil
	}

	citations, err := lib.Retrieve(ctx, query, limit, threshold)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	printCitations(w, citations)
	return nil
}

func askCommand(c *cli.Context) error {
	ctx := c.Context

	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return errors.New("a question is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	limit, threshold := retrievalParams(c, cfg)

	lib, err := lectern.Open(ctx, cfg, lectern.WithDeferredCollection(), lectern.WithLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("failed to open library: %w", err)
	}
	defer lib.Close()

	ans, err := lib.Ask(ctx, question, limit, threshold)
	if errors.Is(err, answer.ErrNoContext) {
		fmt.Fprintln(c.App.Writer, noResults)
		return nil
	}
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	printAnswer(c.App.Writer, ans)
	return nil
}

func infoCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := lectern.OpenStore(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	w := c.App.Writer
	info, err := store.Info(c.Context)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		fmt.Fprintf(w, "Collection %q does not exist yet\n", cfg.Collection)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read collection: %w", err)
	}

	fmt.Fprintf(w, "Store:      %s\n", cfg.Store.Type)
	fmt.Fprintf(w, "Collection: %s\n", info.Name)
	fmt.Fprintf(w, "Dimension:  %d\n", info.Dimension)
	fmt.Fprintf(w, "Metric:     %s\n", info.Metric)
	fmt.Fprintf(w, "Points:     %d\n", info.Points)
	return nil
}

func dropCommand(c *cli.Context) error {
	if !c.Bool("yes") {
		return errors.New("refusing to drop the collection without --yes")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := lectern.OpenStore(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	if err := store.DeleteCollection(c.Context); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Dropped collection %q\n", cfg.Collection)
	return nil
}

func initConfigCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = c.String("config")
	}
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists, use --force to overwrite it", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Wrote default configuration to %s\n", path)
	return nil
}

// retrievalParams returns the limit and threshold flags, falling back to
// the configured values.
func retrievalParams(c *cli.Context, cfg *config.Config) (int, float32) {
	limit := cfg.Search.Limit
	if c.IsSet("limit") {
		limit = c.Int("limit")
	}
	threshold := cfg.Search.Threshold
	if c.IsSet("threshold") {
		threshold = float32(c.Float64("threshold"))
	}
	return limit, threshold
}

// readQueries returns the non-blank lines of path.
func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries: %w", err)
	}
	defer f.Close()

	var queries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			queries = append(queries, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queries: %w", err)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return queries, nil
}
