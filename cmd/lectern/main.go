// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/lectern/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lectern",
		Usage: "Grounded question answering over a corpus of scanned books",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "lectern.yaml",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file holding API keys",
				Value: ".env",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			return loadEnv(c.String("env-file"))
		},
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Extract, chunk and embed the documents not yet in the collection",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"d"},
						Usage:   "Directory of PDF documents (default from config)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed per request (default from config)",
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Maximum chunk length in characters (default from config)",
					},
					&cli.IntFlag{
						Name:  "chunk-overlap",
						Usage: "Characters shared by consecutive chunks (default from config)",
					},
					&cli.StringFlag{
						Name:  "dedup",
						Usage: "Skip already ingested work per document or per chunk (document, chunk)",
					},
					&cli.IntFlag{
						Name:  "progress",
						Usage: "Report progress every N documents, 0 disables",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts for each embedding request",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Print the passages matching a query, grouped by document",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: append(retrievalFlags(),
					&cli.BoolFlag{
						Name:  "explain",
						Usage: "Print the candidates the filters rejected and why",
					},
					&cli.StringFlag{
						Name:  "queries-file",
						Usage: "Run every line of the file as a query",
					},
				),
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the passages that match it",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags:     retrievalFlags(),
			},
			{
				Name:   "info",
				Usage:  "Describe the collection",
				Action: infoCommand,
			},
			{
				Name:   "drop",
				Usage:  "Delete the collection and everything in it",
				Action: dropCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm the deletion",
					},
				},
			},
			{
				Name:      "init-config",
				Usage:     "Write the default configuration",
				ArgsUsage: "<path>",
				Action:    initConfigCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
			},
		},
	}
}

func retrievalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of passages (default from config)",
		},
		&cli.Float64Flag{
			Name:    "threshold",
			Aliases: []string{"t"},
			Usage:   "Minimum similarity score (default from config)",
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadEnv loads path into the environment. A missing file is not an error.
// Variables already set are left alone.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// loadConfig reads the configuration named by the --config flag.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
