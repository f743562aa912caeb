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
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/engram"
	"github.com/poiesic/engram/ai"
	"github.com/poiesic/engram/core"
	"github.com/poiesic/engram/ingest"
	"github.com/poiesic/engram/storage/postgres"
)

func main() {
	app := &cli.App{
		Name:  "engram",
		Usage: "Multi-tenant semantic memory store on PostgreSQL",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "PostgreSQL connection URL (overrides ENGRAM_DATABASE_URL)",
				EnvVars: []string{"ENGRAM_DATABASE_URL"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Manage the database schema",
				Subcommands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "Apply all pending migrations",
						Action: migrateUpCommand,
					},
					{
						Name:   "down",
						Usage:  "Roll back applied migrations",
						Action: migrateDownCommand,
						Flags: []cli.Flag{
							&cli.Int64Flag{
								Name:  "to",
								Usage: "Target version to roll back to (0 reverts everything reversible)",
								Value: 0,
							},
						},
					},
					{
						Name:   "status",
						Usage:  "Show the ledger state of every migration",
						Action: migrateStatusCommand,
					},
				},
			},
			{
				Name:   "health",
				Usage:  "Check connectivity to the database server",
				Action: healthCommand,
			},
			{
				Name:      "remember",
				Usage:     "Ingest content as enriched memories",
				Action:    rememberCommand,
				ArgsUsage: "CONTENT [CONTENT...]",
				Flags: append(append(tenantFlags(), aiFlags()...),
					&cli.StringFlag{
						Name:  "source-type",
						Usage: "Provenance of the content (external-agent, manual, import, api)",
						Value: string(core.SourceManual),
					},
					&cli.StringFlag{
						Name:  "source-context",
						Usage: "Free-text provenance detail, e.g. a session or file name",
					},
				),
			},
			{
				Name:      "recall",
				Usage:     "Search memories with hybrid semantic and full-text search",
				Action:    recallCommand,
				ArgsUsage: "QUERY",
				Flags: append(append(tenantFlags(), aiFlags()...),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 10,
					},
				),
			},
			{
				Name:   "list",
				Usage:  "List memories, newest first",
				Action: listCommand,
				Flags: append(tenantFlags(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of memories to list",
						Value: 20,
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Number of memories to skip",
						Value: 0,
					},
				),
			},
			{
				Name:      "delete",
				Usage:     "Delete a memory by id",
				Action:    deleteCommand,
				ArgsUsage: "MEMORY_ID",
				Flags:     tenantFlags(),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func tenantFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "tenant",
			Aliases:  []string{"t"},
			Usage:    "Tenant identifier (UUID)",
			EnvVars:  []string{"ENGRAM_TENANT_ID"},
			Required: true,
		},
	}
}

func aiFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "ai-host",
			Usage:   "OpenAI-compatible service host URL",
			EnvVars: []string{"ENGRAM_AI_HOST"},
		},
		&cli.StringFlag{
			Name:    "embedding-model",
			Usage:   "Embedding model name",
			EnvVars: []string{"ENGRAM_EMBEDDING_MODEL"},
		},
		&cli.StringFlag{
			Name:    "extractor-model",
			Usage:   "Extraction model name",
			EnvVars: []string{"ENGRAM_EXTRACTOR_MODEL"},
		},
	}
}

// databaseConfig builds the PostgreSQL configuration from the environment
// with command-line overrides on top.
func databaseConfig(c *cli.Context) (*postgres.Config, error) {
	cfg, err := postgres.FromEnv()
	if err != nil {
		return nil, err
	}
	if url := c.String("database-url"); url != "" {
		cfg.URL = url
	}
	return cfg, nil
}

func aiConfig(c *cli.Context) *ai.Config {
	var opts []ai.ConfigOption
	if host := c.String("ai-host"); host != "" {
		opts = append(opts, ai.WithHost(host))
	}
	if model := c.String("embedding-model"); model != "" {
		opts = append(opts, ai.WithEmbeddingModel(model))
	}
	if model := c.String("extractor-model"); model != "" {
		opts = append(opts, ai.WithExtractorModel(model))
	}
	return ai.NewConfig(opts...)
}

func openDatabase(c *cli.Context) (*engram.Database, error) {
	cfg, err := databaseConfig(c)
	if err != nil {
		return nil, err
	}
	return engram.NewDatabase(cfg, engram.WithAIConfig(aiConfig(c)))
}

func migrateUpCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := db.MigrateUp(context.Background())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Printf("applied %d migration(s)\n", applied)
	return nil
}

func migrateDownCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	reverted, err := db.Migrator().Down(context.Background(), c.Int64("to"))
	if err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	fmt.Printf("reverted %d migration(s)\n", reverted)
	return nil
}

func migrateStatusCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	statuses, err := db.Migrator().Status(context.Background())
	if err != nil {
		return err
	}
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied " + s.ExecutedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%4d  %-30s  %s\n", s.Version, s.Name, state)
	}
	return nil
}

func healthCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Health(context.Background()); err != nil {
		return fmt.Errorf("unhealthy: %w", err)
	}
	fmt.Println("ok")
	return nil
}

func rememberCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one content argument is required")
	}
	tenantID, err := postgres.ParseTenantID(c.String("tenant"))
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewPipeline(ingest.WithEmbeddingModel(c.String("embedding-model")))
	if err != nil {
		return err
	}
	defer pipeline.Release()

	memories, err := pipeline.Remember(context.Background(), tenantID, c.Args().Slice(), &ingest.RememberOptions{
		SourceType:    core.SourceType(c.String("source-type")),
		SourceContext: c.String("source-context"),
	})
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	for _, mem := range memories {
		fmt.Printf("%s  %s\n", mem.ID(), truncate(mem.Content(), 60))
	}
	return nil
}

func recallCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one query argument is required")
	}
	tenantID, err := postgres.ParseTenantID(c.String("tenant"))
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher()
	if err != nil {
		return err
	}

	results, err := searcher.Recall(context.Background(), tenantID, c.Args().First(), c.Int("limit"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	for _, result := range results {
		fmt.Printf("%.3f  %s  %s\n", result.Score, result.Memory.ID(), truncate(result.Memory.Content(), 60))
	}
	return nil
}

func listCommand(c *cli.Context) error {
	tenantID, err := postgres.ParseTenantID(c.String("tenant"))
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	memories, err := db.MemoryRepository().FindAll(context.Background(), tenantID, c.Int("limit"), c.Int("offset"))
	if err != nil {
		return err
	}

	for _, mem := range memories {
		fmt.Printf("%s  %s  %s\n",
			mem.ID(),
			mem.CreatedAt().Format("2006-01-02 15:04:05"),
			truncate(mem.Content(), 60))
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one memory id argument is required")
	}
	tenantID, err := postgres.ParseTenantID(c.String("tenant"))
	if err != nil {
		return err
	}
	memoryID, err := uuidArg(c.Args().First())
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	deleted, err := db.MemoryRepository().Delete(context.Background(), tenantID, memoryID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("memory %s not found", memoryID)
	}
	fmt.Println("deleted")
	return nil
}

func uuidArg(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid memory id %q: %w", raw, err)
	}
	return id, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
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
