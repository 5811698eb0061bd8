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
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/poiesic/kbindex"
	"github.com/poiesic/kbindex/config"
	"github.com/poiesic/kbindex/embedcache"
	"github.com/poiesic/kbindex/normalize"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "kbindex",
		Usage: "Build knowledge-base embedding indexes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "Fetch records, build the index and publish it",
				Action: buildCommand,
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "staging-name",
						Usage: "Override staging_name ([org/][env/]connector/staging)",
					},
					&cli.StringFlag{
						Name:  "preproc-mode",
						Usage: "Override preproc_mode (Basic, Advanced)",
					},
					&cli.Float64Flag{
						Name:  "specificity-threshold",
						Usage: "Override specificity_threshold (0 < t <= 1)",
					},
					&cli.BoolFlag{
						Name:  "no-cache",
						Usage: "Ignore the embedding cache and recompute every embedding",
					},
					&cli.StringFlag{
						Name:  "app-name",
						Usage: "Override app_name",
					},
					&cli.StringFlag{
						Name:  "refresh-url",
						Usage: "Override refresh_url",
					},
				},
			},
			{
				Name:   "cache-info",
				Usage:  "Show the size of the persisted embedding cache",
				Action: cacheInfoCommand,
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "list",
						Usage: "Print every cached text",
					},
				},
			},
			{
				Name:      "normalize",
				Usage:     "Normalize text the way the index build does",
				ArgsUsage: "TEXT...",
				Action:    normalizeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Preprocessing mode (Basic, Advanced)",
						Value: "Basic",
					},
					&cli.StringFlag{
						Name:  "stopwords",
						Usage: "Stopword file for Advanced mode (defaults to the built-in list)",
					},
				},
			},
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "Path to the YAML settings file",
		Required: true,
	}
}

func loadSettings(c *cli.Context) (*config.Settings, error) {
	s, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("staging-name") {
		s.StagingName = c.String("staging-name")
	}
	if c.IsSet("preproc-mode") {
		s.PreprocMode = c.String("preproc-mode")
	}
	if c.IsSet("specificity-threshold") {
		s.SpecificityThreshold = c.Float64("specificity-threshold")
	}
	if c.Bool("no-cache") {
		useCache := false
		s.EmbeddingsCache = &useCache
	}
	if c.IsSet("app-name") {
		s.AppName = c.String("app-name")
	}
	if c.IsSet("refresh-url") {
		s.RefreshURL = c.String("refresh-url")
	}
	return s, nil
}

func buildCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := loadSettings(c)
	if err != nil {
		return err
	}

	ix, err := kbindex.NewIndexer(ctx, settings)
	if err != nil {
		return err
	}
	defer ix.Close()

	res, err := ix.Run(ctx)
	if res != nil {
		printResult(c.App.ErrWriter, res)
	}
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	return nil
}

func printResult(w io.Writer, res *kbindex.Result) {
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "Build: %s\n", res.Index.BuildID)
	fmt.Fprintf(w, "Records: %d\n", res.Records)
	fmt.Fprintf(w, "Entries: %d\n", len(res.Index.Entries))
	fmt.Fprintf(w, "Distinct texts: %d (cached %d, computed %d)\n",
		res.Report.DistinctTexts, res.Report.CachedTexts, res.Report.ComputedTexts)
	if n := len(res.Report.Expand.FilteredPhrases); n > 0 {
		fmt.Fprintf(w, "Filtered tags: %d\n", n)
	}
	if res.Report.Expand.TagParseFailures > 0 {
		fmt.Fprintf(w, "Malformed tag payloads: %d\n", res.Report.Expand.TagParseFailures)
	}
	if res.IndexKey != "" {
		fmt.Fprintf(w, "Published: %s\n", res.IndexKey)
	}
}

func cacheInfoCommand(c *cli.Context) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}

	store, err := kbindex.OpenStore(c.Context, settings, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	cache, err := embedcache.New(store, settings.Keys.EmbeddingCache, nil, slog.Default())
	if err != nil {
		return err
	}
	info, err := cache.Describe(c.Context)
	if err != nil {
		return fmt.Errorf("failed to read embedding cache: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Key: %s\n", cache.Key())
	fmt.Fprintf(w, "Entries: %d\n", info.Entries)
	fmt.Fprintf(w, "Dimension: %d\n", info.Dimension)
	if c.Bool("list") {
		for _, text := range info.Texts {
			fmt.Fprintln(w, text)
		}
	}
	return nil
}

func normalizeCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one TEXT argument is required")
	}
	mode, err := normalize.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}
	stopwords, err := normalize.ForMode(mode, c.String("stopwords"))
	if err != nil {
		return err
	}
	n := normalize.New(mode, stopwords)
	for _, text := range c.Args().Slice() {
		fmt.Fprintln(c.App.Writer, n.Normalize(text))
	}
	return nil
}

// setupLogger configures the global slog logger based on the --log-level flag.
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
