// Command lingomux is a thin CLI over the lingomux library: it builds a
// client from a YAML config file and runs translation, batch, and
// analysis work against the configured providers.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/lingomux/lingomux"
	"github.com/lingomux/lingomux/internal/config"
	"github.com/lingomux/lingomux/internal/observability"
	"github.com/lingomux/lingomux/pkg/provider"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "lingomux",
		Short: "Resilient multi-backend translation dispatch",
		Long: `lingomux dispatches translation and analysis work across multiple
remote providers with per-provider rate limiting, health-aware fallback,
result caching, and batch orchestration.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "lingomux.yaml", "path to config file")

	rootCmd.AddCommand(translateCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildClient constructs a lingomux client from the config file.
func buildClient() (*lingomux.Client, error) {
	cfg, err := config.LoadFromFile(configFile)
	if err != nil {
		return nil, err
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	opts := []lingomux.Option{
		lingomux.WithLogger(logger),
		lingomux.WithQueueStrategy(lingomux.QueueStrategy(cfg.Queue.Strategy)),
		lingomux.WithQueueTimeout(cfg.Queue.Timeout),
		lingomux.WithAdaptiveThrottling(cfg.Queue.Adaptive),
		lingomux.WithAdaptiveInterval(cfg.Queue.AdaptiveInterval),
		lingomux.WithMaxRetries(cfg.Routing.MaxRetries),
		lingomux.WithDisableWindow(cfg.Routing.DisableWindow),
		lingomux.WithCache(cfg.Cache.MaxEntries, cfg.Cache.TTL),
		lingomux.WithBatch(cfg.Batch.Concurrency, cfg.Batch.MaxBatchSize, cfg.Batch.Pause),
		lingomux.WithMaxKeyLength(cfg.Batch.MaxKeyLength),
		lingomux.WithSourceLang(cfg.Batch.SourceLang),
	}

	for _, pc := range cfg.Providers {
		p, err := provider.NewHTTP(provider.HTTPConfig{
			Name:    pc.Name,
			BaseURL: pc.BaseURL,
			APIKey:  pc.APIKey,
			Timeout: pc.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		opts = append(opts, lingomux.WithProvider(p, lingomux.Limits{
			RPM:           pc.RPM,
			MaxConcurrent: pc.MaxConcurrent,
		}))
	}

	return lingomux.New(opts...)
}

func buildLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:      level,
		Output:     os.Stderr,
		JSONFormat: cfg.Format != "text",
	}, observability.NewRedactor())
	return logger.Logger, nil
}

func translateCmd() *cobra.Command {
	var target, source, key string
	var priority int

	cmd := &cobra.Command{
		Use:   "translate [text]",
		Short: "Translate a single text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return fmt.Errorf("--target is required")
			}

			client, err := buildClient()
			if err != nil {
				return err
			}
			defer client.Close()

			out := client.TranslateWithPriority(cmd.Context(), lingomux.WorkItem{
				Key:        key,
				Text:       args[0],
				SourceLang: source,
				TargetLang: target,
			}, priority)
			if out.Err != nil {
				return out.Err
			}

			fmt.Fprintf(os.Stderr, "provider=%s cached=%t\n", out.Provider, out.FromCache)
			fmt.Println(out.Value)
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "target language (required)")
	cmd.Flags().StringVar(&source, "source", "", "source language (defaults to config)")
	cmd.Flags().StringVar(&key, "key", "cli", "item key echoed on the outcome")
	cmd.Flags().IntVar(&priority, "priority", 0, "dispatch priority under the priority queue strategy")

	return cmd
}

func batchCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Process a batch of work items",
		Long: `Reads a JSON array of work items ({"key", "text", "source_lang",
"target_lang"}) from --file or stdin and prints one outcome per item.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readItems(file)
			if err != nil {
				return err
			}

			client, err := buildClient()
			if err != nil {
				return err
			}
			defer client.Close()

			outcomes := client.TranslateBatch(cmd.Context(), items)

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tSTATUS\tPROVIDER\tCACHED\tVALUE")
			failed := 0
			for _, out := range outcomes {
				if out.Err != nil {
					failed++
					fmt.Fprintf(w, "%s\tFAILED\t-\t-\t%s\n", out.Key, out.Err)
					continue
				}
				fmt.Fprintf(w, "%s\tOK\t%s\t%t\t%s\n", out.Key, out.Provider, out.FromCache, out.Value)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d items failed", failed, len(outcomes))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file with work items (defaults to stdin)")

	return cmd
}

type batchItem struct {
	Key        string `json:"key"`
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

func readItems(file string) ([]lingomux.WorkItem, error) {
	var data []byte
	var err error
	if file != "" {
		data, err = os.ReadFile(file)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}

	var raw []batchItem
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse items: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no work items provided")
	}

	items := make([]lingomux.WorkItem, len(raw))
	for i, r := range raw {
		if strings.TrimSpace(r.Text) == "" {
			return nil, fmt.Errorf("item %d (%q): text is required", i, r.Key)
		}
		if r.TargetLang == "" {
			return nil, fmt.Errorf("item %d (%q): target_lang is required", i, r.Key)
		}
		items[i] = lingomux.WorkItem{
			Key:        r.Key,
			Text:       r.Text,
			SourceLang: r.SourceLang,
			TargetLang: r.TargetLang,
		}
	}
	return items, nil
}

func analyzeCmd() *cobra.Command {
	var providerName string

	cmd := &cobra.Command{
		Use:   "analyze [prompt]",
		Short: "Run an analysis prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := buildClient()
			if err != nil {
				return err
			}
			defer client.Close()

			var result string
			if providerName != "" {
				result, err = client.AnalyzeWith(cmd.Context(), providerName, args[0])
			} else {
				result, err = client.Analyze(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			fmt.Println(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerName, "provider", "", "pin the analysis to one provider")

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the dispatch status snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := buildClient()
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := json.MarshalIndent(client.Status(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the lingomux version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("lingomux", lingomux.Version)
		},
	}
}
