package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/reverie/internal"
	pkgconfig "github.com/starford/reverie/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, string, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(configPath, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, configPath, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithConfigPath(path),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp error: %w", err)
	}
	return nil
}

func reindex(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	report, err := internal.Reindex(ctx, int(cmd.Int("batch")), internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("reindex error: %w", err)
	}
	fmt.Fprintf(os.Stdout, "rechunked %d entries, embedded %d chunks, %d failed\n",
		report.Rechunked, report.Embedded, report.Failed)
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "reverie",
		Usage:  "Journal with hybrid keyword and semantic retrieval for a conversational agent",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: mcp,
			},
			{
				Name:  "reindex",
				Usage: "Embed chunks stored without a vector and re-chunk entries without chunks",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch",
						Usage: "Page size",
						Value: 100,
					},
				},
				Action: reindex,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
