package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/shiba/internal"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	return internal.LoadConfig(cmd.String("config"), cmd.String("data-dir"))
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.ServeMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp serve error: %w", err)
	}
	return nil
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to config file",
			DefaultText: "config/config.yaml",
			Value:       "config/config.yaml",
			Sources:     cli.EnvVars("APP_CONFIG_FILE"),
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Aliases: []string{"d"},
			Usage:   "Directory holding config.yaml (overrides data.dir)",
			Sources: cli.EnvVars("SHIBA_DATA_DIR"),
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "shiba",
		Usage:  "Watch files and push change notifications and configuration to connected UI surfaces",
		Action: run,
		Flags:  flags(),
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve configuration and journal tools over MCP stdio",
				Action: runMCP,
				Flags:  flags(),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
