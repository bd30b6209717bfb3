package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/kailas-cloud/newsdigest/internal/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "newsdigest:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "newsdigest",
		Usage:   "categorize and summarize news items with a generate/audit/recover LLM protocol",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "environment (local, dev, docker, prod); selects config/<env>.yaml",
				EnvVars: []string{"ENV"},
				Value:   "local",
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "explicit config file, overrides the --env lookup",
				EnvVars: []string{"NEWSDIGEST_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "annotate a JSON batch of items and write the widget feed",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "JSON array of items", Required: true},
					&cli.StringFlag{Name: "export", Aliases: []string{"o"}, Usage: "feed path (default: export.path from config)"},
					&cli.IntFlag{Name: "chunk-size", Usage: "items per chunk (default: pipeline.chunk_size)"},
					&cli.BoolFlag{Name: "weekly", Usage: "mark the run as a weekly digest"},
					&cli.BoolFlag{Name: "dry-run", Usage: "annotate and export without archiving the run"},
				},
				Action: runAction,
			},
			{
				Name:   "serve",
				Usage:  "serve the annotation HTTP API",
				Action: serveAction,
			},
			{
				Name:  "version",
				Usage: "print build metadata",
				Action: func(c *cli.Context) error {
					_, err := fmt.Fprintln(c.App.Writer, version.String())
					return err
				},
			},
		},
	}
}
