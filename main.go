package main

import (
	"fmt"
	"os"

	"github.com/dtnitsch/lead-crawler/internal/crawl"
	"github.com/dtnitsch/lead-crawler/internal/db"
	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "lead-crawler",
		Usage:   "Crawl listing sites and extract agent leads",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:   "crawl",
				Usage:  "Discover detail pages from seeds and extract lead records",
				Action: crawl.CrawlAction,
				Flags: append([]cli.Flag{
					configFlag(),
					&cli.StringFlag{Name: "seeds", Usage: "comma-separated seed URLs (overrides config)"},
					&cli.IntFlag{Name: "per-seed-limit", Usage: "max detail URLs taken from each seed"},
					&cli.IntFlag{Name: "max-total", Usage: "global cap on extracted records"},
					&cli.IntFlag{Name: "concurrency", Aliases: []string{"w"}, Usage: "number of extraction workers"},
					&cli.Float64Flag{Name: "rps", Usage: "global request rate limit (0 disables)"},
					&cli.StringFlag{Name: "cache-dir", Usage: "directory for the page cache"},
					&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address"},
					&cli.StringFlag{Name: "format", Value: "json", Usage: "output format: json or yaml"},
					&cli.StringFlag{Name: "fields", Usage: "comma-separated record columns to output"},
					&cli.BoolFlag{Name: "terse", Usage: "use short column names in output"},
					&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
					&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
					&cli.StringFlag{Name: "log-type", Usage: "text or json"},
				}, storeFlags()...),
			},
			{
				Name:   "leads",
				Usage:  "List stored leads",
				Action: db.LeadsAction,
				Flags: append([]cli.Flag{
					configFlag(),
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "max leads to show (0 for all)"},
					&cli.StringFlag{Name: "source", Usage: "only leads from this source (e.g. realtor)"},
					&cli.BoolFlag{Name: "with-email", Usage: "only leads with an email"},
					&cli.StringFlag{Name: "format", Value: "table", Usage: "table, json or yaml"},
					&cli.StringFlag{Name: "fields", Usage: "comma-separated columns for json/yaml output"},
					&cli.BoolFlag{Name: "terse", Usage: "use short column names in json/yaml output"},
				}, storeFlags()...),
			},
			{
				Name:   "runs",
				Usage:  "List recent crawl runs",
				Action: db.RunsAction,
				Flags: append([]cli.Flag{
					configFlag(),
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "max runs to show"},
				}, storeFlags()...),
			},
		},
	}
}

// Flag values are per-command, so each command gets its own instances.
func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML config file (default: ./config.yaml when present)",
	}
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "store", Usage: "lead store driver: sqlite, postgres or none"},
		&cli.StringFlag{Name: "dsn", Usage: "SQLite path or Postgres connection string"},
	}
}
