package db

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dtnitsch/lead-crawler/internal/common"
	"github.com/dtnitsch/lead-crawler/internal/config"
	"github.com/dtnitsch/lead-crawler/internal/crawl"
	dbpkg "github.com/dtnitsch/lead-crawler/pkg/db"
	"github.com/urfave/cli/v2"
)

// openStore opens the configured lead store for read commands.
func openStore(c *cli.Context) (dbpkg.LeadStore, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if cfg.Store == nil {
		cfg.Store = &config.StoreConfig{Driver: "sqlite"}
	}
	if c.IsSet("dsn") {
		cfg.Store.DSN = c.String("dsn")
	}
	if c.IsSet("store") {
		cfg.Store.Driver = c.String("store")
	}
	store, err := crawl.OpenStore(c.Context, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("no lead store configured (store.driver is none)")
	}
	return store, nil
}

// LeadsAction lists stored leads.
func LeadsAction(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	leads, err := store.ListLeads(c.Context, dbpkg.ListOptions{
		Limit:     c.Int("limit"),
		Source:    c.String("source"),
		WithEmail: c.Bool("with-email"),
	})
	if err != nil {
		return fmt.Errorf("failed to list leads: %w", err)
	}
	return PrintLeads(os.Stdout, leads, c.String("format"), c.String("fields"), c.Bool("terse"))
}

// PrintLeads writes leads as a table, or as json/yaml rows filtered to fields.
func PrintLeads(w io.Writer, leads []dbpkg.Lead, format, fields string, terse bool) error {
	if format != "" && format != "table" {
		rows := make([]map[string]interface{}, len(leads))
		for i, l := range leads {
			rows[i] = common.FilterResultFields(l, fields, terse)
		}
		data, err := crawl.Render(rows, format)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	if len(leads) == 0 {
		fmt.Fprintln(w, "No leads found")
		return nil
	}

	fmt.Fprintf(w, "%-5s %-24s %-30s %-16s %-24s %-12s %-10s\n",
		"ID", "Name", "Email", "City", "Brokerage", "Price", "Source")
	fmt.Fprintln(w, strings.Repeat("-", 128))
	for _, l := range leads {
		fmt.Fprintf(w, "%-5d %-24s %-30s %-16s %-24s %-12s %-10s\n",
			l.ID,
			truncate(l.Name, 24),
			truncate(l.Email, 30),
			truncate(l.City, 16),
			truncate(l.Brokerage, 24),
			truncate(l.Price, 12),
			l.Source,
		)
	}
	fmt.Fprintf(w, "\nTotal: %d leads\n", len(leads))
	return nil
}

// RunsAction lists recent crawl runs.
func RunsAction(c *cli.Context) error {
	store, err := openStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(c.Context, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	return PrintRuns(os.Stdout, runs)
}

func PrintRuns(w io.Writer, runs []dbpkg.RunSummary) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found")
		return nil
	}

	fmt.Fprintf(w, "%-36s %-20s %-8s %-8s %-8s %-8s %-8s %-8s\n",
		"Run ID", "Started", "Found", "Tried", "OK", "Blocked", "Failed", "Records")
	fmt.Fprintln(w, strings.Repeat("-", 112))
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s %-20s %-8d %-8d %-8d %-8d %-8d %-8d\n",
			r.RunID,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.Stats.Discovered,
			r.Stats.Attempted,
			r.Stats.Succeeded,
			r.Stats.Blocked,
			r.Stats.Failed,
			r.RecordCount,
		)
	}
	fmt.Fprintf(w, "\nTotal: %d runs\n", len(runs))
	fmt.Fprintf(w, "\nTip: Use 'lead-crawler leads --format=json' to export stored leads\n")
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
