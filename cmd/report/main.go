package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"portfolio-vault/internal/config"
	"portfolio-vault/internal/reporting"
	"portfolio-vault/internal/storage"
	chstore "portfolio-vault/internal/storage/clickhouse"
	pgstore "portfolio-vault/internal/storage/postgres"
)

func main() {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	var (
		vaultAddr string
		outputDir string
		from      string
		to        string
	)
	cfg, err := config.Load(fs, os.Args[1:], func(cfg *config.Config, fs *flag.FlagSet) {
		fs.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string (fact journal)")
		fs.StringVar(&cfg.ClickhouseDSN, "clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse connection string (NAV time series)")
		fs.StringVar(&vaultAddr, "vault", "", "Vault address")
		fs.StringVar(&outputDir, "output-dir", "docs", "Output directory for generated files")
		fs.StringVar(&from, "from", "", "Window start (RFC 3339, default 24h before -to)")
		fs.StringVar(&to, "to", "", "Window end (RFC 3339, default now)")
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if cfg.PostgresDSN == "" || cfg.ClickhouseDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn and --clickhouse-dsn are required")
		os.Exit(2)
	}
	if !common.IsHexAddress(vaultAddr) {
		fmt.Fprintf(os.Stderr, "Error: --vault %q is not an address\n", vaultAddr)
		os.Exit(2)
	}
	start, end, err := parseWindow(from, to, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx := context.Background()
	facts, nav, cleanup, err := createDatabaseStores(ctx, cfg.PostgresDSN, cfg.ClickhouseDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to databases: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	vault := common.HexToAddress(vaultAddr).Hex()
	report, err := reporting.NewGenerator(facts, nav).Generate(ctx, vault, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}
	points, err := nav.GetByTimeRange(ctx, vault, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading NAV series: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output dir: %v\n", err)
		os.Exit(1)
	}
	reportPath := filepath.Join(outputDir, "VAULT_REPORT.md")
	navPath := filepath.Join(outputDir, "VAULT_NAV.csv")
	if err := os.WriteFile(reportPath, []byte(reporting.RenderMarkdown(report)), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(navPath, []byte(reporting.RenderCSV(points)), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing NAV series: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Vault report generated successfully:")
	fmt.Printf("  - %s\n", reportPath)
	fmt.Printf("  - %s (%d samples)\n", navPath, len(points))
}

// parseWindow resolves the report window to Unix milliseconds.
func parseWindow(from, to string, now time.Time) (int64, int64, error) {
	end := now
	if to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return 0, 0, fmt.Errorf("--to: %w", err)
		}
		end = t
	}
	start := end.Add(-24 * time.Hour)
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return 0, 0, fmt.Errorf("--from: %w", err)
		}
		start = t
	}
	if start.After(end) {
		return 0, 0, fmt.Errorf("window start %s is after end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start.UnixMilli(), end.UnixMilli(), nil
}

// createDatabaseStores connects to PostgreSQL and ClickHouse. The report only
// reads, so migrations are left to the server.
func createDatabaseStores(ctx context.Context, postgresDSN, clickhouseDSN string) (
	storage.FactStore,
	storage.NAVStore,
	func(),
	error,
) {
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	chConn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	cleanup := func() {
		_ = chConn.Close()
		pool.Close()
	}
	return pgstore.NewFactStore(pool), chstore.NewNAVStore(chConn), cleanup, nil
}
