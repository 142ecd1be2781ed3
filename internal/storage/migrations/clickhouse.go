package migrations

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	chstore "portfolio-vault/internal/storage/clickhouse"
)

const clickhouseLedgerDDL = `CREATE TABLE IF NOT EXISTS ` + LedgerTable + ` (
    version     String,
    checksum    String,
    applied_at  DateTime64(3) DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(applied_at)
ORDER BY version`

// RunClickhouseMigrations ensures the database exists and applies the embedded
// migrations not yet recorded in its ledger. It returns a connection to the
// target database for reuse, and the versions it applied.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, []string, error) {
	all, err := Load(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, nil, err
	}
	// The splitter is checked before anything touches the database.
	for _, m := range all {
		if err := validateNoSemicolonInStrings(m.SQL); err != nil {
			return nil, nil, fmt.Errorf("validate migration %s: %w", m.Version, err)
		}
	}

	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, nil, err
	}

	adminConn, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse admin: %w", err)
	}
	if err := adminConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName)); err != nil {
		adminConn.Close()
		return nil, nil, fmt.Errorf("create database %s: %w", dbName, err)
	}
	if err := adminConn.Close(); err != nil {
		return nil, nil, fmt.Errorf("close admin connection: %w", err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, nil, fmt.Errorf("connect clickhouse db: %w", err)
	}

	applied, err := applyClickhouse(ctx, conn, all)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, applied, nil
}

// applyClickhouse runs pending migrations one statement at a time and records
// each file once all its statements succeeded. ClickHouse has no DDL
// transactions, so migrations must stay idempotent (IF NOT EXISTS) to survive
// a crash between a statement and its ledger row.
func applyClickhouse(ctx context.Context, conn *chstore.Conn, all []Migration) ([]string, error) {
	if err := conn.Exec(ctx, clickhouseLedgerDDL); err != nil {
		return nil, fmt.Errorf("create %s: %w", LedgerTable, err)
	}

	rows, err := conn.Query(ctx, `SELECT version, checksum FROM `+LedgerTable+` FINAL`)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", LedgerTable, err)
	}
	applied := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan %s: %w", LedgerTable, err)
		}
		applied[version] = checksum
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", LedgerTable, err)
	}

	pending, err := Pending(all, applied)
	if err != nil {
		return nil, err
	}

	for _, m := range pending {
		// ClickHouse driver doesn't support multiquery in Exec
		for _, stmt := range splitStatements(m.SQL) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("apply migration %s: %w", m.Version, err)
			}
		}
		err := conn.Exec(ctx,
			`INSERT INTO `+LedgerTable+` (version, checksum) VALUES (?, ?)`,
			m.Version, m.Checksum,
		)
		if err != nil {
			return nil, fmt.Errorf("record migration %s: %w", m.Version, err)
		}
	}
	return versions(pending), nil
}

// splitStatements splits SQL content into individual statements by semicolon.
//
// IMPORTANT CONSTRAINT: This splitter is intentionally simple and does NOT handle:
//   - Semicolons inside string literals (e.g., 'foo;bar')
//   - Semicolons inside inline comments (e.g., /* foo; bar */)
//   - Dollar-quoted strings
//
// All ClickHouse migrations MUST follow these rules:
//  1. No semicolons inside string literals
//  2. Use -- style comments only (not /* */ with semicolons)
//  3. Each statement ends with a semicolon on its own line or at end of statement
//
// This constraint is validated at migration time - see validateNoSemicolonInStrings.
func splitStatements(input string) []string {
	var filtered []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		filtered = append(filtered, line)
	}
	joined := strings.Join(filtered, "\n")

	var stmts []string
	for _, part := range strings.Split(joined, ";") {
		stmt := strings.TrimSpace(part)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// validateNoSemicolonInStrings checks that SQL doesn't contain semicolons inside
// single-quoted strings, which would break our simple statement splitter.
// Returns an error if a dangerous pattern is detected.
func validateNoSemicolonInStrings(sql string) error {
	inString := false
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		if ch == '\'' {
			// Handle escaped quotes ''
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i++ // skip next quote
				continue
			}
			inString = !inString
		} else if ch == ';' && inString {
			return fmt.Errorf("semicolon found inside string literal - this breaks the migration splitter")
		}
	}
	return nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
