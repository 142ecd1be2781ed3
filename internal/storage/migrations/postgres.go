package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"portfolio-vault/internal/storage/postgres"
)

// postgresLockKey is the advisory lock held while the schema is migrated,
// so servers starting together do not apply the same file twice.
const postgresLockKey int64 = 0x7661756c74 // "vault"

const postgresLedgerDDL = `CREATE TABLE IF NOT EXISTS ` + LedgerTable + ` (
    version     TEXT PRIMARY KEY,
    checksum    TEXT        NOT NULL,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// RunPostgresMigrations applies the embedded migrations not yet recorded in
// the ledger, in one transaction, and returns the versions it applied.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	all, err := Load(PostgresFS, "postgres")
	if err != nil {
		return nil, err
	}

	var pending []Migration
	err = pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, postgresLockKey); err != nil {
			return fmt.Errorf("lock schema: %w", err)
		}
		if _, err := tx.Exec(ctx, postgresLedgerDDL); err != nil {
			return fmt.Errorf("create %s: %w", LedgerTable, err)
		}

		applied, err := postgresApplied(ctx, tx)
		if err != nil {
			return err
		}
		pending, err = Pending(all, applied)
		if err != nil {
			return err
		}

		for _, m := range pending {
			if strings.TrimSpace(m.SQL) != "" {
				if _, err := tx.Exec(ctx, m.SQL); err != nil {
					return fmt.Errorf("apply migration %s: %w", m.Version, err)
				}
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO `+LedgerTable+` (version, checksum) VALUES ($1, $2)`,
				m.Version, m.Checksum,
			)
			if err != nil {
				return fmt.Errorf("record migration %s: %w", m.Version, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return versions(pending), nil
}

func postgresApplied(ctx context.Context, tx pgx.Tx) (map[string]string, error) {
	rows, err := tx.Query(ctx, `SELECT version, checksum FROM `+LedgerTable)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", LedgerTable, err)
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("scan %s: %w", LedgerTable, err)
		}
		applied[version] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", LedgerTable, err)
	}
	return applied, nil
}
