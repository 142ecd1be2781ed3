// Package migrations versions the vault schema in PostgreSQL and ClickHouse.
//
// Each embedded SQL file is one migration, identified by its file name and
// applied in lexical order. Applied migrations are recorded with a checksum in
// the vault_schema_migrations ledger of each database, so a restart only runs
// what is new and refuses to start if an applied file was edited.
package migrations

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// PostgresFS embeds all PostgreSQL migration files.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds all ClickHouse migration files.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS

// LedgerTable records applied migrations in both databases.
const LedgerTable = "vault_schema_migrations"

// ErrChecksumMismatch is returned when an applied migration no longer matches its file.
var ErrChecksumMismatch = errors.New("applied migration was modified")

// Migration is one SQL file of the vault schema.
type Migration struct {
	Version  string // file name, e.g. 001_vault_facts.sql
	SQL      string
	Checksum string // hex SHA256 of SQL
}

// Load reads the .sql files under dir in lexical order.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		sum := sha256.Sum256(data)
		out = append(out, Migration{
			Version:  name,
			SQL:      string(data),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	return out, nil
}

// Pending returns the migrations not yet in applied (version -> checksum).
// A recorded version whose checksum differs from its file fails with
// ErrChecksumMismatch. Versions recorded but no longer embedded are ignored.
func Pending(all []Migration, applied map[string]string) ([]Migration, error) {
	var pending []Migration
	for _, m := range all {
		sum, ok := applied[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if sum != m.Checksum {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, m.Version)
		}
	}
	return pending, nil
}

func versions(ms []Migration) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Version
	}
	return out
}
