package migrations

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := fs.Glob(PostgresFS, "postgres/*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres/001_vault_facts.sql", "postgres/002_vault_snapshots.sql"}, pg)

	ch, err := fs.Glob(ClickhouseFS, "clickhouse/*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"clickhouse/001_vault_nav.sql"}, ch)

	data, err := fs.ReadFile(ClickhouseFS, ch[0])
	require.NoError(t, err)
	require.NoError(t, validateNoSemicolonInStrings(string(data)))

	stmts := splitStatements(string(data))
	require.Len(t, stmts, 1)
	assert.True(t, strings.HasPrefix(stmts[0], "CREATE TABLE IF NOT EXISTS vault_nav"))
}

func TestSplitStatements(t *testing.T) {
	input := `
-- header comment
CREATE TABLE a (x UInt8) ENGINE = Memory;

-- second
CREATE TABLE b (y UInt8) ENGINE = Memory;
`
	got := splitStatements(input)
	assert.Equal(t, []string{
		"CREATE TABLE a (x UInt8) ENGINE = Memory",
		"CREATE TABLE b (y UInt8) ENGINE = Memory",
	}, got)
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings(`SELECT 'it''s'; SELECT 1;`))
	assert.Error(t, validateNoSemicolonInStrings(`SELECT 'a;b'`))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/vault")
	require.NoError(t, err)
	assert.Equal(t, "vault", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"pg/002_b.sql":   {Data: []byte("CREATE TABLE b (id INT);")},
		"pg/001_a.sql":   {Data: []byte("CREATE TABLE a (id INT);")},
		"pg/README.md":   {Data: []byte("not a migration")},
		"pg/sub/003.sql": {Data: []byte("ignored")},
	}

	ms, err := Load(fsys, "pg")
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "001_a.sql", ms[0].Version)
	assert.Equal(t, "002_b.sql", ms[1].Version)
	assert.Equal(t, "CREATE TABLE a (id INT);", ms[0].SQL)
	assert.Len(t, ms[0].Checksum, 64)
	assert.NotEqual(t, ms[0].Checksum, ms[1].Checksum)

	again, err := Load(fsys, "pg")
	require.NoError(t, err)
	assert.Equal(t, ms, again)

	_, err = Load(fsys, "missing")
	assert.Error(t, err)
}

func TestLoad_EmbeddedVaultSchema(t *testing.T) {
	pg, err := Load(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_vault_facts.sql", "002_vault_snapshots.sql"}, versions(pg))

	ch, err := Load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_vault_nav.sql"}, versions(ch))
}

func TestPending(t *testing.T) {
	all := []Migration{
		{Version: "001_a.sql", Checksum: "aa"},
		{Version: "002_b.sql", Checksum: "bb"},
		{Version: "003_c.sql", Checksum: "cc"},
	}

	t.Run("fresh database", func(t *testing.T) {
		pending, err := Pending(all, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"001_a.sql", "002_b.sql", "003_c.sql"}, versions(pending))
	})

	t.Run("restart applies nothing", func(t *testing.T) {
		pending, err := Pending(all, map[string]string{"001_a.sql": "aa", "002_b.sql": "bb", "003_c.sql": "cc"})
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("only new files", func(t *testing.T) {
		pending, err := Pending(all, map[string]string{"001_a.sql": "aa"})
		require.NoError(t, err)
		assert.Equal(t, []string{"002_b.sql", "003_c.sql"}, versions(pending))
	})

	t.Run("edited applied file", func(t *testing.T) {
		_, err := Pending(all, map[string]string{"001_a.sql": "changed"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrChecksumMismatch))
		assert.Contains(t, err.Error(), "001_a.sql")
	})

	t.Run("retired version ignored", func(t *testing.T) {
		pending, err := Pending(all[:1], map[string]string{"001_a.sql": "aa", "000_old.sql": "zz"})
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}
