package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/cabinetdb/pkg/config"
	"github.com/ssargent/cabinetdb/pkg/store"
)

// execute runs one cabinet invocation with a fresh command tree.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	err := run(context.Background(), root, args)
	return out.String(), err
}

func testDB(t *testing.T, name string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return filepath.Join(t.TempDir(), name)
}

func TestRecordCommands(t *testing.T) {
	db := testDB(t, "cabinet.kct")

	_, err := execute(t, "put", "--db", db, "greeting", "hello")
	require.NoError(t, err)

	out, err := execute(t, "get", "--db", db, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	_, err = execute(t, "put", "--db", db, "--mode", "append", "greeting", " world")
	require.NoError(t, err)
	out, err = execute(t, "get", "--db", db, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out)

	_, err = execute(t, "put", "--db", db, "--mode", "add", "greeting", "again")
	assert.ErrorContains(t, err, "already exists")
	_, err = execute(t, "put", "--db", db, "--mode", "replace", "missing", "x")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
	_, err = execute(t, "put", "--db", db, "--mode", "upsert", "k", "v")
	assert.ErrorContains(t, err, "unknown put mode")

	_, err = execute(t, "delete", "--db", db, "greeting")
	require.NoError(t, err)
	_, err = execute(t, "delete", "--db", db, "greeting")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
	_, err = execute(t, "get", "--db", db, "greeting")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestIncrCommand(t *testing.T) {
	db := testDB(t, "counters.kch")

	_, err := execute(t, "incr", "--db", db, "hits")
	assert.ErrorIs(t, err, store.ErrKeyNotFound)

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"incr", "--create", "hits", "5"}, "5\n"},
		{[]string{"incr", "hits"}, "6\n"},
		{[]string{"incr", "--default", "100", "fresh"}, "101\n"},
		{[]string{"incr", "--decimal", "--create", "balance", "1.5"}, "1.5\n"},
		{[]string{"incr", "--decimal", "balance", "0.25"}, "1.75\n"},
	}
	for _, tt := range tests {
		out, err := execute(t, append(tt.args, "--db", db)...)
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.want, out, tt.args)
	}

	_, err = execute(t, "incr", "--db", db, "hits", "lots")
	assert.ErrorContains(t, err, "delta")
	_, err = execute(t, "incr", "--db", db, "--create", "--default", "1", "hits")
	assert.Error(t, err)
}

func TestMatchCommand(t *testing.T) {
	db := testDB(t, "keys.kct")
	for _, k := range []string{"user:1", "user:2", "user:3", "kitten", "mitten"} {
		_, err := execute(t, "put", "--db", db, k, "v")
		require.NoError(t, err)
	}

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"match", "prefix", "user:"}, "user:1\nuser:2\nuser:3\n"},
		{[]string{"match", "prefix", "user:", "--limit", "1"}, "user:1\n"},
		{[]string{"match", "regex", "itt"}, "kitten\nmitten\n"},
		{[]string{"match", "similar", "sitten"}, "kitten\nmitten\n"},
		{[]string{"match", "similar", "sitten", "--distance", "0"}, ""},
	}
	for _, tt := range tests {
		out, err := execute(t, append(tt.args, "--db", db)...)
		require.NoError(t, err, tt.args)
		assert.Equal(t, tt.want, out, tt.args)
	}

	_, err := execute(t, "match", "glob", "*", "--db", db)
	assert.ErrorContains(t, err, "unknown match kind")
	_, err = execute(t, "match", "prefix", "u", "--limit", "-1", "--db", db)
	assert.ErrorIs(t, err, store.ErrInvalidLimit)
	_, err = execute(t, "match", "regex", "itt", "--limit", "0", "--db", db)
	assert.ErrorIs(t, err, store.ErrInvalidLimit)
}

func TestAdminCommands(t *testing.T) {
	db := testDB(t, "source.kch")
	dir := filepath.Dir(db)
	_, err := execute(t, "put", "--db", db, "a", "1")
	require.NoError(t, err)
	_, err = execute(t, "put", "--db", db, "b", "2")
	require.NoError(t, err)

	out, err := execute(t, "status", "--db", db)
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^count\s+2$`, out)
	assert.Regexp(t, `(?m)^encoding\s+utf-8$`, out)

	snap := filepath.Join(dir, "backup.snap")
	_, err = execute(t, "dump", "--db", db, snap)
	require.NoError(t, err)

	restored := filepath.Join(dir, "restored.kct")
	_, err = execute(t, "load", "--db", restored, snap)
	require.NoError(t, err)
	out, err = execute(t, "get", "--db", restored, "b")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	copied := filepath.Join(dir, "copy.kch")
	_, err = execute(t, "copy", "--db", db, copied)
	require.NoError(t, err)
	out, err = execute(t, "get", "--db", copied, "--mode", "reader", "a")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	_, err = execute(t, "put", "--db", copied, "--mode", "reader", "c", "3")
	assert.ErrorIs(t, err, store.ErrNoPermission)
}

func TestWordCountCommand(t *testing.T) {
	db := testDB(t, "words.kct")
	_, err := execute(t, "put", "--db", db, "a", "x y")
	require.NoError(t, err)
	_, err = execute(t, "put", "--db", db, "b", "y z")
	require.NoError(t, err)

	for _, extra := range [][]string{nil, {"--threads", "3", "--no-compress", "--no-lock"}} {
		args := append([]string{"wordcount", "--db", db, "--tmp", t.TempDir()}, extra...)
		out, err := execute(t, args...)
		require.NoError(t, err)
		assert.Equal(t, "x\t1\ny\t2\nz\t1\n", out)
	}
}

func TestInitCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cabinet.yaml")
	db := filepath.Join(dir, "data", "cabinet.kct")

	out, err := execute(t, "init", "--config", cfgPath, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "API key: ")
	assert.NoDirExists(t, filepath.Join(dir, "data"), "init does not open the database")

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, db, cfg.Database.Path)
	assert.Len(t, cfg.Security.APIKey, 64)

	_, err = execute(t, "init", "--config", cfgPath)
	assert.ErrorContains(t, err, "already exists")
	_, err = execute(t, "init", "--config", cfgPath, "--force")
	require.NoError(t, err)

	// The database path now comes from the configuration.
	_, err = execute(t, "put", "--config", cfgPath, "k", "v")
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, "data"))
	out, err = execute(t, "get", "--config", cfgPath, "k")
	require.NoError(t, err)
	assert.Equal(t, "v\n", out)
}

func TestConfigOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cabinet.toml")
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "latin.kch")
	cfg.Database.Encoding = "ISO-8859-1"
	require.NoError(t, config.SaveConfig(cfg, cfgPath))

	_, err := execute(t, "put", "--config", cfgPath, "café", "crème")
	require.NoError(t, err)
	out, err := execute(t, "status", "--config", cfgPath)
	require.NoError(t, err)
	assert.Regexp(t, `(?m)^encoding\s+windows-1252$`, out)

	out, err = execute(t, "get", "--config", cfgPath, "--encoding", "utf-8", "café")
	assert.ErrorIs(t, err, store.ErrKeyNotFound, "the key was stored as Latin-1 bytes")
	assert.Empty(t, out)

	_, err = execute(t, "status", "--config", cfgPath, "--log-level", "loud")
	assert.Error(t, err)
	_, err = execute(t, "status", "--db", filepath.Join(dir, "x.sqlite"))
	assert.ErrorIs(t, err, config.ErrUnknownType)
	_, err = execute(t, "status", "--config", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestServeRequiresAPIKey(t *testing.T) {
	db := testDB(t, "served.kch")
	_, err := execute(t, "serve", "--db", db)
	assert.ErrorContains(t, err, "API key is required")
}

func TestRunClosesDatabaseOnFailure(t *testing.T) {
	db := testDB(t, "closed.kch")
	_, err := execute(t, "put", "--db", db, "k", "v")
	require.NoError(t, err)

	_, err = execute(t, "get", "--db", db, "missing")
	require.Error(t, err)

	// The failed run released the file for the next writer.
	_, err = execute(t, "put", "--db", db, "k2", "v2")
	require.NoError(t, err)
	out, err := execute(t, "match", "prefix", "k", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "k\nk2\n", out)
}
