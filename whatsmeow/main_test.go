package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomasfsr/gymlog/src/config"
	"github.com/thomasfsr/gymlog/src/database"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "gymlog.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", dbPath)
	t.Setenv("SESSION_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_FORMAT", "json")
	return dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	setupEnv(t)
	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema ready (sqlite)")

	// running twice is harmless
	_, err = run(t, "migrate")
	require.NoError(t, err)
}

func TestImport(t *testing.T) {
	dbPath := setupEnv(t)
	csvPath := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(`Date,Exercise,Category,Weight,Weight Unit,Reps
2024-01-01,Bench,Chest,80,kgs,10
2024-01-01,Bench,Chest,85,kgs,8
2024-01-03,Squat,Legs,100,kgs,5
2024-01-03,,Legs,100,kgs,5
`), 0o600))

	out, err := run(t, "import", "--user", "77", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 workouts, 3 sets, 2 new exercises (1 rows skipped)")

	db, err := database.NewSQLite(dbPath, 5*time.Second, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()
	dates, err := db.ListWorkoutDates(context.Background(), 77)
	require.NoError(t, err)
	assert.Len(t, dates, 2)
}

func TestImportErrors(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "import", filepath.Join(t.TempDir(), "x.csv"))
	assert.ErrorContains(t, err, `"user" not set`)

	_, err = run(t, "import", "--user", "5", filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("Date,Exercise\n2024-01-01,Bench\n"), 0o600))
	_, err = run(t, "import", "--user", "5", bad)
	assert.ErrorContains(t, err, "bad.csv")
}

func TestServeRejectsUnknownTransport(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "serve", "--transport", "telegram")
	assert.ErrorContains(t, err, `unknown transport "telegram"`)
}

func TestInvalidConfigFails(t *testing.T) {
	setupEnv(t)
	t.Setenv("DB_DRIVER", "oracle")
	_, err := run(t, "migrate")
	assert.ErrorContains(t, err, "DB_DRIVER")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	log.Info().Msg("hidden")
	log.Warn().Str("component", "bot").Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"component":"bot"`)

	_, err = newLogger(config.LogConfig{Level: "loud", Format: "json"}, &buf)
	assert.ErrorContains(t, err, "LOG_LEVEL")
}
