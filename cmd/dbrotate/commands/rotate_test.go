package commands

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/systmms/dbrotate/internal/config"
	"github.com/systmms/dbrotate/internal/database"
	dserrors "github.com/systmms/dbrotate/internal/errors"
	"github.com/systmms/dbrotate/internal/logging"
	"github.com/systmms/dbrotate/internal/password"
	"github.com/systmms/dbrotate/internal/rotation/storage"
	"github.com/systmms/dbrotate/internal/secure"
	"github.com/systmms/dbrotate/pkg/secretstore"
)

const (
	defaultUser   = "aw-prj-global-uat-iamrole-task-backend"
	defaultSecret = "aw-prj-uat-secret-postgres_details"
)

// testEnv isolates config discovery and returns a config with a captured logger
func testEnv(t *testing.T) (*config.Config, *bytes.Buffer) {
	t.Helper()
	t.Chdir(t.TempDir())

	var logs bytes.Buffer
	return &config.Config{Logger: logging.NewWithWriter(&logs, false, true)}, &logs
}

func memoryRuntime(t *testing.T, store *secretstore.Memory) Runtime {
	t.Helper()
	return Runtime{
		OpenStore: func(context.Context, config.SecretStoreSettings, *logging.Logger) (secretstore.Store, error) {
			return store, nil
		},
		AdminPassword: func(*config.Config) (*secure.Credential, error) {
			t.Fatal("admin password must not be requested")
			return nil, nil
		},
		OpenDB: func(context.Context, database.ConnConfig, *secure.Credential) (*sql.DB, error) {
			t.Fatal("database must not be opened")
			return nil, nil
		},
	}
}

func execute(t *testing.T, cfg *config.Config, rt Runtime, args ...string) (string, error) {
	t.Helper()
	cmd := NewRotateCommand(cfg, rt)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRotateDryRun(t *testing.T) {
	cfg, logs := testEnv(t)
	store := secretstore.NewMemory(map[string]string{
		defaultSecret: `{"DB_USER":"old","DB_PASSWORD":"old","DB_HOST":"db"}`,
	})
	historyDir := t.TempDir()
	textfile := filepath.Join(t.TempDir(), "dbrotate.prom")

	out, err := execute(t, cfg, memoryRuntime(t, store),
		"--dry-run", "--history-dir", historyDir, "--metrics-textfile", textfile)
	require.NoError(t, err)

	assert.Empty(t, store.Writes())
	assert.Contains(t, out, defaultUser)
	assert.Contains(t, out, "secret_updated")
	assert.Contains(t, out, "1 succeeded, 0 failed")
	assert.Contains(t, logs.String(), "[DRY RUN] Would execute SQL for user "+defaultUser)

	runs, err := storage.NewFileStorage(historyDir).ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "dry-run", runs[0].Mode)

	prom, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `dbrotate_targets_total{mode="dry-run",state="secret_updated"} 1`)
}

func TestRotateLive(t *testing.T) {
	cfg, _ := testEnv(t)
	t.Setenv("PG_HOST", "db.internal")

	store := secretstore.NewMemory(map[string]string{
		defaultSecret: `{"DB_USER":"old","DB_PASSWORD":"old"}`,
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	quoted := regexp.QuoteMeta(`"` + defaultUser + `"`)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM pg_roles WHERE rolname = $1")).
		WithArgs(defaultUser).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec(`^ALTER USER ` + quoted + ` WITH PASSWORD '[A-Za-z0-9]{30}'$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^GRANT ALL PRIVILEGES ON DATABASE "db_name" TO ` + quoted + `$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^GRANT USAGE ON SCHEMA public TO ` + quoted + `$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^GRANT ALL PRIVILEGES ON ALL TABLES IN SCHEMA public TO ` + quoted + `$`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectClose()

	var calls []string
	rt := Runtime{
		OpenStore: func(context.Context, config.SecretStoreSettings, *logging.Logger) (secretstore.Store, error) {
			calls = append(calls, "store")
			return store, nil
		},
		AdminPassword: func(*config.Config) (*secure.Credential, error) {
			calls = append(calls, "password")
			return secure.NewCredential([]byte("adm1n"))
		},
		OpenDB: func(_ context.Context, conn database.ConnConfig, cred *secure.Credential) (*sql.DB, error) {
			calls = append(calls, "db")
			assert.Equal(t, "db.internal", conn.Host)
			assert.Equal(t, "root", conn.User)
			require.NoError(t, cred.Use(func(pw string) error {
				assert.Equal(t, "adm1n", pw)
				return nil
			}))
			return db, nil
		},
	}

	out, err := execute(t, cfg, rt, "--no-history")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"store", "password", "db"}, calls)
	assert.Contains(t, out, "1 succeeded, 0 failed")

	payload, _ := store.Get(defaultSecret)
	var stored map[string]string
	require.NoError(t, json.Unmarshal([]byte(payload), &stored))
	assert.Equal(t, defaultUser, stored["DB_USER"])
	assert.Len(t, stored["DB_PASSWORD"], 30)
	assert.True(t, password.Satisfies(stored["DB_PASSWORD"]))
}

func TestRotateTargetFailureKeepsExitCode(t *testing.T) {
	cfg, _ := testEnv(t)
	store := secretstore.NewMemory(map[string]string{})

	out, err := execute(t, cfg, memoryRuntime(t, store), "--dry-run", "--no-history")
	require.NoError(t, err)
	assert.Contains(t, out, "secret_update_failed")
	assert.Contains(t, out, "0 succeeded, 1 failed")
}

func TestRotateTargetsFile(t *testing.T) {
	cfg, _ := testEnv(t)
	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
targets:
  - username: reporting
    secret_id: reporting-dsn
    encoding: connection-uri
`), 0o600))

	store := secretstore.NewMemory(map[string]string{
		"reporting-dsn": `{"url":"postgres://reporting:old@db:5432/app"}`,
	})

	out, err := execute(t, cfg, memoryRuntime(t, store), "--dry-run", "--no-history", "--targets", path)
	require.NoError(t, err)
	assert.Contains(t, out, "reporting-dsn")
	assert.NotContains(t, out, defaultUser)
}

func TestRotateConfigErrorBeforeAnything(t *testing.T) {
	cfg, _ := testEnv(t)
	t.Setenv("PASSWORD_LENGTH", "4")

	rt := memoryRuntime(t, nil)
	rt.OpenStore = func(context.Context, config.SecretStoreSettings, *logging.Logger) (secretstore.Store, error) {
		t.Fatal("store must not be opened")
		return nil, nil
	}

	_, err := execute(t, cfg, rt, "--no-history")

	var cfgErr dserrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "password_length", cfgErr.Field)
}

func TestRotateConnectionFailure(t *testing.T) {
	cfg, _ := testEnv(t)
	store := secretstore.NewMemory(map[string]string{defaultSecret: `{}`})

	rt := memoryRuntime(t, store)
	rt.AdminPassword = func(*config.Config) (*secure.Credential, error) {
		return secure.NewCredential([]byte("wrong"))
	}
	rt.OpenDB = func(context.Context, database.ConnConfig, *secure.Credential) (*sql.DB, error) {
		return nil, errors.New(`pq: password authentication failed for user "root"`)
	}

	_, err := execute(t, cfg, rt, "--no-history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password authentication failed")
	assert.Empty(t, store.Writes())
}

func TestDefaultRuntimeNonInteractive(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		NonInteractive: true,
		Settings:       &config.Settings{AdminUser: "root", AdminPasswordSource: config.PasswordSourcePrompt},
	}

	_, err := DefaultRuntime().AdminPassword(cfg)

	var userErr dserrors.UserError
	require.True(t, errors.As(err, &userErr))
	assert.Contains(t, userErr.Suggestion, "keyring")
}
