package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dserrors "github.com/systmms/dbrotate/internal/errors"
	"github.com/systmms/dbrotate/internal/secretrecord"
)

// isolate keeps the test away from a dbrotate.yaml in the package directory
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
}

func TestLoadSettingsDefaults(t *testing.T) {
	isolate(t)

	s, err := LoadSettings("")
	require.NoError(t, err)

	assert.Equal(t, "root", s.AdminUser)
	assert.Equal(t, "localhost", s.Host)
	assert.Equal(t, 5432, s.Port)
	assert.Equal(t, "prefer", s.SSLMode)
	assert.Equal(t, "db_name", s.Database)
	assert.Equal(t, "prj", s.ProjectTag)
	assert.Equal(t, "euw2", s.RegionTag)
	assert.Equal(t, "uat", s.EnvironmentTag)
	assert.Equal(t, 30, s.PasswordLength)
	assert.Equal(t, "aws.secretsmanager", s.SecretStore.Type)
	assert.Equal(t, PasswordSourcePrompt, s.AdminPasswordSource)
	assert.True(t, s.VerifySecretWrite)
}

func TestLoadSettingsEnvironmentOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PG_USER", "admin")
	t.Setenv("PG_HOST", "db.internal")
	t.Setenv("PG_PORT", "6543")
	t.Setenv("SHORT_PROJECT_NAME", "shop")
	t.Setenv("ENVIRONMENT_NAME", "prod")
	t.Setenv("DB_NAME", "orders")
	t.Setenv("PASSWORD_LENGTH", "40")
	t.Setenv("SECRET_STORE_TYPE", "aws.ssm")
	t.Setenv("VERIFY_SECRET_WRITE", "false")

	s, err := LoadSettings("")
	require.NoError(t, err)

	assert.Equal(t, "admin", s.AdminUser)
	assert.Equal(t, "db.internal", s.Host)
	assert.Equal(t, 6543, s.Port)
	assert.Equal(t, "shop", s.ProjectTag)
	assert.Equal(t, "prod", s.EnvironmentTag)
	assert.Equal(t, "orders", s.Database)
	assert.Equal(t, 40, s.PasswordLength)
	assert.Equal(t, "aws.ssm", s.SecretStore.Type)
	assert.False(t, s.VerifySecretWrite)
}

func TestLoadSettingsFileThenEnvironment(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "dbrotate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"pg_host: from-file",
		"db_name: from-file",
		"secret_store_type: gcp.secretmanager",
		"gcp_project_id: my-project",
	}, "\n")), 0o600))
	t.Setenv("DB_NAME", "from-env")

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", s.Host)
	assert.Equal(t, "from-env", s.Database)
	assert.Equal(t, "gcp.secretmanager", s.SecretStore.Type)
	assert.Equal(t, "my-project", s.SecretStore.GCPProjectID)
}

func TestLoadSettingsMissingExplicitFile(t *testing.T) {
	isolate(t)

	_, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	var cfgErr dserrors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestLoadSettingsRejectsShortPassword(t *testing.T) {
	for _, length := range []string{"0", "4", "5", "6"} {
		t.Run(length, func(t *testing.T) {
			isolate(t)
			t.Setenv("PASSWORD_LENGTH", length)

			_, err := LoadSettings("")
			require.Error(t, err)

			var cfgErr dserrors.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, "password_length", cfgErr.Field)
		})
	}
}

func TestLoadSettingsRejectsNonNumericPort(t *testing.T) {
	isolate(t)
	t.Setenv("PG_PORT", "postgres")

	_, err := LoadSettings("")
	require.Error(t, err)

	var cfgErr dserrors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Settings {
		return &Settings{
			AdminUser:           "root",
			Host:                "localhost",
			Port:                5432,
			Database:            "db",
			PasswordLength:      30,
			SecretStore:         SecretStoreSettings{Type: "aws.secretsmanager"},
			AdminPasswordSource: PasswordSourcePrompt,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
		field  string
	}{
		{"port zero", func(s *Settings) { s.Port = 0 }, "pg_port"},
		{"port too high", func(s *Settings) { s.Port = 70000 }, "pg_port"},
		{"empty host", func(s *Settings) { s.Host = " " }, "pg_host"},
		{"empty database", func(s *Settings) { s.Database = "" }, "db_name"},
		{"empty store", func(s *Settings) { s.SecretStore.Type = "" }, "secret_store_type"},
		{"bad source", func(s *Settings) { s.AdminPasswordSource = "env" }, "admin_password_source"},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := s.Validate()

			var cfgErr dserrors.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestDefaultTargets(t *testing.T) {
	t.Parallel()

	targets := DefaultTargets(&Settings{ProjectTag: "prj", RegionTag: "euw2", EnvironmentTag: "uat"})
	require.Len(t, targets, 1)

	assert.Equal(t, "aw-prj-global-uat-iamrole-task-backend", targets[0].Username)
	assert.Equal(t, "aw-prj-uat-secret-postgres_details", targets[0].SecretID)
	assert.Equal(t, secretrecord.FieldPair, targets[0].Encoding)
	assert.Equal(t, secretrecord.DefaultFields(), targets[0].Fields)
}

func TestParseTargets(t *testing.T) {
	t.Parallel()

	s := &Settings{ProjectTag: "shop", RegionTag: "euw2", EnvironmentTag: "prod"}
	data := []byte(`
targets:
  - username: "svc-{{ .Project }}-{{ .Environment }}"
    secret_id: "{{ .Project }}/{{ .Region }}/api"
    encoding: field-pair
    username_key: user
    password_key: pass
  - username: reporting
    secret_id: reporting-dsn
    encoding: connection-uri
`)

	targets, err := ParseTargets(data, s)
	require.NoError(t, err)
	require.Len(t, targets, 2)

	assert.Equal(t, "svc-shop-prod", targets[0].Username)
	assert.Equal(t, "shop/euw2/api", targets[0].SecretID)
	assert.Equal(t, secretrecord.FieldPair, targets[0].Encoding)
	assert.Equal(t, secretrecord.Fields{UsernameKey: "user", PasswordKey: "pass"}, targets[0].Fields)

	assert.Equal(t, "reporting", targets[1].Username)
	assert.Equal(t, secretrecord.ConnectionURI, targets[1].Encoding)
}

func TestParseTargetsRejects(t *testing.T) {
	t.Parallel()

	s := &Settings{ProjectTag: "prj", EnvironmentTag: "uat"}

	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "targets: [\n"},
		{"empty list", "targets: []"},
		{"missing secret", "targets:\n  - username: a\n    encoding: field-pair"},
		{"unknown encoding", "targets:\n  - username: a\n    secret_id: s\n    encoding: dsn"},
		{"unknown field", "targets:\n  - username: a\n    secret_id: s\n    encoding: field-pair\n    password: x"},
		{"unknown placeholder", "targets:\n  - username: \"{{ .Team }}\"\n    secret_id: s\n    encoding: field-pair"},
		{"duplicate username", "targets:\n  - username: a\n    secret_id: s1\n    encoding: field-pair\n  - username: a\n    secret_id: s2\n    encoding: field-pair"},
		{"name too long", "targets:\n  - username: " + strings.Repeat("x", 64) + "\n    secret_id: s\n    encoding: field-pair"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTargets([]byte(tt.data), s)
			require.Error(t, err)

			var cfgErr dserrors.ConfigError
			assert.True(t, errors.As(err, &cfgErr), "got %T: %v", err, err)
		})
	}
}

func TestConfigLoad(t *testing.T) {
	isolate(t)
	t.Setenv("SHORT_PROJECT_NAME", "shop")

	cfg := &Config{}
	require.NoError(t, cfg.Load())
	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, "aw-shop-global-uat-iamrole-task-backend", cfg.Targets[0].Username)

	path := filepath.Join(t.TempDir(), "targets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targets:\n  - username: one\n    secret_id: s1\n    encoding: connection-uri\n"), 0o600))

	cfg = &Config{TargetsPath: path}
	require.NoError(t, cfg.Load())
	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, "one", cfg.Targets[0].Username)

	cfg = &Config{TargetsPath: filepath.Join(t.TempDir(), "missing.yaml")}
	assert.Error(t, cfg.Load())
}
