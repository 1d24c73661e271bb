package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
	dserrors "github.com/systmms/dbrotate/internal/errors"
	"github.com/systmms/dbrotate/internal/logging"
	"github.com/systmms/dbrotate/internal/password"
)

// Config holds the runtime configuration
type Config struct {
	Path           string // optional dbrotate.yaml
	TargetsPath    string // optional targets file replacing the default target list
	Logger         *logging.Logger
	NonInteractive bool

	Settings *Settings
	Targets  []Target
}

// Settings are the run parameters. Every key can be overridden by the environment
// variable of the same name in upper case (PG_HOST, PASSWORD_LENGTH, ...).
type Settings struct {
	AdminUser string `mapstructure:"pg_user"`
	Host      string `mapstructure:"pg_host"`
	Port      int    `mapstructure:"pg_port"`
	SSLMode   string `mapstructure:"pg_sslmode"`
	Database  string `mapstructure:"db_name"`

	ProjectTag     string `mapstructure:"short_project_name"`
	RegionTag      string `mapstructure:"short_region_name"`
	EnvironmentTag string `mapstructure:"environment_name"`

	PasswordLength int `mapstructure:"password_length"`

	SecretStore SecretStoreSettings `mapstructure:",squash"`

	AdminPasswordSource string `mapstructure:"admin_password_source"` // prompt or keyring
	KeyringService      string `mapstructure:"keyring_service"`

	VerifySecretWrite bool   `mapstructure:"verify_secret_write"`
	HistoryDir        string `mapstructure:"history_dir"`
}

// SecretStoreSettings select and configure the secret store backend
type SecretStoreSettings struct {
	Type           string `mapstructure:"secret_store_type"`
	Region         string `mapstructure:"secret_store_region"`
	Endpoint       string `mapstructure:"secret_store_endpoint"`
	Profile        string `mapstructure:"secret_store_profile"`
	AccessKeyID    string `mapstructure:"secret_store_access_key_id"`
	SecretKey      string `mapstructure:"secret_store_secret_access_key"`
	GCPProjectID   string `mapstructure:"gcp_project_id"`
	GCPCredentials string `mapstructure:"gcp_credentials_file"`
	AzureVaultURL  string `mapstructure:"azure_vault_url"`
}

// Admin password sources
const (
	PasswordSourcePrompt  = "prompt"
	PasswordSourceKeyring = "keyring"
)

var defaults = map[string]interface{}{
	"pg_user":                        "root",
	"pg_host":                        "localhost",
	"pg_port":                        5432,
	"pg_sslmode":                     "prefer",
	"db_name":                        "db_name",
	"short_project_name":             "prj",
	"short_region_name":              "euw2",
	"environment_name":               "uat",
	"password_length":                30,
	"secret_store_type":              "aws.secretsmanager",
	"secret_store_region":            "",
	"secret_store_endpoint":          "",
	"secret_store_profile":           "",
	"secret_store_access_key_id":     "",
	"secret_store_secret_access_key": "",
	"gcp_project_id":                 "",
	"gcp_credentials_file":           "",
	"azure_vault_url":                "",
	"admin_password_source":          PasswordSourcePrompt,
	"keyring_service":                "dbrotate",
	"verify_secret_write":            true,
	"history_dir":                    "",
}

// LoadSettings reads settings from defaults, the optional config file and the
// environment, in increasing precedence. An explicitly named file must exist.
func LoadSettings(path string) (*Settings, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dbrotate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/dbrotate")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, dserrors.ConfigError{
					Field:      "path",
					Value:      path,
					Message:    "configuration file not found",
					Suggestion: "Drop --config to rely on environment variables only",
				}
			}
			return nil, dserrors.UserError{
				Message:    "Failed to read configuration file",
				Details:    err.Error(),
				Suggestion: "Check the YAML syntax and file permissions",
				Err:        err,
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, dserrors.ConfigError{
			Message:    fmt.Sprintf("invalid configuration value: %v", err),
			Suggestion: "PG_PORT and PASSWORD_LENGTH must be integers",
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects settings that would fail only after something was mutated.
func (s *Settings) Validate() error {
	if s.PasswordLength < password.MinLength {
		return dserrors.ConfigError{
			Field:      "password_length",
			Value:      s.PasswordLength,
			Message:    fmt.Sprintf("must be at least %d to satisfy the password policy", password.MinLength),
			Suggestion: "Set PASSWORD_LENGTH to 30 or unset it",
		}
	}
	if s.Port < 1 || s.Port > 65535 {
		return dserrors.ConfigError{Field: "pg_port", Value: s.Port, Message: "must be between 1 and 65535"}
	}
	for field, value := range map[string]string{
		"pg_user":           s.AdminUser,
		"pg_host":           s.Host,
		"db_name":           s.Database,
		"secret_store_type": s.SecretStore.Type,
	} {
		if strings.TrimSpace(value) == "" {
			return dserrors.ConfigError{Field: field, Message: "must not be empty"}
		}
	}
	switch s.AdminPasswordSource {
	case PasswordSourcePrompt, PasswordSourceKeyring:
	default:
		return dserrors.ConfigError{
			Field:      "admin_password_source",
			Value:      s.AdminPasswordSource,
			Message:    "unknown admin password source",
			Suggestion: "Use 'prompt' or 'keyring'",
		}
	}
	return nil
}

// Load reads settings and the target list
func (c *Config) Load() error {
	settings, err := LoadSettings(c.Path)
	if err != nil {
		return err
	}

	targets := DefaultTargets(settings)
	if c.TargetsPath != "" {
		targets, err = LoadTargets(c.TargetsPath, settings)
		if err != nil {
			return err
		}
	}

	c.Settings = settings
	c.Targets = targets
	return nil
}
