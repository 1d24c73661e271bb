package commands

import (
	"context"
	"database/sql"

	"github.com/systmms/dbrotate/internal/adminauth"
	"github.com/systmms/dbrotate/internal/config"
	"github.com/systmms/dbrotate/internal/database"
	dserrors "github.com/systmms/dbrotate/internal/errors"
	"github.com/systmms/dbrotate/internal/logging"
	"github.com/systmms/dbrotate/internal/rotation/storage"
	"github.com/systmms/dbrotate/internal/secretstores"
	"github.com/systmms/dbrotate/internal/secure"
	"github.com/systmms/dbrotate/pkg/secretstore"
)

// Runtime holds the collaborators that reach outside the process.
// Tests swap them for in-memory versions.
type Runtime struct {
	OpenStore     func(ctx context.Context, cfg config.SecretStoreSettings, logger *logging.Logger) (secretstore.Store, error)
	AdminPassword func(cfg *config.Config) (*secure.Credential, error)
	OpenDB        func(ctx context.Context, conn database.ConnConfig, cred *secure.Credential) (*sql.DB, error)
}

// DefaultRuntime wires the real secret stores, password sources and lib/pq
func DefaultRuntime() Runtime {
	registry := secretstores.NewRegistry()

	return Runtime{
		OpenStore: registry.Create,
		AdminPassword: func(cfg *config.Config) (*secure.Credential, error) {
			s := cfg.Settings
			if cfg.NonInteractive && s.AdminPasswordSource == config.PasswordSourcePrompt {
				return nil, dserrors.UserError{
					Message:    "A live run needs the admin password but prompting is disabled",
					Suggestion: "Set ADMIN_PASSWORD_SOURCE=keyring or drop --non-interactive",
				}
			}
			src, err := adminauth.NewSource(s.AdminPasswordSource, s.AdminUser, s.KeyringService)
			if err != nil {
				return nil, err
			}
			return src.Password()
		},
		OpenDB: func(ctx context.Context, conn database.ConnConfig, cred *secure.Credential) (*sql.DB, error) {
			var db *sql.DB
			err := cred.Use(func(password string) error {
				var err error
				db, err = database.Open(ctx, conn, password)
				return err
			})
			return db, err
		},
	}
}

// historyStorage resolves --history-dir, then HISTORY_DIR, then the XDG default
func historyStorage(flagDir string, settings *config.Settings) *storage.FileStorage {
	dir := flagDir
	if dir == "" && settings != nil {
		dir = settings.HistoryDir
	}
	if dir == "" {
		dir = storage.DefaultStorageDir()
	}
	return storage.NewFileStorage(dir)
}
