// Package secretstores builds the secretstore.Store selected by SECRET_STORE_TYPE.
package secretstores

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/systmms/dbrotate/internal/config"
	dserrors "github.com/systmms/dbrotate/internal/errors"
	"github.com/systmms/dbrotate/internal/logging"
	"github.com/systmms/dbrotate/pkg/secretstore"
)

// Store type names
const (
	TypeAWSSecretsManager = "aws.secretsmanager"
	TypeAWSSSM            = "aws.ssm"
	TypeGCPSecretManager  = "gcp.secretmanager"
	TypeAzureKeyVault     = "azure.keyvault"
)

// Factory creates a store from settings
type Factory func(ctx context.Context, cfg config.SecretStoreSettings, logger *logging.Logger) (secretstore.Store, error)

// Registry manages secret store creation by type
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates a registry with the built-in secret stores
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.Register(TypeAWSSecretsManager, func(ctx context.Context, cfg config.SecretStoreSettings, logger *logging.Logger) (secretstore.Store, error) {
		return NewAWSSecretsManager(ctx, cfg, logger)
	})
	r.Register(TypeAWSSSM, func(ctx context.Context, cfg config.SecretStoreSettings, logger *logging.Logger) (secretstore.Store, error) {
		return NewAWSSSM(ctx, cfg, logger)
	})
	r.Register(TypeGCPSecretManager, func(ctx context.Context, cfg config.SecretStoreSettings, logger *logging.Logger) (secretstore.Store, error) {
		return NewGCPSecretManager(ctx, cfg, logger)
	})
	r.Register(TypeAzureKeyVault, func(ctx context.Context, cfg config.SecretStoreSettings, logger *logging.Logger) (secretstore.Store, error) {
		return NewAzureKeyVault(cfg, logger)
	})

	return r
}

// Register adds or replaces the factory for storeType
func (r *Registry) Register(storeType string, factory Factory) {
	r.factories[storeType] = factory
}

// IsSupported checks if a secret store type is supported
func (r *Registry) IsSupported(storeType string) bool {
	_, ok := r.factories[storeType]
	return ok
}

// SupportedTypes returns the registered store types, sorted
func (r *Registry) SupportedTypes() []string {
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Create builds the store named by cfg.Type
func (r *Registry) Create(ctx context.Context, cfg config.SecretStoreSettings, logger *logging.Logger) (secretstore.Store, error) {
	factory, ok := r.factories[cfg.Type]
	if !ok {
		return nil, dserrors.ConfigError{
			Field:      "secret_store_type",
			Value:      cfg.Type,
			Message:    "unknown secret store type",
			Suggestion: "Use one of: " + strings.Join(r.SupportedTypes(), ", "),
		}
	}

	store, err := factory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s secret store: %w", cfg.Type, err)
	}
	logger.Debug("Using %s secret store", cfg.Type)
	return store, nil
}
