package secretstores

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/systmms/dbrotate/internal/config"
	dserrors "github.com/systmms/dbrotate/internal/errors"
	"github.com/systmms/dbrotate/internal/logging"
	"github.com/systmms/dbrotate/pkg/secretstore"
)

// AzureKeyVaultClientAPI defines the interface for Azure Key Vault operations
// This allows for mocking in tests
type AzureKeyVaultClientAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
	SetSecret(ctx context.Context, name string, parameters azsecrets.SetSecretParameters, options *azsecrets.SetSecretOptions) (azsecrets.SetSecretResponse, error)
}

// AzureKeyVault reads the current version of a secret and sets new ones
type AzureKeyVault struct {
	client AzureKeyVaultClientAPI
	logger *logging.Logger
}

// AzureKeyVaultOption is a functional option for AzureKeyVault
type AzureKeyVaultOption func(*AzureKeyVault)

// WithAzureKeyVaultClient sets a custom Azure Key Vault client (for testing)
func WithAzureKeyVaultClient(client AzureKeyVaultClientAPI) AzureKeyVaultOption {
	return func(s *AzureKeyVault) {
		s.client = client
	}
}

// NewAzureKeyVault creates the store using DefaultAzureCredential
// (environment, workload identity, managed identity, Azure CLI).
func NewAzureKeyVault(cfg config.SecretStoreSettings, logger *logging.Logger, opts ...AzureKeyVaultOption) (*AzureKeyVault, error) {
	if cfg.AzureVaultURL == "" {
		return nil, dserrors.ConfigError{
			Field:      "azure_vault_url",
			Message:    "vault URL is required for Azure Key Vault",
			Suggestion: "Set AZURE_VAULT_URL (e.g., https://my-vault.vault.azure.net/)",
		}
	}
	if u, err := url.Parse(cfg.AzureVaultURL); err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, dserrors.ConfigError{
			Field:      "azure_vault_url",
			Value:      cfg.AzureVaultURL,
			Message:    "invalid vault URL",
			Suggestion: "Use format: https://vault-name.vault.azure.net/",
		}
	}

	s := &AzureKeyVault{logger: logger}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure credential: %w", err)
		}
		client, err := azsecrets.NewClient(cfg.AzureVaultURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure Key Vault client: %w", err)
		}
		s.client = client
	}

	return s, nil
}

// Name returns the store type
func (s *AzureKeyVault) Name() string {
	return TypeAzureKeyVault
}

// Fetch returns the current secret value
func (s *AzureKeyVault) Fetch(ctx context.Context, id string) (string, error) {
	resp, err := s.client.GetSecret(ctx, id, "", nil)
	if err != nil {
		return "", s.handleError(err, id, "fetch")
	}
	if resp.Value == nil {
		return "", fmt.Errorf("secret '%s' has no value", id)
	}
	return *resp.Value, nil
}

// Put sets a new version of the secret
func (s *AzureKeyVault) Put(ctx context.Context, id string, payload string) error {
	resp, err := s.client.SetSecret(ctx, id, azsecrets.SetSecretParameters{Value: &payload}, nil)
	if err != nil {
		return s.handleError(err, id, "update")
	}
	if resp.ID != nil {
		s.logger.Debug("Secret %s now at version %s", id, resp.ID.Version())
	}
	return nil
}

func (s *AzureKeyVault) handleError(err error, id, op string) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return secretstore.NotFoundError{Store: TypeAzureKeyVault, Path: id}
		case http.StatusUnauthorized, http.StatusForbidden:
			return secretstore.AuthError{Store: TypeAzureKeyVault, Message: respErr.ErrorCode}
		}
	}
	return dserrors.StoreError(TypeAzureKeyVault, op, err)
}
