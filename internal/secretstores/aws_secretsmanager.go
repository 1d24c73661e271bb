package secretstores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/systmms/dbrotate/internal/config"
	dserrors "github.com/systmms/dbrotate/internal/errors"
	"github.com/systmms/dbrotate/internal/logging"
	"github.com/systmms/dbrotate/pkg/secretstore"
)

// SecretsManagerClientAPI defines the interface for AWS Secrets Manager operations
// This allows for mocking in tests
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	UpdateSecret(ctx context.Context, params *secretsmanager.UpdateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretOutput, error)
}

// AWSSecretsManager stores payloads as the SecretString of existing secrets
type AWSSecretsManager struct {
	client SecretsManagerClientAPI
	logger *logging.Logger
}

// AWSSecretsManagerOption is a functional option for AWSSecretsManager
type AWSSecretsManagerOption func(*AWSSecretsManager)

// WithSecretsManagerClient sets a custom Secrets Manager client (for testing)
func WithSecretsManagerClient(client SecretsManagerClientAPI) AWSSecretsManagerOption {
	return func(s *AWSSecretsManager) {
		s.client = client
	}
}

// NewAWSSecretsManager creates the store. A custom endpoint (LocalStack) is honoured.
func NewAWSSecretsManager(ctx context.Context, cfg config.SecretStoreSettings, logger *logging.Logger, opts ...AWSSecretsManagerOption) (*AWSSecretsManager, error) {
	s := &AWSSecretsManager{logger: logger}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}

		var clientOpts []func(*secretsmanager.Options)
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		s.client = secretsmanager.NewFromConfig(awsCfg, clientOpts...)

		if logger.IsDebug() && cfg.Endpoint == "" {
			logCallerIdentity(ctx, sts.NewFromConfig(awsCfg), logger)
		}
	}

	return s, nil
}

// Name returns the store type
func (s *AWSSecretsManager) Name() string {
	return TypeAWSSecretsManager
}

// Fetch returns the current SecretString of id
func (s *AWSSecretsManager) Fetch(ctx context.Context, id string) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(id),
	})
	if err != nil {
		return "", s.handleError(err, id, "fetch")
	}

	switch {
	case out.SecretString != nil:
		return *out.SecretString, nil
	case out.SecretBinary != nil:
		return string(out.SecretBinary), nil
	default:
		return "", fmt.Errorf("secret '%s' has no value", id)
	}
}

// Put writes payload as a new AWSCURRENT version of id
func (s *AWSSecretsManager) Put(ctx context.Context, id string, payload string) error {
	out, err := s.client.UpdateSecret(ctx, &secretsmanager.UpdateSecretInput{
		SecretId:     aws.String(id),
		SecretString: aws.String(payload),
	})
	if err != nil {
		return s.handleError(err, id, "update")
	}
	if out.VersionId != nil {
		s.logger.Debug("Secret %s now at version %s", id, *out.VersionId)
	}
	return nil
}

func (s *AWSSecretsManager) handleError(err error, id, op string) error {
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return secretstore.NotFoundError{Store: TypeAWSSecretsManager, Path: id}
	}
	if isAWSAuthError(err) {
		return secretstore.AuthError{
			Store:   TypeAWSSecretsManager,
			Message: fmt.Sprintf("AWS authentication/authorization failed: %v", err),
		}
	}
	return dserrors.StoreError(TypeAWSSecretsManager, op, err)
}

func isAWSAuthError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "AccessDenied") ||
		strings.Contains(errStr, "UnrecognizedClient") ||
		strings.Contains(errStr, "InvalidSignature") ||
		strings.Contains(errStr, "ExpiredToken")
}
