package secretstores

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/systmms/dbrotate/internal/config"
	dserrors "github.com/systmms/dbrotate/internal/errors"
	"github.com/systmms/dbrotate/internal/logging"
	"github.com/systmms/dbrotate/pkg/secretstore"
)

// SSMClientAPI defines the interface for AWS SSM Parameter Store operations
// This allows for mocking in tests
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// AWSSSM stores payloads in (SecureString) parameters
type AWSSSM struct {
	client SSMClientAPI
	logger *logging.Logger
}

// AWSSSMOption is a functional option for AWSSSM
type AWSSSMOption func(*AWSSSM)

// WithSSMClient sets a custom SSM client (for testing)
func WithSSMClient(client SSMClientAPI) AWSSSMOption {
	return func(s *AWSSSM) {
		s.client = client
	}
}

// NewAWSSSM creates the Parameter Store backend
func NewAWSSSM(ctx context.Context, cfg config.SecretStoreSettings, logger *logging.Logger, opts ...AWSSSMOption) (*AWSSSM, error) {
	s := &AWSSSM{logger: logger}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, err
		}

		var clientOpts []func(*ssm.Options)
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			clientOpts = append(clientOpts, func(o *ssm.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		s.client = ssm.NewFromConfig(awsCfg, clientOpts...)

		if logger.IsDebug() && cfg.Endpoint == "" {
			logCallerIdentity(ctx, sts.NewFromConfig(awsCfg), logger)
		}
	}

	return s, nil
}

// Name returns the store type
func (s *AWSSSM) Name() string {
	return TypeAWSSSM
}

// Fetch returns the decrypted parameter value
func (s *AWSSSM) Fetch(ctx context.Context, id string) (string, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(id),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", s.handleError(err, id, "fetch")
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("parameter '%s' has no value", id)
	}
	return *out.Parameter.Value, nil
}

// Put overwrites the parameter value. The parameter keeps its type and key.
func (s *AWSSSM) Put(ctx context.Context, id string, payload string) error {
	out, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(id),
		Value:     aws.String(payload),
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return s.handleError(err, id, "update")
	}
	s.logger.Debug("Parameter %s now at version %d", id, out.Version)
	return nil
}

func (s *AWSSSM) handleError(err error, id, op string) error {
	var notFound *types.ParameterNotFound
	if errors.As(err, &notFound) {
		return secretstore.NotFoundError{Store: TypeAWSSSM, Path: id}
	}
	if isAWSAuthError(err) {
		return secretstore.AuthError{
			Store:   TypeAWSSSM,
			Message: fmt.Sprintf("AWS authentication/authorization failed: %v", err),
		}
	}
	return dserrors.StoreError(TypeAWSSSM, op, err)
}
