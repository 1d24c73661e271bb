package secretstores

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/systmms/dbrotate/internal/config"
	dserrors "github.com/systmms/dbrotate/internal/errors"
	"github.com/systmms/dbrotate/internal/logging"
	"github.com/systmms/dbrotate/pkg/secretstore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GCPSecretManagerClientAPI is the subset of the Secret Manager client used here
type GCPSecretManagerClientAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	Close() error
}

// GCPSecretManager reads the latest version of a secret and writes new versions
type GCPSecretManager struct {
	client    GCPSecretManagerClientAPI
	logger    *logging.Logger
	projectID string
}

// GCPSecretManagerOption is a functional option for GCPSecretManager
type GCPSecretManagerOption func(*GCPSecretManager)

// WithGCPSecretManagerClient sets a custom client (for testing)
func WithGCPSecretManagerClient(client GCPSecretManagerClientAPI) GCPSecretManagerOption {
	return func(s *GCPSecretManager) {
		s.client = client
	}
}

// NewGCPSecretManager creates the store. GCP_PROJECT_ID is required unless secret ids
// are full resource names.
func NewGCPSecretManager(ctx context.Context, cfg config.SecretStoreSettings, logger *logging.Logger, opts ...GCPSecretManagerOption) (*GCPSecretManager, error) {
	if cfg.GCPProjectID == "" {
		return nil, dserrors.ConfigError{
			Field:      "gcp_project_id",
			Message:    "project id is required for GCP Secret Manager",
			Suggestion: "Set GCP_PROJECT_ID",
		}
	}

	s := &GCPSecretManager{logger: logger, projectID: cfg.GCPProjectID}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		var clientOpts []option.ClientOption
		if cfg.GCPCredentials != "" {
			clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.GCPCredentials))
		}
		if cfg.Endpoint != "" {
			clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
		}
		client, err := secretmanager.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCP Secret Manager client: %w", err)
		}
		s.client = client
	}

	return s, nil
}

// Name returns the store type
func (s *GCPSecretManager) Name() string {
	return TypeGCPSecretManager
}

// Fetch returns the payload of the latest version
func (s *GCPSecretManager) Fetch(ctx context.Context, id string) (string, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.secretName(id) + "/versions/latest",
	})
	if err != nil {
		return "", s.handleError(err, id, "fetch")
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secret '%s' has no payload", id)
	}
	return string(resp.GetPayload().GetData()), nil
}

// Put adds a new version, which becomes latest
func (s *GCPSecretManager) Put(ctx context.Context, id string, payload string) error {
	version, err := s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  s.secretName(id),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(payload)},
	})
	if err != nil {
		return s.handleError(err, id, "update")
	}
	s.logger.Debug("Added secret version %s", version.GetName())
	return nil
}

// Close releases the gRPC connection
func (s *GCPSecretManager) Close() error {
	return s.client.Close()
}

// secretName accepts either a short id or a full projects/<p>/secrets/<id> name
func (s *GCPSecretManager) secretName(id string) string {
	if strings.HasPrefix(id, "projects/") {
		return strings.TrimSuffix(id, "/versions/latest")
	}
	return fmt.Sprintf("projects/%s/secrets/%s", s.projectID, id)
}

func (s *GCPSecretManager) handleError(err error, id, op string) error {
	switch status.Code(err) {
	case codes.NotFound:
		return secretstore.NotFoundError{Store: TypeGCPSecretManager, Path: id}
	case codes.PermissionDenied, codes.Unauthenticated:
		return secretstore.AuthError{Store: TypeGCPSecretManager, Message: status.Convert(err).Message()}
	}
	return dserrors.StoreError(TypeGCPSecretManager, op, err)
}
