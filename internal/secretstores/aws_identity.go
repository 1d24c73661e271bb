package secretstores

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/systmms/dbrotate/internal/logging"
)

// STSClientAPI is the subset of the STS client used for the identity preflight
type STSClientAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// logCallerIdentity logs which AWS principal will write the secrets. Failures are only
// logged; the store call that follows reports the real error.
func logCallerIdentity(ctx context.Context, client STSClientAPI, logger *logging.Logger) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		logger.Warn("Could not resolve AWS caller identity: %v", err)
		return
	}
	logger.Debug("Using AWS identity %s (account %s)", aws.ToString(out.Arn), aws.ToString(out.Account))
}
