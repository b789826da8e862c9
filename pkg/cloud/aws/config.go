package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// SessionConfiguration describes how to construct an AWS SDK config
// for talking to an S3-compatible object store. It deliberately
// mirrors only the handful of knobs the cold-tier FileOps needs,
// rather than the whole of the SDK's config surface.
type SessionConfiguration struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewConfigFromConfiguration constructs an awssdk.Config from a
// SessionConfiguration. When AccessKeyID is empty, the SDK's default
// credential chain (environment, shared config, instance profile) is
// used instead of static credentials.
func NewConfigFromConfiguration(ctx context.Context, c *SessionConfiguration) (awssdk.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(c.Region),
	}
	if c.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}
