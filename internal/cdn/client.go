package cdn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/smithy-go"
)

//go:generate mockgen -source=client.go -destination=mock_client.go -package=cdn

// Client abstracts the CloudFront calls the controller makes. It keeps the
// controller independent of SDK request types.
type Client interface {
	// CreateInvalidation submits paths for invalidation and returns the
	// invalidation ID.
	CreateInvalidation(ctx context.Context, distributionID, callerReference string, paths []string) (string, error)
	// InvalidationStatus returns the current status, "Completed" once done.
	InvalidationStatus(ctx context.Context, distributionID, invalidationID string) (string, error)
}

// CloudFront implements Client with the AWS SDK v2.
type CloudFront struct {
	client *cloudfront.Client
}

// NewCloudFront wraps an SDK client.
func NewCloudFront(client *cloudfront.Client) *CloudFront {
	return &CloudFront{client: client}
}

// CreateInvalidation implements Client.CreateInvalidation.
func (c *CloudFront) CreateInvalidation(ctx context.Context, distributionID, callerReference string, paths []string) (string, error) {
	out, err := c.client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(distributionID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String(callerReference),
			Paths: &types.Paths{
				Quantity: aws.Int32(int32(len(paths))), // #nosec G115 - bounded by MaxBatchSize
				Items:    paths,
			},
		},
	})
	if err != nil {
		return "", err
	}
	if out.Invalidation == nil {
		return "", fmt.Errorf("create invalidation on %s: empty response", distributionID)
	}
	return aws.ToString(out.Invalidation.Id), nil
}

// InvalidationStatus implements Client.InvalidationStatus.
func (c *CloudFront) InvalidationStatus(ctx context.Context, distributionID, invalidationID string) (string, error) {
	out, err := c.client.GetInvalidation(ctx, &cloudfront.GetInvalidationInput{
		DistributionId: aws.String(distributionID),
		Id:             aws.String(invalidationID),
	})
	if err != nil {
		return "", err
	}
	if out.Invalidation == nil {
		return "", fmt.Errorf("get invalidation %s: empty response", invalidationID)
	}
	return aws.ToString(out.Invalidation.Status), nil
}

var rateLimitCodes = map[string]bool{
	"Throttling":                     true,
	"ThrottlingException":            true,
	"TooManyRequestsException":       true,
	"RequestLimitExceeded":           true,
	"TooManyInvalidationsInProgress": true,
}

// IsRateLimited reports whether err is CloudFront asking the caller to slow
// down. Such errors are worth retrying after a pause.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	var ae smithy.APIError
	if errors.As(err, &ae) && rateLimitCodes[ae.ErrorCode()] {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "Rate exceeded") || strings.Contains(msg, "Throttling")
}

var _ Client = (*CloudFront)(nil)
