package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3 implements Store using the AWS SDK v2.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewS3 creates a Store for bucket backed by client. Uploads go through the
// SDK's upload manager, which streams bodies and switches to multipart for
// large files.
func NewS3(client *s3.Client, bucket string, optFns ...func(*manager.Uploader)) *S3 {
	return &S3{
		client:   client,
		uploader: manager.NewUploader(client, optFns...),
		bucket:   bucket,
	}
}

// Bucket implements Store.Bucket.
func (s *S3) Bucket() string { return s.bucket }

// HeadBucket implements Store.HeadBucket.
func (s *S3) HeadBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		if isCode(err, "NotFound", "NoSuchBucket") {
			return fmt.Errorf("%w: %s", ErrBucketNotFound, s.bucket)
		}
		return fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	return nil
}

// List implements Store.List.
func (s *S3) List(ctx context.Context, prefix string) ([]ObjectSummary, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var out []ObjectSummary
	p := s3.NewListObjectsV2Paginator(s.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", s.bucket, err)
		}
		for _, obj := range page.Contents {
			out = append(out, ObjectSummary{
				Key:  aws.ToString(obj.Key),
				ETag: TrimETag(aws.ToString(obj.ETag)),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}
	return out, nil
}

// Head implements Store.Head.
func (s *S3) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	res, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) || isCode(err, "NotFound", "NoSuchKey") {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("head %s: %w", key, err)
	}
	return objectInfo(key, res), nil
}

// Put implements Store.Put.
func (s *S3) Put(ctx context.Context, input *PutInput) error {
	_, err := s.uploader.Upload(ctx, putObjectInput(s.bucket, input))
	if err != nil {
		if isCode(err, "AccessControlListNotSupported") {
			return fmt.Errorf("%w: %v", ErrACLUnsupported, err)
		}
		return fmt.Errorf("uploading %s: %w", input.Key, err)
	}
	return nil
}

// DeleteObjects implements Store.DeleteObjects.
func (s *S3) DeleteObjects(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if len(keys) > MaxDeleteBatch {
		return fmt.Errorf("delete batch of %d keys exceeds limit of %d", len(keys), MaxDeleteBatch)
	}

	ids := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
	}

	res, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("deleting %d objects: %w", len(keys), err)
	}
	if len(res.Errors) > 0 {
		first := res.Errors[0]
		return fmt.Errorf("deleting %d objects: %d failed, first %s: %s %s",
			len(keys), len(res.Errors), aws.ToString(first.Key), aws.ToString(first.Code), aws.ToString(first.Message))
	}
	return nil
}

// EnableVersioning implements Store.EnableVersioning.
func (s *S3) EnableVersioning(ctx context.Context) error {
	_, err := s.client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String(s.bucket),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: types.BucketVersioningStatusEnabled,
		},
	})
	if err != nil {
		return fmt.Errorf("enabling versioning on %s: %w", s.bucket, err)
	}
	return nil
}

// PutWebsite implements Store.PutWebsite.
func (s *S3) PutWebsite(ctx context.Context, cfg WebsiteConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, err := s.client.PutBucketWebsite(ctx, &s3.PutBucketWebsiteInput{
		Bucket:               aws.String(s.bucket),
		WebsiteConfiguration: websiteConfiguration(cfg),
	})
	if err != nil {
		return fmt.Errorf("configuring website on %s: %w", s.bucket, err)
	}
	return nil
}

func objectInfo(key string, res *s3.HeadObjectOutput) *ObjectInfo {
	return &ObjectInfo{
		Key:              key,
		ETag:             TrimETag(aws.ToString(res.ETag)),
		Size:             aws.ToInt64(res.ContentLength),
		ContentType:      aws.ToString(res.ContentType),
		ContentHash:      res.Metadata[ContentHashKey],
		CacheControl:     aws.ToString(res.CacheControl),
		ContentEncoding:  aws.ToString(res.ContentEncoding),
		RedirectLocation: aws.ToString(res.WebsiteRedirectLocation),
		Metadata:         res.Metadata,
	}
}

func putObjectInput(bucket string, in *PutInput) *s3.PutObjectInput {
	out := &s3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(in.Key),
		Body:     in.Body,
		Metadata: in.Metadata,
	}

	// Only set optional fields if they are provided
	if in.ContentType != nil {
		out.ContentType = in.ContentType
	}
	if in.ContentEncoding != nil {
		out.ContentEncoding = in.ContentEncoding
	}
	if in.CacheControl != nil {
		out.CacheControl = in.CacheControl
	}
	if in.Expires != nil {
		out.Expires = in.Expires
	}
	if in.ACL != nil {
		out.ACL = types.ObjectCannedACL(*in.ACL)
	}
	if in.StorageClass != nil {
		out.StorageClass = types.StorageClass(*in.StorageClass)
	}
	if in.ServerSideEncryption != nil {
		out.ServerSideEncryption = types.ServerSideEncryption(*in.ServerSideEncryption)
	}
	if in.WebsiteRedirectLocation != nil {
		out.WebsiteRedirectLocation = in.WebsiteRedirectLocation
	}
	return out
}

func websiteConfiguration(cfg WebsiteConfig) *types.WebsiteConfiguration {
	out := &types.WebsiteConfiguration{}
	if cfg.IndexDocument != "" {
		out.IndexDocument = &types.IndexDocument{Suffix: aws.String(cfg.IndexDocument)}
	}
	if cfg.ErrorDocument != "" {
		out.ErrorDocument = &types.ErrorDocument{Key: aws.String(cfg.ErrorDocument)}
	}
	for _, rule := range cfg.RoutingRules {
		out.RoutingRules = append(out.RoutingRules, types.RoutingRule{
			Condition: routingCondition(rule.Condition),
			Redirect: &types.Redirect{
				HostName:             optional(rule.Redirect.HostName),
				HttpRedirectCode:     optional(rule.Redirect.HTTPRedirectCode),
				Protocol:             types.Protocol(rule.Redirect.Protocol),
				ReplaceKeyPrefixWith: optional(rule.Redirect.ReplaceKeyPrefixWith),
				ReplaceKeyWith:       optional(rule.Redirect.ReplaceKeyWith),
			},
		})
	}
	return out
}

func routingCondition(c RoutingCondition) *types.Condition {
	if c.KeyPrefixEquals == "" && c.HTTPErrorCodeReturnedEquals == "" {
		return nil
	}
	return &types.Condition{
		KeyPrefixEquals:             optional(c.KeyPrefixEquals),
		HttpErrorCodeReturnedEquals: optional(c.HTTPErrorCodeReturnedEquals),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

// isCode reports whether err carries one of the given AWS error codes.
func isCode(err error, codes ...string) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	for _, c := range codes {
		if ae.ErrorCode() == c {
			return true
		}
	}
	return false
}
