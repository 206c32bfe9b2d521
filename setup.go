package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/pflag"

	"github.com/petems/go-s3-sync/internal/cdn"
	"github.com/petems/go-s3-sync/internal/config"
	"github.com/petems/go-s3-sync/internal/logging"
)

// parseFlags wraps the command line flags handling.
func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := newOptions()

	fs := pflag.NewFlagSet("go-s3-sync", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.cfgFile, "config", "c", opts.cfgFile, "Config file location")
	fs.StringVar(&opts.bucket, "bucket", "", "Bucket to sync to")
	fs.StringVar(&opts.prefix, "prefix", "", "Key prefix inside the bucket")
	fs.StringVar(&opts.buildDir, "build-dir", "", "Directory holding the built site")
	fs.StringVar(&opts.region, "region", "", "AWS region")
	fs.StringVar(&opts.profile, "profile", "", "AWS shared profile")
	fs.StringVar(&opts.endpoint, "endpoint", "", "S3 compatible endpoint URL")
	fs.StringVar(&opts.cacheFile, "cache-file", "", "Location of the digest cache")
	fs.IntVar(&opts.workers, "workers", config.DefaultWorkers, "No. of workers to use")
	fs.BoolVarP(&opts.dryRun, "dry-run", "n", false, "Show what would change without touching the bucket")
	fs.BoolVarP(&opts.force, "force", "f", false, "Upload every file, even unchanged ones")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "Print ignored files and debug details")
	fs.BoolVar(&opts.noDelete, "no-delete", false, "Keep remote files that no longer exist locally")
	fs.BoolVar(&opts.invalidate, "invalidate", false, "Invalidate changed paths in CloudFront")
	fs.BoolVar(&opts.saveCfg, "save", false, "Saves the resulting settings to the config file")
	fs.BoolVar(&opts.version, "version", false, "Print version information and exit")

	if err := fs.Parse(args); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(stderr, "%v\n\nUsage:\n%s", err, fs.FlagUsages())
		}
		return nil, err
	}
	opts.flags = fs
	return opts, nil
}

// loadConfig reads the config file and environment, then applies the command
// line on top.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.cfgFile)
	if err != nil {
		return nil, err
	}
	opts.merge(cfg)

	if opts.saveCfg {
		if err := cfg.Save(opts.cfgFile); err != nil {
			return nil, fmt.Errorf("saving %s: %w", opts.cfgFile, err)
		}
	}
	return cfg, cfg.Validate()
}

// newAWSConfig loads the SDK configuration. Explicit credentials win over the
// default chain (environment, shared profile, instance role).
func newAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	configOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMaxAttempts(3),
	}
	if cfg.Region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// verifyCredentials fails early when no credentials can be resolved.
func verifyCredentials(ctx context.Context, awsCfg aws.Config) error {
	if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
		return fmt.Errorf("unable to initialize AWS credentials - please check environment: %w", err)
	}
	return nil
}

func newS3Client(awsCfg aws.Config, cfg *config.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
}

// newInvalidator returns the CloudFront controller, or nil when invalidation
// is off.
func newInvalidator(awsCfg aws.Config, cfg *config.Config, status *logging.Status, logger *slog.Logger) *cdn.Controller {
	if !cfg.CloudFront.Invalidate {
		return nil
	}

	client := cdn.NewCloudFront(cloudfront.NewFromConfig(awsCfg))
	return cdn.NewController(client, controllerOptions(cfg), status, logger)
}

func controllerOptions(cfg *config.Config) cdn.Options {
	cf := cfg.CloudFront
	return cdn.Options{
		DistributionID:  cf.DistributionID,
		Enabled:         cf.Invalidate,
		InvalidateAll:   cf.InvalidateAll,
		BatchSize:       cfg.InvalidationBatchSize(),
		MaxRetries:      cf.MaxRetries,
		BatchDelay:      cf.BatchDelay,
		Wait:            cf.Wait,
		PollInterval:    cf.PollInterval,
		MaxPollAttempts: cf.MaxPollAttempts,
		DryRun:          cfg.DryRun,
		BestEffort:      cfg.Verbose,
	}
}
