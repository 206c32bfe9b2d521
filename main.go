package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/petems/go-s3-sync/internal/config"
	"github.com/petems/go-s3-sync/internal/fingerprint"
	"github.com/petems/go-s3-sync/internal/logging"
	"github.com/petems/go-s3-sync/internal/s3sync"
	"github.com/petems/go-s3-sync/internal/store"
)

// Exit codes
const (
	Success = iota
	SetupFailed
	S3AuthError
	CmdLineOptionError
	ConfigError
	SyncFailed
)

var (
	// Version is the semantic version number
	Version = "dev"
	// GitCommit is the git commit SHA
	GitCommit = "unknown"
	// BuildDate is the date the binary was built
	BuildDate = "unknown"
)

// GetVersion returns the full version string
func GetVersion() string {
	return fmt.Sprintf("go-s3-sync version %s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one sync and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return Success
		}
		return CmdLineOptionError
	}
	if opts.version {
		fmt.Fprintln(stdout, GetVersion())
		return Success
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return ConfigError
	}

	status := logging.NewStatus(stdout, cfg.Verbose)
	logger := logging.NewLogger(cfg.IsProduction(), cfg.Verbose, stderr)

	awsCfg, err := newAWSConfig(ctx, cfg)
	if err != nil {
		status.Fail("Setup failed:", "%v", err)
		return SetupFailed
	}
	if err := verifyCredentials(ctx, awsCfg); err != nil {
		status.Fail("Setup failed:", "%v", err)
		return S3AuthError
	}

	hasher, closeCache, err := openHasher(cfg, logger)
	if err != nil {
		status.Fail("Setup failed:", "%v", err)
		return SetupFailed
	}
	defer closeCache()

	bucket := store.NewS3(newS3Client(awsCfg, cfg), cfg.Bucket)
	syncRun, err := s3sync.NewRun(cfg, bucket, hasher, status, logger)
	if err != nil {
		status.Fail("Configuration error:", "%v", err)
		return ConfigError
	}

	var invalidator s3sync.Invalidator
	if c := newInvalidator(awsCfg, cfg, status, logger); c != nil {
		invalidator = c
	}

	engine := s3sync.NewEngine(syncRun, s3sync.DirSource{Root: cfg.BuildDir}, invalidator)
	report, err := engine.Sync(ctx)
	if err != nil {
		status.Fail("Sync failed:", "%v", err)
		return SyncFailed
	}

	logger.Info("sync complete",
		slog.String("bucket", cfg.Bucket),
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("deleted", report.Deleted),
		slog.Int("identical", report.Identical),
		slog.Int("ignored", report.Ignored),
		slog.Int("alternate_encoding", report.AlternateEncoding),
		slog.Int("invalidations", len(report.Invalidations)))
	status.Say("All done!")
	return Success
}

// openHasher opens the digest cache when one is configured.
func openHasher(cfg *config.Config, logger *slog.Logger) (*fingerprint.Hasher, func(), error) {
	if cfg.CacheFile == "" {
		return fingerprint.NewHasher(nil), func() {}, nil
	}

	cache, err := fingerprint.OpenCache(cfg.CacheFile)
	if err != nil {
		return nil, nil, fmt.Errorf("opening digest cache %s: %w", cfg.CacheFile, err)
	}
	closeCache := func() {
		if err := cache.Close(); err != nil {
			logger.Warn("closing digest cache", slog.String("error", err.Error()))
		}
	}
	return fingerprint.NewHasher(cache), closeCache, nil
}
