// Package cdn purges changed paths from a CloudFront distribution with as few
// invalidation requests as possible, backing off when throttled.
package cdn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/petems/go-s3-sync/internal/logging"
)

const (
	// MaxBatchSize is CloudFront's limit on paths per invalidation request.
	MaxBatchSize = 3000

	// StatusCompleted is the status of a finished invalidation.
	StatusCompleted = "Completed"

	defaultBatchSize      = 1000
	defaultBaseRetryDelay = time.Second
)

// Options configures a Controller.
type Options struct {
	DistributionID string
	Enabled        bool
	InvalidateAll  bool
	BatchSize      int
	MaxRetries     int
	BatchDelay     time.Duration
	// BaseRetryDelay is the first backoff delay; each retry doubles it.
	BaseRetryDelay  time.Duration
	Wait            bool
	PollInterval    time.Duration
	MaxPollAttempts int
	DryRun          bool
	// BestEffort logs failed requests instead of returning them.
	BestEffort bool
}

// Controller issues batched, retried invalidation requests.
type Controller struct {
	client Client
	opts   Options
	status *logging.Status
	logger *slog.Logger

	sleep    func(ctx context.Context, d time.Duration) error
	jitter   func(limit time.Duration) time.Duration
	newToken func() string
}

// NewController returns a Controller using client.
func NewController(client Client, opts Options, status *logging.Status, logger *slog.Logger) *Controller {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	opts.BatchSize = min(opts.BatchSize, MaxBatchSize)
	if opts.BaseRetryDelay <= 0 {
		opts.BaseRetryDelay = defaultBaseRetryDelay
	}
	if status == nil {
		status = logging.NewStatus(io.Discard, false)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Controller{
		client:   client,
		opts:     opts,
		status:   status,
		logger:   logger,
		sleep:    sleepContext,
		jitter:   randomJitter,
		newToken: callerReference,
	}
}

// Invalidate purges paths from the distribution and returns the IDs of the
// invalidations it created. Paths may be in any order and form; they are
// normalized here.
func (c *Controller) Invalidate(ctx context.Context, paths []string) ([]string, error) {
	if !c.opts.Enabled {
		return nil, nil
	}
	if c.opts.DistributionID == "" {
		c.status.Warn("CloudFront invalidation skipped:", "no distribution ID provided")
		return nil, nil
	}
	if len(paths) == 0 && !c.opts.InvalidateAll {
		return nil, nil
	}

	prepared := PreparePaths(paths, c.opts.InvalidateAll)
	if len(prepared) == 0 {
		return nil, nil
	}
	c.status.Debug("Prepared %d paths for CloudFront invalidation", len(prepared))

	batches := Batches(prepared, c.opts.BatchSize)
	c.status.Say("Invalidating CloudFront distribution %s", c.opts.DistributionID)

	if c.opts.DryRun {
		c.status.DryRun("Would invalidate %d paths in %d batch(es) in CloudFront", len(prepared), len(batches))
		for i, batch := range batches {
			c.status.Debug("  batch %d/%d: %s", i+1, len(batches), strings.Join(batch, ", "))
		}
		return nil, nil
	}

	var ids []string
	for i, batch := range batches {
		c.status.Say("Creating invalidation batch %d/%d (%d paths)", i+1, len(batches), len(batch))

		id, err := c.createWithRetry(ctx, batch)
		if err != nil {
			c.status.Fail("Failed to create CloudFront invalidation:", "%v", err)
			c.status.Debug("Paths: %s", strings.Join(batch, ", "))
			if !c.opts.BestEffort {
				return ids, err
			}
		} else {
			ids = append(ids, id)
		}

		if i < len(batches)-1 {
			if err := c.sleep(ctx, c.opts.BatchDelay); err != nil {
				return ids, err
			}
		}
	}

	if len(ids) == 0 {
		return nil, nil
	}
	c.status.Say("CloudFront invalidation(s) created: %s", strings.Join(ids, ", "))

	if c.opts.Wait {
		c.status.Say("Waiting for CloudFront invalidation(s) to complete...")
		c.waitAll(ctx, ids)
	} else {
		c.status.Say("Invalidations may take 10-15 minutes to complete")
	}
	return ids, nil
}

// createWithRetry submits one batch. The caller reference is fixed for the
// batch so CloudFront deduplicates a retried request it already accepted.
func (c *Controller) createWithRetry(ctx context.Context, batch []string) (string, error) {
	ref := c.newToken()

	for attempt := 0; ; attempt++ {
		id, err := c.client.CreateInvalidation(ctx, c.opts.DistributionID, ref, batch)
		if err == nil {
			c.logger.Debug("invalidation created", slog.String("id", id), slog.Int("paths", len(batch)))
			return id, nil
		}

		if !IsRateLimited(err) || attempt >= c.opts.MaxRetries {
			return "", fmt.Errorf("creating invalidation for %d paths: %w", len(batch), err)
		}

		delay := c.backoff(attempt + 1)
		c.status.Warn(fmt.Sprintf("Rate limit hit, retrying in %s...", delay),
			"(attempt %d/%d)", attempt+1, c.opts.MaxRetries)
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
}

// backoff returns the delay before retry n (1-based): base*2^(n-1) plus a
// jitter below base. The jitter bound keeps successive delays non-decreasing.
func (c *Controller) backoff(n int) time.Duration {
	base := c.opts.BaseRetryDelay
	d := time.Duration(float64(base) * math.Pow(2, float64(n-1)))
	return d + c.jitter(base)
}

// waitAll polls each invalidation until it completes. Timeouts and polling
// errors are reported as warnings: the invalidation keeps running on
// CloudFront's side either way.
func (c *Controller) waitAll(ctx context.Context, ids []string) {
	allDone := true
	for _, id := range ids {
		c.status.Say("Waiting for invalidation %s...", id)
		if !c.waitOne(ctx, id) {
			allDone = false
		}
	}
	if allDone {
		c.status.Say("CloudFront invalidation(s) completed successfully")
	}
}

func (c *Controller) waitOne(ctx context.Context, id string) bool {
	attempts := max(c.opts.MaxPollAttempts, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		c.status.Debug("Checking invalidation status (attempt %d/%d)...", attempt, attempts)

		state, err := c.client.InvalidationStatus(ctx, c.opts.DistributionID, id)
		if err != nil {
			c.status.Warn("Warning:", "CloudFront invalidation wait failed: %v", err)
			c.status.Say("Invalidation may still be in progress")
			return false
		}
		if state == StatusCompleted {
			return true
		}

		if attempt < attempts {
			if err := c.sleep(ctx, c.opts.PollInterval); err != nil {
				c.status.Warn("Warning:", "CloudFront invalidation wait interrupted: %v", err)
				return false
			}
		}
	}

	c.status.Warn("Warning:", "CloudFront invalidation %s wait timed out after %d attempts", id, attempts)
	c.status.Say("Invalidation is still in progress but sync will continue")
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit))) // #nosec G404 - jitter does not need crypto randomness
}

func callerReference() string {
	return fmt.Sprintf("go-s3-sync-%d-%s", time.Now().Unix(), uuid.NewString())
}
