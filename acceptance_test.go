//go:build acceptance

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/petems/go-s3-sync/internal/config"
	"github.com/petems/go-s3-sync/internal/fingerprint"
	"github.com/petems/go-s3-sync/internal/logging"
	"github.com/petems/go-s3-sync/internal/s3sync"
	"github.com/petems/go-s3-sync/internal/store"
)

const (
	localstackEndpoint = "http://localhost:4566"
	testRegion         = "us-east-1"
	testBucketPrefix   = "test-bucket-"
)

// AcceptanceTestSuite runs full syncs against a LocalStack bucket.
type AcceptanceTestSuite struct {
	client   *s3.Client
	cfg      *config.Config
	buildDir string
	ctx      context.Context
}

func newAcceptanceTestSuite(t *testing.T) *AcceptanceTestSuite {
	t.Helper()

	ctx := context.Background()

	cfg := config.Default()
	cfg.Bucket = fmt.Sprintf("%s%d", testBucketPrefix, time.Now().UnixNano())
	cfg.Region = testRegion
	cfg.Endpoint = localstackEndpoint
	cfg.AccessKeyID, cfg.SecretAccessKey = "test", "test"
	cfg.BuildDir = t.TempDir()
	cfg.Workers = 4

	awsCfg, err := newAWSConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to create AWS config: %v", err)
	}

	suite := &AcceptanceTestSuite{
		client:   newS3Client(awsCfg, cfg),
		cfg:      cfg,
		buildDir: cfg.BuildDir,
		ctx:      ctx,
	}

	_, err = suite.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)})
	if err != nil {
		t.Fatalf("Failed to create test bucket %s: %v", cfg.Bucket, err)
	}
	t.Logf("Created test bucket: %s", cfg.Bucket)
	t.Cleanup(func() { suite.cleanup(t) })

	return suite
}

func (s *AcceptanceTestSuite) cleanup(t *testing.T) {
	t.Helper()

	out, err := s.client.ListObjectsV2(s.ctx, &s3.ListObjectsV2Input{Bucket: aws.String(s.cfg.Bucket)})
	if err != nil {
		t.Logf("Warning: failed to list objects for cleanup: %v", err)
		return
	}
	for _, obj := range out.Contents {
		if _, err := s.client.DeleteObject(s.ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.cfg.Bucket), Key: obj.Key}); err != nil {
			t.Logf("Warning: failed to delete object %s: %v", aws.ToString(obj.Key), err)
		}
	}
	if _, err := s.client.DeleteBucket(s.ctx, &s3.DeleteBucketInput{Bucket: aws.String(s.cfg.Bucket)}); err != nil {
		t.Logf("Warning: failed to delete bucket %s: %v", s.cfg.Bucket, err)
	}
}

func (s *AcceptanceTestSuite) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(s.buildDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (s *AcceptanceTestSuite) sync(t *testing.T) *s3sync.Report {
	t.Helper()

	run, err := s3sync.NewRun(s.cfg, store.NewS3(s.client, s.cfg.Bucket), fingerprint.NewHasher(nil),
		logging.NewStatus(io.Discard, false), logging.NewLogger(false, false, io.Discard))
	if err != nil {
		t.Fatalf("NewRun failed: %v", err)
	}

	report, err := s3sync.NewEngine(run, s3sync.DirSource{Root: s.buildDir}, nil).Sync(s.ctx)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	return report
}

func (s *AcceptanceTestSuite) getObject(t *testing.T, key string) string {
	t.Helper()

	out, err := s.client.GetObject(s.ctx, &s3.GetObjectInput{Bucket: aws.String(s.cfg.Bucket), Key: aws.String(key)})
	if err != nil {
		t.Fatalf("GetObject %s failed: %v", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func (s *AcceptanceTestSuite) objectExists(key string) bool {
	_, err := s.client.HeadObject(s.ctx, &s3.HeadObjectInput{Bucket: aws.String(s.cfg.Bucket), Key: aws.String(key)})
	return err == nil
}

func TestAcceptance_FullSync(t *testing.T) {
	suite := newAcceptanceTestSuite(t)
	suite.cfg.Prefix = "site"

	suite.write(t, "index.html", "<h1>home</h1>")
	suite.write(t, "css/style.css", "body { color: red; }")
	suite.write(t, "blog/post.html", "<p>post</p>")

	report := suite.sync(t)
	if report.Created != 3 {
		t.Errorf("Created = %d, want 3", report.Created)
	}

	if got := suite.getObject(t, "site/index.html"); got != "<h1>home</h1>" {
		t.Errorf("Content mismatch: got %q", got)
	}

	head, err := suite.client.HeadObject(suite.ctx, &s3.HeadObjectInput{
		Bucket: aws.String(suite.cfg.Bucket),
		Key:    aws.String("site/css/style.css"),
	})
	if err != nil {
		t.Fatalf("HeadObject failed: %v", err)
	}
	if ct := aws.ToString(head.ContentType); !strings.HasPrefix(ct, "text/css") {
		t.Errorf("ContentType mismatch: got %q", ct)
	}
	if h := head.Metadata[store.ContentHashKey]; h != fingerprint.Bytes([]byte("body { color: red; }")) {
		t.Errorf("content hash metadata mismatch: got %q", h)
	}
}

func TestAcceptance_SecondRunIsNoop(t *testing.T) {
	suite := newAcceptanceTestSuite(t)

	suite.write(t, "index.html", "home")
	suite.write(t, "about.html", "about")
	suite.sync(t)

	report := suite.sync(t)
	if report.Changed() {
		t.Errorf("second sync changed something: %+v", report)
	}
	if report.Identical != 2 {
		t.Errorf("Identical = %d, want 2", report.Identical)
	}
}

func TestAcceptance_UpdateAndDelete(t *testing.T) {
	suite := newAcceptanceTestSuite(t)

	suite.write(t, "index.html", "v1")
	suite.write(t, "old.html", "gone soon")
	suite.sync(t)

	suite.write(t, "index.html", "v2")
	if err := os.Remove(filepath.Join(suite.buildDir, "old.html")); err != nil {
		t.Fatal(err)
	}

	report := suite.sync(t)
	if report.Updated != 1 || report.Deleted != 1 {
		t.Errorf("Updated = %d, Deleted = %d, want 1 and 1", report.Updated, report.Deleted)
	}
	if got := suite.getObject(t, "index.html"); got != "v2" {
		t.Errorf("Content mismatch: got %q", got)
	}
	if suite.objectExists("old.html") {
		t.Error("old.html should have been deleted")
	}
}

func TestAcceptance_ManyFiles(t *testing.T) {
	suite := newAcceptanceTestSuite(t)

	const numFiles = 50
	for i := range numFiles {
		suite.write(t, fmt.Sprintf("pages/page-%d.html", i), fmt.Sprintf("page %d", i))
	}

	report := suite.sync(t)
	if report.Created != numFiles {
		t.Errorf("Created = %d, want %d", report.Created, numFiles)
	}
	if !suite.objectExists("pages/page-49.html") {
		t.Error("pages/page-49.html not found")
	}
}
