package s3sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/petems/go-s3-sync/internal/config"
	"github.com/petems/go-s3-sync/internal/store"
)

// Invalidator purges changed paths from a CDN.
type Invalidator interface {
	Invalidate(ctx context.Context, paths []string) ([]string, error)
}

// Report summarizes a sync.
type Report struct {
	Created           int
	Updated           int
	Deleted           int
	Identical         int
	Ignored           int
	AlternateEncoding int
	// Invalidations holds the IDs of the CDN invalidations created.
	Invalidations []string
}

// Changed reports whether the sync wrote to or deleted from the bucket.
func (r *Report) Changed() bool {
	return r.Created+r.Updated+r.Deleted > 0
}

// Engine drives a sync from listing to invalidation.
type Engine struct {
	run     *Run
	source  Source
	cdn     Invalidator
	workers int
}

// NewEngine returns an Engine syncing the artifacts of source. A nil
// invalidator disables CDN invalidation.
func NewEngine(run *Run, source Source, cdn Invalidator) *Engine {
	workers := run.cfg.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	return &Engine{run: run, source: source, cdn: cdn, workers: workers}
}

type plan struct {
	create, update, remove, ignore []*Resource
	report                         Report
}

func (p *plan) workToBeDone() bool {
	return len(p.create)+len(p.update)+len(p.remove) > 0
}

// Sync makes the bucket mirror the build. It returns after every phase has
// completed or the first failure.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	r := e.run

	if err := r.CheckBucket(ctx); err != nil {
		return nil, err
	}

	r.status.Say("Let's see if there's work to be done...")
	resources, err := e.resources(ctx)
	if err != nil {
		return nil, err
	}

	p, err := e.classify(ctx, resources)
	if err != nil {
		return nil, err
	}
	report := &p.report

	if !p.workToBeDone() {
		r.status.Say("All S3 files are up to date.")
		ids, err := e.invalidate(ctx, nil)
		report.Invalidations = ids
		return report, err
	}

	r.status.Say("Ready to apply updates to %s.", r.store.Bucket())

	if err := e.updateBucketVersioning(ctx); err != nil {
		return report, err
	}
	if err := e.updateBucketWebsite(ctx); err != nil {
		return report, err
	}

	for _, res := range p.ignore {
		res.Ignore()
	}
	if err := e.each(ctx, p.create, (*Resource).Create); err != nil {
		return report, err
	}
	if err := e.each(ctx, p.update, (*Resource).Update); err != nil {
		return report, err
	}
	if err := e.delete(ctx, p.remove); err != nil {
		return report, err
	}

	ids, err := e.invalidate(ctx, r.Touched().List())
	report.Invalidations = ids
	return report, err
}

// resources lists local artifacts and remote keys in parallel and pairs them
// by logical path.
func (e *Engine) resources(ctx context.Context) ([]*Resource, error) {
	r := e.run

	var artifacts []Artifact
	var remotePaths []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		artifacts, err = e.localArtifacts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		remotePaths, err = r.remote.Paths(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	locals := make(map[string]*LocalArtifact, len(artifacts))
	for _, a := range artifacts {
		local, err := r.resolve(a)
		if err != nil {
			return nil, err
		}
		locals[a.Path] = local
	}

	listed := make(map[string]bool, len(remotePaths))
	for _, p := range remotePaths {
		listed[p] = true
	}

	paths := make([]string, 0, len(locals)+len(remotePaths))
	for p := range locals {
		paths = append(paths, p)
	}
	if r.cfg.Delete {
		for _, p := range remotePaths {
			if _, ok := locals[p]; !ok {
				paths = append(paths, p)
			}
		}
	}
	sort.Strings(paths)

	out := make([]*Resource, 0, len(paths))
	for _, p := range paths {
		local := locals[p]
		if local == nil && r.localDir(p) {
			local = &LocalArtifact{Path: p, IsDir: true}
		}
		out = append(out, newResource(r, p, local, listed[p]))
	}
	r.logger.Debug("paths collected",
		slog.Int("local", len(locals)),
		slog.Int("remote", len(remotePaths)),
		slog.Int("total", len(out)))
	return out, nil
}

// localArtifacts asks the source for the build output and, when configured,
// adds files found in the build directory that the source did not report.
func (e *Engine) localArtifacts(ctx context.Context) ([]Artifact, error) {
	artifacts, err := e.source.Artifacts(ctx)
	if err != nil {
		return nil, err
	}
	if !e.run.cfg.ScanBuildDir {
		return artifacts, nil
	}

	known := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		known[a.Path] = true
	}
	onDisk, err := DirSource{Root: e.run.cfg.BuildDir}.Artifacts(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range onDisk {
		if known[a.Path] {
			continue
		}
		e.run.status.Debug("Found orphan file %s", a.Path)
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// classify runs every resource's classification on the worker pool and
// partitions the results.
func (e *Engine) classify(ctx context.Context, resources []*Resource) (*plan, error) {
	states := make([]State, len(resources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, res := range resources {
		g.Go(func() error {
			s, err := res.Classify(gctx)
			if err != nil {
				return fmt.Errorf("classifying %s: %w", res.Path(), err)
			}
			states[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p := &plan{}
	for i, res := range resources {
		switch states[i] {
		case StateNew:
			p.create = append(p.create, res)
			p.report.Created++
		case StateUpdated:
			p.update = append(p.update, res)
			p.report.Updated++
		case StateDeleted:
			p.remove = append(p.remove, res)
			p.report.Deleted++
		case StateIdentical:
			p.report.Identical++
		case StateAlternateEncoding:
			p.report.AlternateEncoding++
			e.run.status.Debug("Skipping %s (content unchanged, only its compression differs)", res.Key())
		default:
			p.ignore = append(p.ignore, res)
			p.report.Ignored++
		}
	}
	return p, nil
}

// each runs fn for every resource on the worker pool and returns the first
// error.
func (e *Engine) each(ctx context.Context, resources []*Resource, fn func(*Resource, context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, res := range resources {
		g.Go(func() error {
			return fn(res, gctx)
		})
	}
	return g.Wait()
}

// delete removes resources with bulk requests of at most MaxDeleteBatch keys.
func (e *Engine) delete(ctx context.Context, resources []*Resource) error {
	r := e.run
	if len(resources) == 0 {
		return nil
	}

	keys := make([]string, 0, len(resources))
	for _, res := range resources {
		keys = append(keys, res.Key())
	}

	for _, chunk := range store.Chunk(keys, store.MaxDeleteBatch) {
		for _, key := range chunk {
			if r.cfg.DryRun {
				r.status.DryRun("Deleting %s", key)
			} else {
				r.status.Say("Deleting %s", key)
			}
		}
		if !r.cfg.DryRun {
			if err := r.store.DeleteObjects(ctx, chunk); err != nil {
				return err
			}
		}
		for _, key := range chunk {
			r.recordChange(key)
		}
	}
	return nil
}

func (e *Engine) updateBucketVersioning(ctx context.Context) error {
	r := e.run
	if !r.cfg.VersionBucket {
		return nil
	}
	if r.cfg.DryRun {
		r.status.DryRun("Enabling versioning on %s", r.store.Bucket())
		return nil
	}
	r.status.Say("Enabling versioning on %s", r.store.Bucket())
	return r.store.EnableVersioning(ctx)
}

func (e *Engine) updateBucketWebsite(ctx context.Context) error {
	r := e.run
	website := r.cfg.Website
	if website.Empty() {
		return nil
	}
	if err := website.Validate(); err != nil {
		return err
	}

	line := fmt.Sprintf("Putting bucket website: index=%q error=%q routing_rules=%d",
		website.IndexDocument, website.ErrorDocument, len(website.RoutingRules))
	if r.cfg.DryRun {
		r.status.DryRun("%s", line)
		return nil
	}
	r.status.Say("%s", line)
	return r.store.PutWebsite(ctx, website)
}

func (e *Engine) invalidate(ctx context.Context, paths []string) ([]string, error) {
	if e.cdn == nil {
		return nil, nil
	}
	return e.cdn.Invalidate(ctx, paths)
}
