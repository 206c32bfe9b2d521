package main

import (
	"github.com/spf13/pflag"

	"github.com/petems/go-s3-sync/internal/config"
)

// options are the command line settings. Anything not set on the command
// line keeps the value from the config file or the environment.
type options struct {
	cfgFile    string
	bucket     string
	prefix     string
	buildDir   string
	region     string
	profile    string
	endpoint   string
	cacheFile  string
	workers    int
	dryRun     bool
	force      bool
	verbose    bool
	noDelete   bool
	invalidate bool
	saveCfg    bool
	version    bool

	flags *pflag.FlagSet
}

func newOptions() *options {
	return &options{cfgFile: config.DefaultFile}
}

// merge copies the options that were given on the command line into cfg.
func (o *options) merge(cfg *config.Config) {
	changed := func(name string) bool {
		return o.flags != nil && o.flags.Changed(name)
	}

	if changed("bucket") {
		cfg.Bucket = o.bucket
	}
	if changed("prefix") {
		cfg.Prefix = o.prefix
	}
	if changed("build-dir") {
		cfg.BuildDir = o.buildDir
	}
	if changed("region") {
		cfg.Region = o.region
	}
	if changed("profile") {
		cfg.Profile = o.profile
	}
	if changed("endpoint") {
		cfg.Endpoint = o.endpoint
	}
	if changed("cache-file") {
		cfg.CacheFile = o.cacheFile
	}
	if changed("workers") {
		cfg.Workers = o.workers
	}
	if o.dryRun {
		cfg.DryRun = true
	}
	if o.force {
		cfg.Force = true
	}
	if o.verbose {
		cfg.Verbose = true
	}
	if o.noDelete {
		cfg.Delete = false
	}
	if o.invalidate {
		cfg.CloudFront.Invalidate = true
	}
}
