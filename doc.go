/*
Go S3 Sync publishes a static site build directory to an S3 bucket.

Every local file is paired with the remote object of the same path and
classified as new, updated, identical, deleted or ignored. Only new and
updated files are uploaded, and remote objects that no longer exist locally
are removed in batches. Pre-compressed ".gz" siblings are uploaded in place
of the plain file with Content-Encoding set, and the hash of the uncompressed
content is stored as object metadata so unchanged files are recognised on the
next run.

When CloudFront invalidation is enabled, the changed paths are deduplicated,
collapsed under wildcards and sent in rate limited batches.

Settings come from a YAML file (".s3_sync" by default), the environment and
the command line, in that order of increasing precedence.
*/
package main
