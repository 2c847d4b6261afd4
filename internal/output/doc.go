// Package output stores the per-domain route files.
//
// Each crawled domain with at least one route gets <dir>/<domain>.txt with
// its normalised routes, sorted, one per line. Files are replaced
// atomically so a reader never sees a partial artifact.
package output
