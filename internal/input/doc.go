// Package input reads institution lists produced by the discovery stage.
// CSV and Excel (.xlsx) files are supported; both need a header row with a
// Website column.
package input
