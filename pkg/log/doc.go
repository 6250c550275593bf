// Package log wraps zerolog with component-scoped child loggers and a
// secret-scrubbing helper so that credential-store plaintext never reaches
// a log sink in the clear (spec.md §4.B).
package log
