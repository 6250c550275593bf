// Package factory expands a TaskFactory template into concrete task
// descriptors and formats each descriptor's command template against the
// resulting positional substitution values. Expansion is a deterministic,
// pure function: the same factory and template always produce the same
// ordered descriptor list (§4.F).
package factory
