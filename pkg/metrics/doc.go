// Package metrics exposes Prometheus instrumentation for the engine's
// scheduling, replication, data-movement and federation subsystems, plus a
// small Timer helper for histogram observation.
package metrics
