// Package federation implements the federation proxy: leader election over
// a TTL lease row, a bounded worker pool processing independent
// (job_id, unique_id) action groups concurrently while serialising within
// a group, constraint matching and pool ranking, dynamic resource
// conditioning, and zap (§4.J).
package federation
