// Package volume implements the pool ready barrier's shared-volume check
// (§3 "preparing → ready requires ... all shared volumes mounted").
//
// The compute platform is an abstract external collaborator with no
// generic "run a command on this node" primitive (spec.md §1), so
// RemoteMountChecker can't reach onto a node's filesystem to verify a
// mount directly. Instead it consults per-node markers recorded in
// storage.Store, the same marker-file idiom pkg/datamove uses for ingress
// dedup: whatever completes a node's shared_data_volume mount calls
// MarkMounted, and the pool controller's MountChecker hook calls Check on
// every reconcile pass until all nodes have reported in.
//
// data_volume (host bind) mounts are node-local by construction and never
// participate in the barrier.
package volume
