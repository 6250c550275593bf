/*
Package storage provides BoltDB-backed persistence for the engine's own
state: pools, nodes, jobs, federation membership, the federation action
queue, the leader lease, P2P image replication state, and ingress
idempotency markers (spec.md §6 Persistent state layout).

Credential plaintext is never stored here — the credential store (pkg/credential)
holds decrypted secrets in memory only, per spec.md §4.B.

Writes that require optimistic concurrency (the leader lease and P2P image
state, per spec.md §5) use a version/expiry check inside the same bbolt
transaction that performs the write, returning ErrConflict on a stale
caller.
*/
package storage
