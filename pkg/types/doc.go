/*
Package types defines the core data structures of the Batch Shipyard
orchestration engine.

It has no dependencies beyond the standard library: every other
package imports types, and types imports nothing of its own. This
mirrors the engine's arena-backed id design (DESIGN NOTES, spec.md §9)
— Pool, Node, Job, Task and Federation are plain structs keyed by
string ids, never holding pointers to each other, so there are no
cycles to break during teardown.

# Entities

  - Pool / Node: compute topology and the node-level state machine.
  - Job / TaskDescriptor / TaskFactory: the job-owns-tasks hierarchy,
    including factory templates attached to at most one descriptor.
  - Federation / FederatedAction / ConstraintSet: the federation
    proxy's queue and matching inputs.
  - Secret: the only type whose zero value matters at rest — its
    Plaintext field is held in memory by the credential store alone
    and is never marshaled to persistent storage.
*/
package types
