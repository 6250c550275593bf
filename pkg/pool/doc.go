// Package pool drives the pool lifecycle state machine: absent, allocating,
// preparing, ready, resizing, and deleting, with per-node independent
// transitions layered underneath (§4.I). It implements the reboot-on-start-
// task-failure and unusable-node-recovery policies, the preparing→ready
// barrier, and resize-down node selection.
package pool
