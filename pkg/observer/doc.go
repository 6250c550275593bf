// Package observer streams a designated task's stdout/stderr to a caller's
// writer, archives a node's start-task diagnostics under a deterministic
// local path when it fails, mirrors federation-proxy logs to shared storage
// in real time, and answers the "which action is where" status query the
// CLI surfaces as `fed jobs list`.
package observer
