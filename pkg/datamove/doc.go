// Package datamove plans and dedupes data movement around task execution:
// pool/job/task-scoped ingress with distinct caching, egress fired only on
// task success, and the on-premises fan-out transports used to push
// client-local files onto a compute cluster's shared filesystem (§4.H).
package datamove
