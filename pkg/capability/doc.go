// Package capability defines the external-collaborator interfaces the engine
// drives but does not implement: the batch-compute platform, object storage,
// secret vault, and identity provider. Every method takes a context and an
// explicit deadline, returns a classified *AdapterError on failure, and is
// expected to be wrapped in a RetryPolicy by its caller.
//
// Only the AWS Secrets Manager vault, the AWS SDK identity provider, the
// S3-backed ObjectStore, and an in-memory ComputePlatform fake are shipped
// here; the compute platform
// binding itself is an external integration left to the operator.
package capability
