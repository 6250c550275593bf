// Package fingerprint computes canonicalised SHA-256 fingerprints for
// images, task groups, and mount aliases. Fingerprints dedupe ingress
// transfers across sibling tasks in a job and key the federation action
// queue's group partitioning (§4.C).
package fingerprint
