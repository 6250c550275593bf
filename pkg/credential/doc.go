// Package credential resolves a configuration's secret-bearing fields into
// an in-memory map of logical name to plaintext. Fields may be plaintext,
// vault references, or RSA-wrapped blobs; decryption failures are fatal
// since a task or pool operation cannot proceed without its secrets (§4.B).
package credential
