/*
Package security provides the cryptographic services the engine depends
on: secrets encryption using AES-256-GCM, a certificate authority for the
P2P mesh's mutual TLS, and certificate lifecycle helpers.

# Architecture

	┌─────────────────────────────────────────────────────────────┐
	│                    Security Architecture                    │
	└─────┬───────────────────────┬──────────────────┬────────────┘
	      │                       │                  │
	      ▼                       ▼                  ▼
	┌─────────────┐      ┌────────────────┐   ┌──────────────┐
	│   Secrets   │      │    Mesh CA     │   │ Certificate  │
	│ Encryption  │      │   (one root)   │   │  Management  │
	└─────┬───────┘      └────────┬───────┘   └──────┬───────┘
	      │                       │                   │
	      ▼                       ▼                   ▼
	  AES-256-GCM         RSA 4096-bit          90-day rotation
	  Root key at rest    10-year validity      Manual renewal

## Cluster Encryption Key

All at-rest encryption is rooted in a single 32-byte key, set once via
SetClusterEncryptionKey (typically derived from a cluster/federation
identifier with DeriveKeyFromClusterID):

	clusterKey = SHA-256(clusterID)  // 32 bytes for AES-256

This key encrypts:
  - The mesh CA's root private key, before it is handed to storage.Store.SaveCA
  - Any other sensitive blob a caller routes through Encrypt/Decrypt

pkg/credential does not use it: credential resolution neither caches nor
encrypts the plaintext it returns.

The key lives only in process memory; it must be supplied again on restart.

# Secrets Encryption

## Encrypt and Decrypt

Encrypt and Decrypt operate on arbitrary plaintext (API keys, passwords,
container registry tokens) with AES-256 in Galois/Counter Mode against the
package-global cluster encryption key, which provides authenticated
encryption:

	Plaintext → AES-256-GCM → Ciphertext + Authentication Tag
	                ↑
	            32-byte key

Key features:
  - Authenticated encryption (integrity + confidentiality)
  - Random nonce per encryption (no nonce reuse)
  - Fast performance (~100MB/s on modern CPUs)

## Encryption Process

 1. Generate random 12-byte nonce
 2. Encrypt plaintext with AES-256-GCM
 3. Prepend nonce to ciphertext
 4. Store combined bytes: [nonce || ciphertext || tag]

Decryption reverses the process and fails loudly if the tag doesn't
verify — tampered or corrupted ciphertext never silently decodes.

# Mesh Certificate Authority

## Root CA

MeshCA holds a single, long-lived self-signed root, shared by every pool
the engine manages (§4.E: pool membership implies trust of the same CA):

	Root CA (self-signed)
	├── 10-year validity
	├── RSA 4096-bit key
	├── KeyUsage: CertSign, CRLSign
	└── Subject: CN=Batch Shipyard Root CA, O=Batch Shipyard

The root is generated once (MeshCA.Initialize, or LoadOrInitialize for the
load-else-bootstrap path) and persisted through storage.Store.SaveCA:

	Root Certificate: stored plaintext (public)
	Root Private Key: stored encrypted with the cluster encryption key

## Node Certificates

The CA issues a short-lived certificate per pool node for the P2P mesh's
mutual TLS:

	Node Certificate
	├── 90-day validity
	├── RSA 2048-bit key
	├── KeyUsage: DigitalSignature, KeyEncipherment
	├── ExtKeyUsage: ServerAuth, ClientAuth
	├── Subject: CN={poolID}-{nodeID}, O=Batch Shipyard
	├── DNS Names: [node hostname, if reachable by name]
	└── IP Addresses: [node IP]

Two nodes in the same pool authenticate each other purely by trusting the
shared root — no manual fingerprint pinning required:

	Node A ←→ mTLS ←→ Node B
	   ↓                  ↓
	CA verifies        CA verifies
	B's cert           A's cert

# Usage Examples

## Setting the Cluster Encryption Key

	import "github.com/batchshipyard/engine/pkg/security"

	clusterKey := security.DeriveKeyFromClusterID(federationID)
	if err := security.SetClusterEncryptionKey(clusterKey); err != nil {
		panic(err)
	}

## Encrypting and Decrypting Secrets

	ciphertext, err := security.Encrypt([]byte("super-secret-password"))
	if err != nil {
		panic(err)
	}
	// ...store ciphertext...
	plaintext, err := security.Decrypt(ciphertext)
	if err != nil {
		panic(err) // tampering detected, or wrong key
	}

## Bootstrapping the Mesh CA

	import (
		"github.com/batchshipyard/engine/pkg/security"
		"github.com/batchshipyard/engine/pkg/storage"
	)

	store, err := storage.NewBoltStore("/var/lib/shipyardd/meta.db")
	if err != nil {
		panic(err)
	}

	clusterKey := security.DeriveKeyFromClusterID(federationID)
	if err := security.SetClusterEncryptionKey(clusterKey); err != nil {
		panic(err)
	}

	ca := security.NewMeshCA(store)
	if err := ca.LoadOrInitialize(); err != nil {
		panic(err) // generates+persists a root on first run, loads it after
	}

## Issuing Node Certificates

	nodeID, poolID := "node-17", "pool-east"
	dnsNames := []string{"node-17.pool-east.local"}
	ipAddresses := []net.IP{net.ParseIP("10.0.4.17")}

	tlsCert, err := ca.IssueNodeCertificate(nodeID, poolID, dnsNames, ipAddresses)
	if err != nil {
		panic(err)
	}

	identity := &p2p.TLSIdentity{
		Cert:   *tlsCert,
		CAPool: ca.TrustPool(),
	}

## Verifying Certificates

	if err := ca.VerifyCertificate(peerCert); err != nil {
		// not issued by this CA, expired, or wrong key usage
		panic(err)
	}

## Certificate Rotation

	if security.CertNeedsRotation(cert) {
		newCert, err := ca.IssueNodeCertificate(nodeID, poolID, dnsNames, ipAddresses)
		if err != nil {
			panic(err)
		}
		certDir, _ := security.GetCertDir(poolID, nodeID)
		if err := security.SaveCertToFile(newCert, certDir); err != nil {
			panic(err)
		}
	}

# Integration Points

## Storage Integration

The CA is persisted through storage.Store:

	Bucket: "ca"
	Key: "root"
	Value: {RootCertDER: [...], RootKeyDER: [...encrypted...]}

The root key is always encrypted at rest; the certificate is not secret.

## P2P Mesh Integration

pkg/p2p builds its gRPC transport credentials directly from a MeshCA-issued
certificate and TrustPool:

	creds := credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{*nodeCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    ca.TrustPool(),
	})

This gives every pool:
  - Encrypted transport (TLS 1.2+)
  - Mutual authentication between peers
  - No unauthenticated peer can join the chunk-exchange mesh

## Credential Integration

pkg/credential resolves pool/job secrets from an external vault or from
RSA-wrapped blobs and hands the plaintext straight back to its caller. It
keeps no cache, does not call this package's Encrypt/Decrypt, and writes
nothing to storage.

# Design Patterns

## Authenticated Encryption

GCM mode provides both confidentiality and integrity in one pass:

	Encryption:  plaintext + key + nonce → ciphertext + tag
	Decryption:  ciphertext + tag + key + nonce → plaintext (or error)

Modified ciphertext, a wrong key, or a wrong nonce all fail decryption
rather than silently returning garbage.

## Single-Root PKI

Unlike a hierarchical CA with intermediates, MeshCA keeps one flat root:

	Root CA (trust anchor)
	└── Node certificates (issued directly by root)

This matches the mesh's actual trust boundary: a pool either trusts the
engine's one CA or it doesn't, there is no intermediate tier to manage.

## Certificate Caching

Issued node certificates are recorded in memory keyed by "{poolID}/{nodeID}"
and can be looked up with GetCachedCert. IssueNodeCertificate does not
consult this record: every call generates a new RSA key and signs a new
certificate.

# Security Considerations

## Key Management

  - Loss of the cluster encryption key makes persisted secrets and the CA's
    root key unrecoverable from storage alone.
  - The key must be supplied again after every process restart; callers are
    expected to source it from an external vault or operator-supplied config.

## Threat Model

The mesh CA protects against:

	✓ Eavesdropping on P2P chunk transfer (TLS encryption)
	✓ Unauthenticated peers joining the mesh (mTLS)
	✓ Secret tampering at rest (authenticated encryption)
	✓ Node impersonation (CA-signed certificates only)

It does not protect against:

	✗ A compromised cluster encryption key (root key exposed)
	✗ A compromised engine process (full access to whatever it holds in memory)

# See Also

  - pkg/storage — CA persistence
  - pkg/p2p — consumer of MeshCA-issued identities for mesh transport
  - pkg/credential — secret resolution
*/
package security
