package security

import (
	"crypto/x509"
	"net"
	"os"
	"testing"
	"time"

	"github.com/batchshipyard/engine/pkg/storage"
)

func newTestMeshCA(t *testing.T) (*MeshCA, storage.Store) {
	t.Helper()

	key := DeriveKeyFromClusterID("test-cluster")
	if err := SetClusterEncryptionKey(key); err != nil {
		t.Fatalf("failed to set cluster encryption key: %v", err)
	}

	tmpDir, err := os.MkdirTemp("", "shipyardd-ca-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := storage.NewBoltStore(tmpDir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewMeshCA(store), store
}

func TestInitializeMeshCA(t *testing.T) {
	ca, _ := newTestMeshCA(t)

	if err := ca.Initialize(); err != nil {
		t.Fatalf("failed to initialize CA: %v", err)
	}

	if !ca.IsInitialized() {
		t.Error("CA should be initialized")
	}
	if ca.rootCert == nil {
		t.Error("root certificate should not be nil")
	}
	if ca.rootKey == nil {
		t.Error("root key should not be nil")
	}
	if !ca.rootCert.IsCA {
		t.Error("root certificate should be a CA")
	}

	expectedExpiry := time.Now().Add(rootCAValidity)
	if ca.rootCert.NotAfter.Before(expectedExpiry.Add(-time.Hour)) {
		t.Errorf("root cert expiry too early: %v, expected around %v", ca.rootCert.NotAfter, expectedExpiry)
	}
}

func TestSaveLoadMeshCA(t *testing.T) {
	ca1, store := newTestMeshCA(t)
	if err := ca1.Initialize(); err != nil {
		t.Fatalf("failed to initialize CA: %v", err)
	}
	if err := ca1.SaveToStore(); err != nil {
		t.Fatalf("failed to save CA: %v", err)
	}

	ca2 := NewMeshCA(store)
	if err := ca2.LoadFromStore(); err != nil {
		t.Fatalf("failed to load CA: %v", err)
	}

	if !ca2.IsInitialized() {
		t.Error("loaded CA should be initialized")
	}
	if !ca1.rootCert.Equal(ca2.rootCert) {
		t.Error("loaded root cert should match original")
	}
	if ca1.rootKey.N.Cmp(ca2.rootKey.N) != 0 {
		t.Error("loaded root key should match original")
	}
}

func TestLoadOrInitializeMeshCA(t *testing.T) {
	ca1, store := newTestMeshCA(t)
	if err := ca1.LoadOrInitialize(); err != nil {
		t.Fatalf("failed to bootstrap CA: %v", err)
	}
	if !ca1.IsInitialized() {
		t.Error("CA should be initialized after bootstrap")
	}

	ca2 := NewMeshCA(store)
	if err := ca2.LoadOrInitialize(); err != nil {
		t.Fatalf("failed to load bootstrapped CA: %v", err)
	}
	if !ca1.rootCert.Equal(ca2.rootCert) {
		t.Error("second LoadOrInitialize should load the persisted root, not generate a new one")
	}
}

func TestIssueNodeCertificate(t *testing.T) {
	ca, _ := newTestMeshCA(t)
	if err := ca.Initialize(); err != nil {
		t.Fatalf("failed to initialize CA: %v", err)
	}

	tests := []struct {
		name   string
		nodeID string
		poolID string
	}{
		{"pool-a node", "node1", "pool-a"},
		{"pool-b node", "node2", "pool-b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert, err := ca.IssueNodeCertificate(tt.nodeID, tt.poolID, []string{}, []net.IP{})
			if err != nil {
				t.Fatalf("failed to issue certificate: %v", err)
			}
			if cert.Leaf == nil {
				t.Fatal("certificate Leaf should not be nil")
			}

			expectedCN := tt.poolID + "-" + tt.nodeID
			if cert.Leaf.Subject.CommonName != expectedCN {
				t.Errorf("expected CN %s, got %s", expectedCN, cert.Leaf.Subject.CommonName)
			}

			expectedExpiry := time.Now().Add(nodeCertValidity)
			if cert.Leaf.NotAfter.Before(expectedExpiry.Add(-time.Hour)) {
				t.Errorf("cert expiry too early: %v, expected around %v", cert.Leaf.NotAfter, expectedExpiry)
			}

			if cert.Leaf.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
				t.Error("certificate should have DigitalSignature key usage")
			}

			hasClientAuth, hasServerAuth := false, false
			for _, usage := range cert.Leaf.ExtKeyUsage {
				if usage == x509.ExtKeyUsageClientAuth {
					hasClientAuth = true
				}
				if usage == x509.ExtKeyUsageServerAuth {
					hasServerAuth = true
				}
			}
			if !hasClientAuth {
				t.Error("certificate should have ClientAuth extended key usage")
			}
			if !hasServerAuth {
				t.Error("certificate should have ServerAuth extended key usage")
			}
		})
	}
}

func TestVerifyCertificate(t *testing.T) {
	ca, _ := newTestMeshCA(t)
	if err := ca.Initialize(); err != nil {
		t.Fatalf("failed to initialize CA: %v", err)
	}

	cert, err := ca.IssueNodeCertificate("test-node", "pool-a", []string{}, []net.IP{})
	if err != nil {
		t.Fatalf("failed to issue certificate: %v", err)
	}

	if err := ca.VerifyCertificate(cert.Leaf); err != nil {
		t.Errorf("certificate verification failed: %v", err)
	}
}

func TestTrustPool(t *testing.T) {
	ca, _ := newTestMeshCA(t)
	if err := ca.Initialize(); err != nil {
		t.Fatalf("failed to initialize CA: %v", err)
	}

	pool := ca.TrustPool()
	cert, err := ca.IssueNodeCertificate("test-node", "pool-a", []string{}, []net.IP{})
	if err != nil {
		t.Fatalf("failed to issue certificate: %v", err)
	}

	opts := x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	if _, err := cert.Leaf.Verify(opts); err != nil {
		t.Errorf("node cert should verify against TrustPool: %v", err)
	}
}

func TestCertCache(t *testing.T) {
	ca, _ := newTestMeshCA(t)
	if err := ca.Initialize(); err != nil {
		t.Fatalf("failed to initialize CA: %v", err)
	}

	nodeID, poolID := "test-node", "pool-a"
	if _, err := ca.IssueNodeCertificate(nodeID, poolID, []string{}, []net.IP{}); err != nil {
		t.Fatalf("failed to issue certificate: %v", err)
	}

	cached, exists := ca.GetCachedCert(poolID + "/" + nodeID)
	if !exists {
		t.Fatal("certificate should be in cache")
	}
	if cached == nil {
		t.Fatal("cached certificate should not be nil")
	}
	if cached.Cert.Subject.CommonName != poolID+"-"+nodeID {
		t.Errorf("cached cert CN mismatch: %s", cached.Cert.Subject.CommonName)
	}
}
