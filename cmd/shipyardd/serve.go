package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/batchshipyard/engine/pkg/capability"
	"github.com/batchshipyard/engine/pkg/credential"
	"github.com/batchshipyard/engine/pkg/events"
	"github.com/batchshipyard/engine/pkg/federation"
	"github.com/batchshipyard/engine/pkg/log"
	"github.com/batchshipyard/engine/pkg/metrics"
	"github.com/batchshipyard/engine/pkg/observer"
	"github.com/batchshipyard/engine/pkg/pool"
	"github.com/batchshipyard/engine/pkg/security"
	"github.com/batchshipyard/engine/pkg/storage"
	"github.com/batchshipyard/engine/pkg/types"
	"github.com/batchshipyard/engine/pkg/volume"
	"github.com/spf13/cobra"
)

const defaultPollActionSec = 5

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine daemon: pool controller, federation proxies, metrics",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := log.WithComponent("shipyardd")

	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		return fmt.Errorf("--config is required")
	}
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	store, err := storage.NewBoltStore(cfg.Global.MetadataStoreDir)
	if err != nil {
		return fmt.Errorf("opening metadata store: %w", err)
	}
	defer store.Close()

	platform, err := buildPlatform(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	meshCA, err := buildMeshCA(store, cfg)
	if err != nil {
		return err
	}
	if meshCA != nil {
		logger.Info().Msg("mesh CA ready, pool nodes may request mTLS identities")
	}

	credStore, err := buildCredentialStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	_ = credStore // resolved per-action by pool/federation callers that need secrets

	seedStoredPools(store, cfg.Pools)
	seedStoredFederations(store, cfg.Federations)

	broker := events.NewBroker()
	broker.Start()
	logSub := broker.Subscribe()
	go logEvents(logSub)

	mountChecker := volume.NewRemoteMountChecker(store)
	controller := pool.NewController(store, platform, mountChecker.Check)
	controller.SetEventBroker(broker)
	controller.Start()

	var objectStore capability.ObjectStore
	if cfg.Credentials.StorageAccounts["default"] != "" {
		s3Store, err := capability.NewS3ObjectStore(cmd.Context(), cfg.Credentials.StorageAccounts["default"])
		if err != nil {
			return fmt.Errorf("building object store: %w", err)
		}
		objectStore = s3Store
	}

	leases := make([]*federation.LeaseHolder, 0, len(cfg.Federations))
	mirrors := make([]*observer.LogMirror, 0, len(cfg.Federations))
	stopPolling := make(chan struct{})
	for _, fc := range cfg.Federations {
		fc := fc
		lease := federation.NewLeaseHolder(store, fc.ID, hostOwnerID(), leaseTTLSeconds(fc))
		lease.Start()
		leases = append(leases, lease)

		candidates := federation.CandidatesFromStore(store, fc.ID, cfg.Global.SKUCatalog)
		proxy := federation.NewProxy(store, fc.ID, platform, lease, candidates, fc.Federation.BlackoutInterval, maxWorkers(fc))

		pollEvery := fc.PollInterval
		if pollEvery <= 0 {
			pollEvery = defaultPollActionSec * time.Second
		}
		go runProxyLoop(proxy, fc.ID, pollEvery, stopPolling)

		if objectStore != nil && fc.Federation.LogPersistPath != "" {
			mirror := observer.NewLogMirror(objectStore, fc.Federation.LogPersistPath, 5*time.Second)
			mirrors = append(mirrors, mirror)
			go runStatusMirrorLoop(store, fc.ID, mirror, pollEvery, stopPolling)
		}
	}

	errCh := make(chan error, 1)
	httpSrv := startMetricsServer(cfg.Global.MetricsAddr, errCh)

	logger.Info().Str("metadata_dir", cfg.Global.MetadataStoreDir).Int("federations", len(cfg.Federations)).Msg("shipyardd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("metrics server failed")
	}

	close(stopPolling)
	for _, l := range leases {
		l.Stop()
	}
	controller.Stop()
	broker.Unsubscribe(logSub)
	broker.Stop()
	for _, m := range mirrors {
		if err := m.Flush(); err != nil {
			logger.Warn().Err(err).Msg("failed to flush final log mirror buffer")
		}
	}
	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// runProxyLoop calls PollOnce on a ticker until stop is closed. Only the
// lease-holding instance does any work per PollOnce's own leader check.
func runProxyLoop(proxy *federation.Proxy, federationID string, every time.Duration, stop <-chan struct{}) {
	logger := log.WithComponent("shipyardd").With().Str("federation_id", federationID).Logger()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := proxy.PollOnce(context.Background()); err != nil {
				logger.Error().Err(err).Msg("federation poll failed")
			}
		case <-stop:
			return
		}
	}
}

// runStatusMirrorLoop writes a JSON-lines snapshot of the federation's
// action queue to mirror on every tick, giving an operator watching
// LogPersistPath a near-real-time view of `fed jobs list` without querying
// this process directly.
func runStatusMirrorLoop(store storage.Store, federationID string, mirror *observer.LogMirror, every time.Duration, stop <-chan struct{}) {
	logger := log.WithComponent("shipyardd").With().Str("federation_id", federationID).Logger()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			summaries, err := observer.ListActions(store, federationID)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to list actions for log mirror")
				continue
			}
			for _, s := range summaries {
				line, err := json.Marshal(s)
				if err != nil {
					continue
				}
				if _, err := mirror.Write(append(line, '\n')); err != nil {
					logger.Warn().Err(err).Msg("failed to write to log mirror")
				}
			}
		case <-stop:
			return
		}
	}
}

// logEvents drains sub until the broker closes it, logging every published
// event. It's the simplest possible subscriber, standing in for a future
// webhook or audit sink without this engine needing to ship one yet.
func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for event := range sub {
		logger.Info().Str("type", string(event.Type)).Str("message", event.Message).Msg("event published")
	}
}

// buildMeshCA bootstraps the engine's mesh certificate authority when
// encryption is configured; pool nodes later request identities from it
// via IssueNodeCertificate as they join the P2P mesh (§4.E). Returns nil
// when the operator hasn't configured a cluster id, leaving the mesh
// running without mTLS.
func buildMeshCA(store storage.Store, cfg *Config) (*security.MeshCA, error) {
	if !cfg.Global.Encryption || cfg.Global.ClusterID == "" {
		return nil, nil
	}

	key := security.DeriveKeyFromClusterID(cfg.Global.ClusterID)
	if err := security.SetClusterEncryptionKey(key); err != nil {
		return nil, fmt.Errorf("setting cluster encryption key: %w", err)
	}

	ca := security.NewMeshCA(store)
	if err := ca.LoadOrInitialize(); err != nil {
		return nil, fmt.Errorf("bootstrapping mesh CA: %w", err)
	}
	return ca, nil
}

func buildPlatform(ctx context.Context, cfg *Config) (capability.ComputePlatform, error) {
	switch cfg.Global.Platform {
	case "", "fake":
		return capability.NewFakePlatform(), nil
	default:
		return nil, fmt.Errorf("unknown compute platform %q: the engine ships no concrete cloud binding, only the in-memory fake for local runs and tests", cfg.Global.Platform)
	}
}

func buildCredentialStore(ctx context.Context, cfg *Config) (*credential.Store, error) {
	keyRing := credential.NewKeyRing()

	var vault capability.SecretVault
	if cfg.Credentials.VaultURI != "" {
		v, err := capability.NewSecretsManagerVault(ctx)
		if err != nil {
			return nil, fmt.Errorf("building secrets vault: %w", err)
		}
		vault = v
	}

	var idp capability.IdentityProvider
	if cfg.Credentials.IdentityProvider != "" {
		p, err := capability.NewAWSIdentityProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("building identity provider: %w", err)
		}
		idp = p
	}

	return credential.NewStore(vault, idp, keyRing), nil
}

func startMetricsServer(addr string, errCh chan<- error) *http.Server {
	if addr == "" {
		addr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return srv
}

func seedStoredPools(store storage.Store, pools []*types.Pool) {
	for _, p := range pools {
		if _, err := store.GetPool(p.ID); err == storage.ErrNotFound {
			_ = store.CreatePool(p)
		}
	}
}

func seedStoredFederations(store storage.Store, federations []FederationConfig) {
	for _, fc := range federations {
		f := fc.Federation
		if _, err := store.GetFederation(f.ID); err == storage.ErrNotFound {
			_ = store.CreateFederation(&f)
		}
	}
}

func hostOwnerID() string {
	host, err := os.Hostname()
	if err != nil {
		return "shipyardd"
	}
	return host
}

func leaseTTLSeconds(fc FederationConfig) int64 {
	if fc.Federation.PollFederationSec > 0 {
		return int64(fc.Federation.PollFederationSec) * 3
	}
	return 30
}

func maxWorkers(fc FederationConfig) int {
	if fc.MaxWorkers > 0 {
		return fc.MaxWorkers
	}
	return 4
}
