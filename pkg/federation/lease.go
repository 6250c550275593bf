package federation

import (
	"sync"
	"time"

	"github.com/batchshipyard/engine/pkg/log"
	"github.com/batchshipyard/engine/pkg/metrics"
	"github.com/batchshipyard/engine/pkg/storage"
	"github.com/rs/zerolog"
)

// LeaseHolder drives leader election for one federation via a TTL lease
// row, renewing before half the TTL elapses and stepping down immediately
// on renewal failure (§4.J "the leader renews before half-TTL; on renewal
// failure it immediately stops processing").
type LeaseHolder struct {
	store        storage.Store
	federationID string
	owner        string
	ttlSeconds   int64
	logger       zerolog.Logger

	mu       sync.Mutex
	isLeader bool
	stopCh   chan struct{}
}

// NewLeaseHolder builds a LeaseHolder for owner against federationID.
func NewLeaseHolder(store storage.Store, federationID, owner string, ttlSeconds int64) *LeaseHolder {
	return &LeaseHolder{
		store:        store,
		federationID: federationID,
		owner:        owner,
		ttlSeconds:   ttlSeconds,
		logger:       log.WithComponent("federation").With().Str("federation_id", federationID).Logger(),
		stopCh:       make(chan struct{}),
	}
}

// Start begins the acquire/renew loop in the background.
func (l *LeaseHolder) Start() {
	go l.run()
}

// Stop halts the acquire/renew loop.
func (l *LeaseHolder) Stop() {
	close(l.stopCh)
}

// IsLeader reports whether this holder currently believes it holds the lease.
func (l *LeaseHolder) IsLeader() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isLeader
}

func (l *LeaseHolder) run() {
	interval := time.Duration(l.ttlSeconds) * time.Second / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.tryAcquire()
	for {
		select {
		case <-ticker.C:
			l.tryAcquire()
		case <-l.stopCh:
			return
		}
	}
}

func (l *LeaseHolder) tryAcquire() {
	_, err := l.store.AcquireOrRenewLease(l.federationID, l.owner, l.ttlSeconds, time.Now().Unix())

	l.mu.Lock()
	defer l.mu.Unlock()

	if err != nil {
		if l.isLeader {
			l.logger.Warn().Err(err).Msg("lease renewal failed, stepping down")
		}
		l.isLeader = false
		metrics.FederationIsLeader.Set(0)
		return
	}
	if !l.isLeader {
		l.logger.Info().Str("owner", l.owner).Msg("acquired federation leader lease")
	}
	l.isLeader = true
	metrics.FederationIsLeader.Set(1)
}
