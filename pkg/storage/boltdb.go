package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/batchshipyard/engine/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketPools        = []byte("pools")
	bucketNodes        = []byte("nodes")
	bucketJobs         = []byte("jobs")
	bucketFederations  = []byte("federations")
	bucketActionQueue  = []byte("action_queue")
	bucketActionSeq    = []byte("action_seq")
	bucketLeases       = []byte("leases")
	bucketJobLocations = []byte("job_locations")
	bucketImageState   = []byte("image_state")
	bucketPoolIngress  = []byte("pool_ingress_markers")
	bucketJobIngress   = []byte("job_ingress_markers")
	bucketCA           = []byte("ca")
)

// caKey is the single fixed key the root CA blob is stored under; there is
// exactly one CA per engine instance, shared across every pool's P2P mesh.
const caKey = "root"

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the engine's metadata database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "shipyard.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketPools, bucketNodes, bucketJobs, bucketFederations,
			bucketActionQueue, bucketActionSeq, bucketLeases,
			bucketJobLocations, bucketImageState, bucketPoolIngress, bucketJobIngress, bucketCA,
		}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- Pools ---

func (s *BoltStore) CreatePool(p *types.Pool) error {
	return s.put(bucketPools, p.ID, p)
}

func (s *BoltStore) GetPool(id string) (*types.Pool, error) {
	var p types.Pool
	if err := s.get(bucketPools, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) ListPools() ([]*types.Pool, error) {
	var out []*types.Pool
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPools).ForEach(func(_, v []byte) error {
			var p types.Pool
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdatePool(p *types.Pool) error { return s.put(bucketPools, p.ID, p) }
func (s *BoltStore) DeletePool(id string) error     { return s.del(bucketPools, id) }

// --- Nodes ---

func (s *BoltStore) CreateNode(n *types.Node) error { return s.put(bucketNodes, n.ID, n) }

func (s *BoltStore) GetNode(id string) (*types.Node, error) {
	var n types.Node
	if err := s.get(bucketNodes, id, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *BoltStore) ListNodesByPool(poolID string) ([]*types.Node, error) {
	var out []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			var n types.Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if n.PoolID == poolID {
				out = append(out, &n)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateNode(n *types.Node) error { return s.put(bucketNodes, n.ID, n) }
func (s *BoltStore) DeleteNode(id string) error     { return s.del(bucketNodes, id) }

// --- Jobs ---

func (s *BoltStore) CreateJob(j *types.Job) error { return s.put(bucketJobs, j.ID, j) }

func (s *BoltStore) GetJob(id string) (*types.Job, error) {
	var j types.Job
	if err := s.get(bucketJobs, id, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *BoltStore) ListJobs() ([]*types.Job, error) {
	var out []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(_, v []byte) error {
			var j types.Job
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			out = append(out, &j)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateJob(j *types.Job) error { return s.put(bucketJobs, j.ID, j) }
func (s *BoltStore) DeleteJob(id string) error    { return s.del(bucketJobs, id) }

// --- Federations ---

func (s *BoltStore) CreateFederation(f *types.Federation) error {
	return s.put(bucketFederations, f.ID, f)
}

func (s *BoltStore) GetFederation(id string) (*types.Federation, error) {
	var f types.Federation
	if err := s.get(bucketFederations, id, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *BoltStore) ListFederations() ([]*types.Federation, error) {
	var out []*types.Federation
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFederations).ForEach(func(_, v []byte) error {
			var f types.Federation
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			out = append(out, &f)
			return nil
		})
	})
	return out, err
}

// --- Federation action queue ---

func actionKey(federationID string, seq int64, uniqueID string) []byte {
	return []byte(fmt.Sprintf("%s/%020d/%s", federationID, seq, uniqueID))
}

func (s *BoltStore) EnqueueAction(federationID string, a *types.FederatedAction) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		seqBucket := tx.Bucket(bucketActionSeq)
		seq := int64(1)
		if raw := seqBucket.Get([]byte(federationID)); raw != nil {
			seq = int64(binary.BigEndian.Uint64(raw)) + 1
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(seq))
		if err := seqBucket.Put([]byte(federationID), buf); err != nil {
			return err
		}

		a.Sequence = seq
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketActionQueue).Put(actionKey(federationID, seq, a.UniqueID), data)
	})
}

func (s *BoltStore) ListQueuedActions(federationID string) ([]*types.FederatedAction, error) {
	prefix := []byte(federationID + "/")
	var out []*types.FederatedAction
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketActionQueue).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var a types.FederatedAction
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			out = append(out, &a)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, err
}

func (s *BoltStore) UpdateAction(federationID string, a *types.FederatedAction) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketActionQueue).Put(actionKey(federationID, a.Sequence, a.UniqueID), data)
	})
}

func (s *BoltStore) ZapAction(federationID, uniqueID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketActionQueue)
		c := b.Cursor()
		prefix := []byte(federationID + "/")
		var victim []byte
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var a types.FederatedAction
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if a.UniqueID == uniqueID {
				victim = append([]byte(nil), k...)
				break
			}
		}
		if victim == nil {
			return ErrNotFound
		}
		return b.Delete(victim)
	})
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// --- Leader lease ---

func (s *BoltStore) AcquireOrRenewLease(federationID, owner string, ttlSeconds, nowUnix int64) (*Lease, error) {
	var result *Lease
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLeases)
		raw := b.Get([]byte(federationID))

		var cur Lease
		if raw != nil {
			if err := json.Unmarshal(raw, &cur); err != nil {
				return err
			}
			if cur.Owner != owner && cur.ExpiresAt > nowUnix {
				return ErrConflict
			}
		}

		next := Lease{Owner: owner, ExpiresAt: nowUnix + ttlSeconds, Version: cur.Version + 1}
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(federationID), data); err != nil {
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BoltStore) GetLease(federationID string) (*Lease, error) {
	var l Lease
	if err := s.get(bucketLeases, federationID, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// --- Job location ---

func (s *BoltStore) SetJobLocation(federationID, jobID, location string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobLocations).Put([]byte(federationID+"/"+jobID), []byte(location))
	})
}

func (s *BoltStore) GetJobLocation(federationID, jobID string) (string, error) {
	var loc string
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketJobLocations).Get([]byte(federationID + "/" + jobID))
		if v == nil {
			return ErrNotFound
		}
		loc = string(v)
		return nil
	})
	return loc, err
}

// --- P2P image state ---

func imageStateKey(poolID, imageID string) []byte {
	return []byte(poolID + "/" + imageID)
}

func (s *BoltStore) GetImageState(poolID, imageID string) (*ImageState, error) {
	var st ImageState
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketImageState).Get(imageStateKey(poolID, imageID))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &st)
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *BoltStore) PutImageState(poolID string, st *ImageState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketImageState)
		key := imageStateKey(poolID, st.ImageID)
		raw := b.Get(key)
		if raw != nil {
			var cur ImageState
			if err := json.Unmarshal(raw, &cur); err != nil {
				return err
			}
			if cur.Version != st.Version {
				return ErrConflict
			}
		} else if st.Version != 0 {
			return ErrConflict
		}
		st.Version++
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// --- Ingress markers ---

func (s *BoltStore) HasIngressMarker(poolID, marker string) (bool, error) {
	return s.exists(bucketPoolIngress, poolID+"/"+marker)
}

func (s *BoltStore) SetIngressMarker(poolID, marker string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPoolIngress).Put([]byte(poolID+"/"+marker), []byte{1})
	})
}

func (s *BoltStore) HasJobIngressMarker(jobID, nodeID string) (bool, error) {
	return s.exists(bucketJobIngress, jobID+"/"+nodeID)
}

func (s *BoltStore) SetJobIngressMarker(jobID, nodeID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobIngress).Put([]byte(jobID+"/"+nodeID), []byte{1})
	})
}

// --- certificate authority ---

func (s *BoltStore) GetCA() ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCA).Get([]byte(caKey))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

func (s *BoltStore) SaveCA(data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCA).Put([]byte(caKey), data)
	})
}

// --- generic helpers ---

func (s *BoltStore) put(bucket []byte, key string, v interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *BoltStore) get(bucket []byte, key string, v interface{}) error {
	return s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, v)
	})
}

func (s *BoltStore) del(bucket []byte, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

func (s *BoltStore) exists(bucket []byte, key string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucket).Get([]byte(key)) != nil
		return nil
	})
	return found, err
}
