// Package agentstore persists the agent's small local state across process
// restarts: the monotonic ack counter the mgr-push protocol returns to the
// manager, and the last-gathered daemon listing. Grounded on
// pkg/storage/boltdb.go's bucket-per-entity, JSON-marshaled-value idiom.
package agentstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cephadmd/cephadmd/pkg/types"
)

var (
	bucketMeta    = []byte("meta")
	bucketDaemons = []byte("daemons")
)

const ackCounterKey = "ack_counter"

// Store is the agent's bbolt-backed local cache.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the agent store under dataDir/agent.db, creating
// both buckets if they don't exist yet.
func Open(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "agent.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening agent store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketMeta, bucketDaemons} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// NextAck increments and returns the persisted ack counter the mgr-push
// protocol replies with, surviving an agent restart mid-conversation.
func (s *Store) NextAck() (uint64, error) {
	var next uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		cur := b.Get([]byte(ackCounterKey))
		var n uint64
		if cur != nil {
			n = binary.LittleEndian.Uint64(cur)
		}
		n++
		next = n
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, n)
		return b.Put([]byte(ackCounterKey), buf)
	})
	return next, err
}

// PutDaemons replaces the cached daemon listing for clusterID.
func (s *Store) PutDaemons(clusterID string, daemons []types.DaemonInfo) error {
	data, err := json.Marshal(daemons)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDaemons).Put([]byte(clusterID), data)
	})
}

// GetDaemons returns the cached daemon listing for clusterID, or nil if
// nothing has been gathered yet.
func (s *Store) GetDaemons(clusterID string) ([]types.DaemonInfo, error) {
	var daemons []types.DaemonInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketDaemons).Get([]byte(clusterID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &daemons)
	})
	return daemons, err
}
