package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/hubfleet/hubfleet/pkg/types"
)

var bucketSessions = []byte("sessions")

// Store persists per-session service records across hub restarts.
type Store interface {
	Put(user, server string, rec types.Record) error
	Get(user, server string) (types.Record, bool, error)
	Delete(user, server string) error
	List() (map[string]types.Record, error)
	Close() error
}

// BoltStore implements Store on a local bbolt file.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the session database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "hubfleet.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
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

// sessionKey joins user and server name; the server name is empty for a
// user's default session.
func sessionKey(user, server string) []byte {
	return []byte(user + "/" + server)
}

// Put upserts the record for a session.
func (s *BoltStore) Put(user, server string, rec types.Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(sessionKey(user, server), data)
	})
}

// Get returns the record for a session. A missing record is not an error.
func (s *BoltStore) Get(user, server string) (types.Record, bool, error) {
	var rec types.Record
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		data := b.Get(sessionKey(user, server))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &rec)
	})
	return rec, found, err
}

// Delete removes the record for a session.
func (s *BoltStore) Delete(user, server string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		return b.Delete(sessionKey(user, server))
	})
}

// List returns every persisted session record keyed by "user/server".
func (s *BoltStore) List() (map[string]types.Record, error) {
	records := map[string]types.Record{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions)
		return b.ForEach(func(k, v []byte) error {
			var rec types.Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records[string(k)] = rec
			return nil
		})
	})
	return records, err
}
