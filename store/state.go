package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"

	"github.com/quaypoint/certmill/pki"
)

// Bucket and key names inside the state database.
var (
	bucketMeta      = []byte("meta")
	bucketIssuances = []byte("issuances")
	keyNextSerial   = []byte("next_serial")
)

// firstLeafSerial is where the counter starts; serial 1 belongs to the
// CA certificate itself.
const firstLeafSerial = 2

// stateLockTimeout bounds how long opening the state database waits for
// its file lock before concluding another run owns the store.
const stateLockTimeout = time.Second

// State is the persistent issuance state of a store: the monotonic
// serial counter and the issuance index, kept in a bbolt database. The
// database file lock doubles as the advisory guard against concurrent
// runs.
type State struct {
	db *bbolt.DB
}

var _ pki.SerialSource = (*State)(nil)

// OpenState opens the store's state database, creating it on first use.
// It returns ErrStateLocked when another process holds the lock.
func (s *Store) OpenState() (*State, error) {
	if err := s.ensureDir(); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(s.Path(FileState), permKey, &bbolt.Options{Timeout: stateLockTimeout})
	if err != nil {
		if errors.Is(err, berrors.ErrTimeout) {
			return nil, fmt.Errorf("%s: %w", s.Path(FileState), ErrStateLocked)
		}
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	return &State{db: db}, nil
}

// Close releases the state database and its file lock.
func (st *State) Close() error {
	return st.db.Close()
}

// Next returns the next leaf serial number. The increment is persisted
// before the serial is handed out, so a crash cannot reissue one.
// Implements pki.SerialSource.
func (st *State) Next() (int64, error) {
	var serial int64
	err := st.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		serial = firstLeafSerial
		if raw := b.Get(keyNextSerial); len(raw) == 8 {
			serial = int64(binary.BigEndian.Uint64(raw))
		}
		return b.Put(keyNextSerial, itob(serial+1))
	})
	if err != nil {
		return 0, fmt.Errorf("advancing serial counter: %w", err)
	}
	return serial, nil
}

// Record is one entry in the issuance index.
type Record struct {
	ID                string    `json:"id"`
	Profile           string    `json:"profile"`
	CommonName        string    `json:"common_name"`
	SerialNumber      string    `json:"serial_number"`
	FingerprintSHA256 string    `json:"fingerprint_sha256"`
	NotBefore         time.Time `json:"not_before"`
	NotAfter          time.Time `json:"not_after"`
	IssuedAt          time.Time `json:"issued_at"`
}

// RecordIssuance appends a record to the issuance index and returns its
// ID. A fresh uuid names the record when rec.ID is empty.
func (st *State) RecordIssuance(rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.IssuedAt.IsZero() {
		rec.IssuedAt = time.Now().UTC()
	}
	err := st.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketIssuances)
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		// Keys come from the bucket sequence so listing preserves
		// issuance order; the uuid lives in the value.
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(itob(int64(seq)), data)
	})
	if err != nil {
		return "", fmt.Errorf("recording issuance: %w", err)
	}
	return rec.ID, nil
}

// Issuances returns the recorded issuance history, oldest first.
func (st *State) Issuances() ([]Record, error) {
	var records []Record
	err := st.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketIssuances)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding issuance record: %w", err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}
