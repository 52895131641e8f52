package state

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	bolt "go.etcd.io/bbolt"
)

var bucketSlots = []byte("slots")

// BoltStore implements Store using BoltDB, one key per slot.
type BoltStore struct {
	db   *bolt.DB
	path string
}

// NewBoltStore creates a new BoltDB-backed store.
func NewBoltStore(path string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSlots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

// Save writes v into slot.
func (s *BoltStore) Save(slot string, v any) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSlots)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put([]byte(slot), data)
	})
}

// Load reads slot into v. It reports false when the slot was never written.
func (s *BoltStore) Load(slot string, v any) (bool, error) {
	var raw []byte

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSlots)
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		if data := b.Get([]byte(slot)); data != nil {
			// Bolt memory is only valid inside the transaction.
			raw = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}

	return true, decodeRecord(raw, v)
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

var slotFileName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// FileStore implements Store using one JSON file per slot in a directory.
type FileStore struct {
	mu         sync.Mutex
	dir        string
	compressed bool
}

// NewFileStore creates a new directory-backed store.
func NewFileStore(dir string, compressed bool) *FileStore {
	return &FileStore{
		dir:        dir,
		compressed: compressed,
	}
}

func (s *FileStore) slotPath(slot string) string {
	name := slotFileName.ReplaceAllString(slot, "_") + ".json"
	if s.compressed {
		name += ".gz"
	}
	return filepath.Join(s.dir, name)
}

// Save writes v into the slot's file, replacing it atomically.
func (s *FileStore) Save(slot string, v any) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	path := s.slotPath(slot)
	tmp, err := os.CreateTemp(s.dir, ".slot-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if s.compressed {
		gw := gzip.NewWriter(tmp)
		if _, err := gw.Write(data); err != nil {
			tmp.Close()
			return err
		}
		if err := gw.Close(); err != nil {
			tmp.Close()
			return err
		}
	} else if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads the slot's file into v.
func (s *FileStore) Load(slot string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	var err error

	if s.compressed {
		data, err = s.loadCompressed(s.slotPath(slot))
	} else {
		data, err = os.ReadFile(s.slotPath(slot))
	}

	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	return true, decodeRecord(data, v)
}

func (s *FileStore) loadCompressed(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer gr.Close()

	return io.ReadAll(gr)
}

// Close is a no-op for FileStore.
func (s *FileStore) Close() error {
	return nil
}

// MemoryStore implements Store in memory. Values are kept encoded so that
// callers never share mutable state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string][]byte)}
}

// Save stores v under slot.
func (s *MemoryStore) Save(slot string, v any) error {
	data, err := encodeRecord(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.slots[slot] = data
	s.mu.Unlock()
	return nil
}

// Load decodes slot into v.
func (s *MemoryStore) Load(slot string, v any) (bool, error) {
	s.mu.RLock()
	data, ok := s.slots[slot]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, decodeRecord(data, v)
}

// Put stores raw bytes under slot, bypassing the envelope.
func (s *MemoryStore) Put(slot string, raw []byte) {
	s.mu.Lock()
	s.slots[slot] = append([]byte(nil), raw...)
	s.mu.Unlock()
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}
