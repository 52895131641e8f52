// Package state provides local key-value persistence for favorites, view
// history and the chat transcript.
package state

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/efiadm/api-categorizer-aggr/internal/errors"
	"github.com/efiadm/api-categorizer-aggr/internal/logger"
	"github.com/efiadm/api-categorizer-aggr/internal/metrics"
)

// Store defines the interface for slot storage. Every Save replaces the whole
// slot value.
type Store interface {
	Save(slot string, v any) error
	Load(slot string, v any) (bool, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendBolt   = "bolt"
	BackendFile   = "file"
	BackendGzip   = "gzip"
	BackendMemory = "memory"
)

// Open creates a store for backend rooted at dir.
func Open(backend, dir string) (Store, error) {
	switch strings.ToLower(backend) {
	case "", BackendBolt:
		s, err := NewBoltStore(filepath.Join(dir, "explorer.db"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendFile:
		return NewFileStore(dir, false), nil
	case BackendGzip:
		return NewFileStore(dir, true), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// Manager is the best-effort layer stateful components talk to. Unreadable
// records are logged and treated as absent; write failures are logged,
// counted and returned as Storage errors.
type Manager struct {
	store   Store
	log     *logger.Logger
	metrics *metrics.Collector
}

// NewManager creates a manager over store. A nil logger or collector
// disables that concern.
func NewManager(store Store, log *logger.Logger, m *metrics.Collector) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Manager{
		store:   store,
		log:     log.WithComponent("state"),
		metrics: m,
	}
}

// Load decodes slot into v and reports whether a usable value was found.
// When it returns false, v must be treated as empty.
func (m *Manager) Load(slot string, v any) bool {
	found, err := m.store.Load(slot, v)
	if err != nil {
		m.metrics.RecordStorageError()
		m.log.WithField("slot", slot).WithError(err).Warn("Discarding unreadable record")
		return false
	}
	return found
}

// Save writes v into slot.
func (m *Manager) Save(slot string, v any) error {
	if err := m.store.Save(slot, v); err != nil {
		m.metrics.RecordStorageError()
		m.log.WithField("slot", slot).WithError(err).Error("Failed to persist slot")
		return errors.NewStorageError(slot, "save", err)
	}
	return nil
}

// Store returns the underlying store.
func (m *Manager) Store() Store {
	return m.store
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
