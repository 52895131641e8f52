package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/efiadm/api-categorizer-aggr/internal/errors"
	"github.com/efiadm/api-categorizer-aggr/internal/logger"
	"github.com/efiadm/api-categorizer-aggr/internal/metrics"
)

type historyRecord struct {
	APIID     string    `json:"apiId"`
	Timestamp time.Time `json:"timestamp"`
}

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	bolt, err := NewBoltStore(filepath.Join(dir, "bolt", "test.db"))
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { bolt.Close() })

	return map[string]Store{
		"bolt":       bolt,
		"file":       NewFileStore(filepath.Join(dir, "files"), false),
		"compressed": NewFileStore(filepath.Join(dir, "gz"), true),
		"memory":     NewMemoryStore(),
	}
}

// =============================================================================
// Store Tests (all backends)
// =============================================================================

func TestStores_SaveAndLoad(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			want := []historyRecord{{"api-002", ts}, {"api-001", ts.Add(-time.Minute)}}

			if err := store.Save(SlotHistory, want); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			var got []historyRecord
			found, err := store.Load(SlotHistory, &got)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if !found {
				t.Fatal("Load() found = false")
			}
			if len(got) != 2 || got[0].APIID != "api-002" || !got[1].Timestamp.Equal(want[1].Timestamp) {
				t.Errorf("Load() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestStores_LoadMissing(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			var ids []string
			found, err := store.Load(SlotFavorites, &ids)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if found {
				t.Error("Load() of a missing slot should report not found")
			}
		})
	}
}

func TestStores_SlotsAreIndependent(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Save(SlotFavorites, []string{"api-001"}); err != nil {
				t.Fatal(err)
			}
			if err := store.Save(SlotTranscript, []string{"msg"}); err != nil {
				t.Fatal(err)
			}
			if err := store.Save(SlotFavorites, []string{"api-003"}); err != nil {
				t.Fatal(err)
			}

			var favs, msgs []string
			store.Load(SlotFavorites, &favs)
			store.Load(SlotTranscript, &msgs)

			if len(favs) != 1 || favs[0] != "api-003" {
				t.Errorf("favorites = %v, want [api-003]", favs)
			}
			if len(msgs) != 1 || msgs[0] != "msg" {
				t.Errorf("transcript = %v, want [msg]", msgs)
			}
		})
	}
}

func TestBoltStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explorer.db")

	store, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(SlotFavorites, []string{"api-010"}); err != nil {
		t.Fatal(err)
	}
	store.Close()

	reopened, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	var ids []string
	if found, err := reopened.Load(SlotFavorites, &ids); err != nil || !found {
		t.Fatalf("Load() = %v, %v", found, err)
	}
	if len(ids) != 1 || ids[0] != "api-010" {
		t.Errorf("ids = %v", ids)
	}
	if reopened.Path() != path {
		t.Errorf("Path() = %q, want %q", reopened.Path(), path)
	}
}

func TestFileStore_WritesEnvelope(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir, false)

	if err := store.Save(SlotFavorites, []string{"api-001"}); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "api-favorites.json"))
	if err != nil {
		t.Fatalf("slot file missing: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatal(err)
	}
	if env.Version != CurrentVersion {
		t.Errorf("Version = %d, want %d", env.Version, CurrentVersion)
	}
	if !bytes.Equal(env.Data, []byte(`["api-001"]`)) {
		t.Errorf("Data = %s", env.Data)
	}
}

// =============================================================================
// Envelope Tests
// =============================================================================

func TestDecodeRecord(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr error
	}{
		{"envelope", `{"version":1,"data":["a","b"]}`, []string{"a", "b"}, nil},
		{"legacy array", `["a"]`, []string{"a"}, nil},
		{"newer version", `{"version":2,"data":["a"]}`, nil, ErrUnsupportedVersion},
		{"garbage", `not json`, nil, ErrCorrupt},
		{"wrong shape", `{"version":1,"data":{"x":1}}`, nil, ErrCorrupt},
		{"empty", ``, nil, ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			err := decodeRecord([]byte(tt.raw), &got)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("decodeRecord() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeRecord() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// =============================================================================
// Manager Tests
// =============================================================================

func TestManager_LoadCorruptTreatedAsEmpty(t *testing.T) {
	mem := NewMemoryStore()
	mem.Put(SlotHistory, []byte("{{{"))

	var buf bytes.Buffer
	m := metrics.New()
	mgr := NewManager(mem, logger.NewJSON(&buf, logger.DebugLevel), m)

	var entries []historyRecord
	if mgr.Load(SlotHistory, &entries) {
		t.Error("Load() of a corrupt record should report false")
	}
	if m.Snapshot().StorageErrors != 1 {
		t.Errorf("StorageErrors = %d, want 1", m.Snapshot().StorageErrors)
	}
	if !bytes.Contains(buf.Bytes(), []byte(SlotHistory)) {
		t.Errorf("expected log line naming the slot, got %q", buf.String())
	}
}

type failingStore struct{ *MemoryStore }

func (*failingStore) Save(string, any) error { return errors.New("disk full") }

func TestManager_SaveFailure(t *testing.T) {
	mgr := NewManager(&failingStore{NewMemoryStore()}, nil, nil)

	err := mgr.Save(SlotFavorites, []string{"x"})
	if !apperrors.IsType(err, apperrors.Storage) {
		t.Fatalf("Save() error = %v, want storage error", err)
	}

	var got []string
	if mgr.Load(SlotFavorites, &got) {
		t.Errorf("Load() after failed Save found %v", got)
	}
}

func TestManager_RoundTrip(t *testing.T) {
	mgr := NewManager(NewMemoryStore(), nil, nil)

	if err := mgr.Save(SlotFavorites, []string{"api-005"}); err != nil {
		t.Fatal(err)
	}
	var ids []string
	if !mgr.Load(SlotFavorites, &ids) || len(ids) != 1 {
		t.Errorf("Load() = %v", ids)
	}
	if err := mgr.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		backend string
		wantErr bool
	}{
		{"", false},
		{"bolt", false},
		{"file", false},
		{"gzip", false},
		{"MEMORY", false},
		{"redis", true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			sub := filepath.Join(dir, tt.backend+"x")
			store, err := Open(tt.backend, sub)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open(%q) error = %v, wantErr %v", tt.backend, err, tt.wantErr)
			}
			if store != nil {
				store.Close()
			}
		})
	}
}
