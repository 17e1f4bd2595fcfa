package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MJE43/lotto-desk/internal/kvstore"
)

// StorageKey is the key the log is persisted under.
const StorageKey = "fortune_history"

// ErrCorrupt is returned when stored history cannot be trusted. Callers
// should fall back to an empty log.
var ErrCorrupt = errors.New("history: stored data is corrupt")

// Store persists the log as a whole.
type Store interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entries []Entry) error
}

// KVStore keeps the log as one JSON document in a key-value store.
type KVStore struct {
	kv  kvstore.KVStore
	key string
}

func NewKVStore(kv kvstore.KVStore) *KVStore {
	return &KVStore{kv: kv, key: StorageKey}
}

// Load returns the stored entries. A missing key is an empty history.
func (s *KVStore) Load(ctx context.Context) ([]Entry, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: load: %w", err)
	}
	return Decode(raw)
}

// Save writes at most MaxEntries entries.
func (s *KVStore) Save(ctx context.Context, entries []Entry) error {
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	raw, err := Encode(entries)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key, raw); err != nil {
		return fmt.Errorf("history: save: %w", err)
	}
	return nil
}

// Encode renders entries as the persisted JSON array.
func Encode(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("history: encode: %w", err)
	}
	return raw, nil
}

// Decode parses a persisted JSON array. Any malformed or invalid entry
// rejects the whole document with ErrCorrupt.
func Decode(raw []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	// null leaves the slice nil; only an explicit [] is an empty history.
	if entries == nil {
		return nil, fmt.Errorf("%w: document is not an array", ErrCorrupt)
	}
	if len(entries) > MaxEntries {
		return nil, fmt.Errorf("%w: %d entries exceeds cap of %d", ErrCorrupt, len(entries), MaxEntries)
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrCorrupt, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return entries, nil
}
