package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/kv"
)

// secondaryPrefix prefixes secondary-tier keys: secure_<id>.
const secondaryPrefix = "secure_"

// KVTier is the secondary tier: one JSON record per credential in a flat
// key/value store. Expired records are removed when read.
type KVTier struct {
	store kv.Store
	now   func() time.Time
}

// NewKVTier returns a secondary tier over store.
func NewKVTier(store kv.Store) *KVTier {
	return &KVTier{store: store, now: time.Now}
}

type kvRecord struct {
	Value      string `json:"value"`
	Timestamp  int64  `json:"timestamp"`
	ExpiryDate int64  `json:"expiryDate"`
	DeviceTag  string `json:"deviceTag"`
}

func (t *KVTier) Name() string { return "kv" }

func (t *KVTier) Put(_ context.Context, e Entry) error {
	raw, err := json.Marshal(kvRecord{
		Value:      e.Value,
		Timestamp:  e.CreatedAt.UnixMilli(),
		ExpiryDate: e.ExpiresAt.UnixMilli(),
		DeviceTag:  e.DeviceTag,
	})
	if err != nil {
		return err
	}
	return t.store.Set(secondaryPrefix+string(e.ID), string(raw))
}

func (t *KVTier) Get(_ context.Context, id ID) (Entry, bool, error) {
	key := secondaryPrefix + string(id)
	raw, ok, err := t.store.Get(key)
	if err != nil || !ok {
		return Entry{}, false, err
	}

	var rec kvRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Entry{}, false, fmt.Errorf("decode %s: %w", key, err)
	}

	e := Entry{
		ID:        id,
		Value:     rec.Value,
		CreatedAt: time.UnixMilli(rec.Timestamp),
		ExpiresAt: time.UnixMilli(rec.ExpiryDate),
		DeviceTag: rec.DeviceTag,
	}
	if !t.now().Before(e.ExpiresAt) {
		_ = t.store.Delete(key)
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (t *KVTier) Delete(_ context.Context, ids ...ID) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, secondaryPrefix+string(id))
	}
	return t.store.Delete(keys...)
}

func (t *KVTier) setClock(now func() time.Time) { t.now = now }
