package credentials

import (
	"context"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/kv"
	"go.uber.org/zap"
)

// Flat keys written by releases that predate the tiered store.
const (
	legacySpeechKey       = "voiceTaskApiKey"
	legacySpeechExpiry    = "voiceTaskApiKeyExpiry"
	legacyWorkspaceKey    = "voiceTaskNotionApiKey"
	legacyDatabaseID      = "voiceTaskNotionDatabaseId"
	legacyWorkspaceExpiry = "voiceTaskNotionCredentialsExpiry"
)

// LegacyKeys lists every pre-tier key. Clear removes all of them.
var LegacyKeys = []string{
	legacySpeechKey,
	legacySpeechExpiry,
	legacyWorkspaceKey,
	legacyDatabaseID,
	legacyWorkspaceExpiry,
}

// LegacyMigrator converts the flat legacy keys into tiered entries.
// It is a one-shot adapter; once the legacy keys are gone it does nothing.
type LegacyMigrator struct {
	source kv.Store
	target *Store
	logger *zap.Logger
}

// NewLegacyMigrator returns a migrator reading source and writing target.
func NewLegacyMigrator(source kv.Store, target *Store, logger *zap.Logger) *LegacyMigrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LegacyMigrator{source: source, target: target, logger: logger}
}

// Migrate reads the legacy keys, stores any unexpired values through the
// target Store and deletes the legacy keys. It returns the migrated set,
// which is empty when there was nothing to migrate.
func (m *LegacyMigrator) Migrate(ctx context.Context) Set {
	now := m.target.now()
	found := Set{}

	if m.unexpired(legacySpeechExpiry, now) {
		if v := m.read(legacySpeechKey); v != "" {
			found[SpeechAPIKey] = v
		}
	}
	if m.unexpired(legacyWorkspaceExpiry, now) {
		if v := m.read(legacyWorkspaceKey); v != "" {
			found[TaskDBAPIKey] = v
		}
		if v := m.read(legacyDatabaseID); v != "" {
			found[TaskDBID] = v
		}
	}

	if found.Empty() {
		if m.anyPresent() {
			m.purge()
		}
		return Set{}
	}

	if err := m.target.Put(ctx, found); err != nil {
		m.logger.Warn("legacy credential migration failed, keeping legacy keys", zap.Error(err))
		return Set{}
	}
	m.purge()
	m.logger.Info("migrated legacy credentials", zap.Int("count", len(found)))
	return found
}

func (m *LegacyMigrator) read(key string) string {
	v, ok, err := m.source.Get(key)
	if err != nil || !ok {
		return ""
	}
	return v
}

// unexpired treats a missing or unparsable expiry as unexpired. Expiries
// are epoch milliseconds.
func (m *LegacyMigrator) unexpired(key string, now time.Time) bool {
	raw := m.read(key)
	if raw == "" {
		return true
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return true
	}
	return now.Before(time.UnixMilli(ms))
}

func (m *LegacyMigrator) anyPresent() bool {
	for _, k := range LegacyKeys {
		if _, ok, _ := m.source.Get(k); ok {
			return true
		}
	}
	return false
}

func (m *LegacyMigrator) purge() {
	if err := m.source.Delete(LegacyKeys...); err != nil {
		m.logger.Warn("failed to delete legacy credential keys", zap.Error(err))
	}
}
