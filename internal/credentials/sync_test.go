package credentials

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/kv"
	"github.com/fyrsmithlabs/voicetask/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// fakeChannel keeps one copy per device tag, like the backup service.
type fakeChannel struct {
	backedUp     []Set
	tags         []string
	copies       map[string]Set
	syncs        int
	restore      Set
	restoreErr   error
	backupErr    error
	clearErr     error
	cleared      []string
	blockRestore bool
}

func (c *fakeChannel) Backup(_ context.Context, deviceTag string, creds Set) error {
	c.backedUp = append(c.backedUp, creds)
	c.tags = append(c.tags, deviceTag)
	if c.backupErr != nil {
		return c.backupErr
	}
	if c.copies == nil {
		c.copies = map[string]Set{}
	}
	c.copies[deviceTag] = creds
	return nil
}

func (c *fakeChannel) Restore(ctx context.Context, deviceTag string) (Set, error) {
	if c.blockRestore {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.restore != nil || c.restoreErr != nil {
		return c.restore, c.restoreErr
	}
	return c.copies[deviceTag], nil
}

func (c *fakeChannel) Clear(_ context.Context, deviceTag string) error {
	c.cleared = append(c.cleared, deviceTag)
	if c.clearErr != nil {
		return c.clearErr
	}
	delete(c.copies, deviceTag)
	return nil
}

func (c *fakeChannel) ScheduleSync(context.Context) error {
	c.syncs++
	return errors.New("cloud backup not implemented")
}

func TestCoordinator_SaveWithBackup(t *testing.T) {
	f := newFixture(t)
	ch := &fakeChannel{backupErr: errors.New("no responders")}
	tl := logging.NewTestLogger()
	c := NewCoordinator(f.store(deviceA), ch, nil, 0, tl.Underlying())
	ctx := context.Background()

	require.NoError(t, c.SaveWithBackup(ctx, sample))

	assert.Equal(t, sample, c.Store().Get(ctx))
	require.Len(t, ch.backedUp, 1)
	assert.Equal(t, []string{deviceA.Tag()}, ch.tags)
	assert.Equal(t, 1, ch.syncs)
	tl.AssertLogged(t, zapcore.WarnLevel, "credential backup failed")
	tl.AssertLogged(t, zapcore.WarnLevel, "scheduling credential sync failed")
}

func TestCoordinator_SaveWithoutChannel(t *testing.T) {
	f := newFixture(t)
	c := NewCoordinator(f.store(deviceA), nil, nil, 0, nil)

	require.NoError(t, c.SaveWithBackup(context.Background(), sample))
}

func TestCoordinator_LoadPrefersStore(t *testing.T) {
	f := newFixture(t)
	ch := &fakeChannel{restore: Set{SpeechAPIKey: "sk-from-backup"}}
	c := NewCoordinator(f.store(deviceA), ch, nil, 0, nil)
	ctx := context.Background()

	require.NoError(t, c.Store().Put(ctx, sample))
	assert.Equal(t, sample, c.LoadWithFallback(ctx))
}

func TestCoordinator_LoadRestoresAndWritesBack(t *testing.T) {
	f := newFixture(t)
	ch := &fakeChannel{restore: sample}
	c := NewCoordinator(f.store(deviceA), ch, nil, 0, nil)
	ctx := context.Background()

	assert.Equal(t, sample, c.LoadWithFallback(ctx))

	ch.restore = nil
	assert.Equal(t, sample, c.Store().Get(ctx), "restored values are written back to the store")
}

func TestCoordinator_RestoreTimeout(t *testing.T) {
	f := newFixture(t)
	ch := &fakeChannel{blockRestore: true}
	c := NewCoordinator(f.store(deviceA), ch, nil, 20*time.Millisecond, nil)

	start := time.Now()
	got := c.LoadWithFallback(context.Background())

	assert.Empty(t, got)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCoordinator_RestoreErrorFallsToLegacy(t *testing.T) {
	f := newFixture(t)
	s := f.store(deviceA)
	require.NoError(t, f.kv.Set(legacySpeechKey, "sk-legacy-key"))

	ch := &fakeChannel{restoreErr: errors.New("no responders")}
	c := NewCoordinator(s, ch, NewLegacyMigrator(f.kv, s, nil), 0, nil)
	ctx := context.Background()

	assert.Equal(t, Set{SpeechAPIKey: "sk-legacy-key"}, c.LoadWithFallback(ctx))
	assert.Equal(t, Set{SpeechAPIKey: "sk-legacy-key"}, s.Get(ctx))
}

func TestCoordinator_RestoreIsBoundToDevice(t *testing.T) {
	f := newFixture(t)
	ch := &fakeChannel{}
	ctx := context.Background()

	a := NewCoordinator(f.store(deviceA), ch, nil, 0, nil)
	require.NoError(t, a.SaveWithBackup(ctx, Set{SpeechAPIKey: "sk-secretA"}))

	b := NewCoordinator(f.store(deviceB), ch, nil, 0, nil)
	assert.Empty(t, b.Store().Get(ctx))
	assert.Empty(t, b.LoadWithFallback(ctx))
	assert.Empty(t, b.Store().Get(ctx), "nothing is re-stamped with the other device tag")

	assert.Equal(t, Set{SpeechAPIKey: "sk-secretA"}, a.LoadWithFallback(ctx))
}

func TestCoordinator_ClearRemovesBackupCopy(t *testing.T) {
	f := newFixture(t)
	ch := &fakeChannel{}
	c := NewCoordinator(f.store(deviceA), ch, nil, 0, nil)
	ctx := context.Background()

	require.NoError(t, c.SaveWithBackup(ctx, Set{SpeechAPIKey: "sk-secretA"}))
	require.NoError(t, c.Clear(ctx))

	assert.Equal(t, []string{deviceA.Tag()}, ch.cleared)
	assert.Empty(t, c.Store().Get(ctx))
	assert.Empty(t, c.LoadWithFallback(ctx))
}

func TestCoordinator_ClearReportsChannelFailure(t *testing.T) {
	f := newFixture(t)
	ch := &fakeChannel{clearErr: errors.New("no responders")}
	tl := logging.NewTestLogger()
	c := NewCoordinator(f.store(deviceA), ch, nil, 0, tl.Underlying())
	ctx := context.Background()

	require.NoError(t, c.SaveWithBackup(ctx, sample))
	err := c.Clear(ctx)

	assert.ErrorIs(t, err, ErrBackupNotCleared)
	assert.Empty(t, c.Store().Get(ctx), "the local copy is cleared regardless")
	tl.AssertLogged(t, zapcore.WarnLevel, "clearing credential backup failed")
}

func TestCoordinator_ClearWithoutChannel(t *testing.T) {
	f := newFixture(t)
	c := NewCoordinator(f.store(deviceA), nil, nil, 0, nil)
	ctx := context.Background()

	require.NoError(t, c.Store().Put(ctx, sample))
	require.NoError(t, c.Clear(ctx))
	assert.Empty(t, c.Store().Get(ctx))
}

func TestLegacyMigrator(t *testing.T) {
	t.Run("migrates and deletes legacy keys", func(t *testing.T) {
		f := newFixture(t)
		s := f.store(deviceA)
		expiry := f.clock.Now().Add(time.Hour).UnixMilli()
		for k, v := range map[string]string{
			legacySpeechKey:       "sk-legacy",
			legacyWorkspaceKey:    "secret_legacy",
			legacyDatabaseID:      "legacy-db",
			legacyWorkspaceExpiry: itoa(expiry),
		} {
			require.NoError(t, f.kv.Set(k, v))
		}

		got := NewLegacyMigrator(f.kv, s, nil).Migrate(context.Background())

		assert.Equal(t, Set{SpeechAPIKey: "sk-legacy", TaskDBAPIKey: "secret_legacy", TaskDBID: "legacy-db"}, got)
		for _, k := range LegacyKeys {
			_, ok, _ := f.kv.Get(k)
			assert.False(t, ok, k)
		}
	})

	t.Run("expired workspace pair is dropped", func(t *testing.T) {
		f := newFixture(t)
		s := f.store(deviceA)
		require.NoError(t, f.kv.Set(legacyWorkspaceKey, "secret_legacy"))
		require.NoError(t, f.kv.Set(legacyDatabaseID, "legacy-db"))
		require.NoError(t, f.kv.Set(legacyWorkspaceExpiry, itoa(f.clock.Now().Add(-time.Hour).UnixMilli())))

		got := NewLegacyMigrator(f.kv, s, nil).Migrate(context.Background())

		assert.Empty(t, got)
		_, ok, _ := f.kv.Get(legacyWorkspaceKey)
		assert.False(t, ok)
	})

	t.Run("nothing to migrate", func(t *testing.T) {
		f := newFixture(t)
		got := NewLegacyMigrator(kv.NewMemory(), f.store(deviceA), nil).Migrate(context.Background())
		assert.Empty(t, got)
	})
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
