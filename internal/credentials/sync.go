package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// BackupChannel is an out-of-process holder of credential copies. Every
// copy is bound to the device tag it was saved under and is only handed
// back to that tag.
type BackupChannel interface {
	// Backup hands the current credentials to the channel.
	Backup(ctx context.Context, deviceTag string, creds Set) error
	// Restore asks the channel for the copy saved under deviceTag. An empty
	// set with a nil error means the channel holds nothing for it.
	Restore(ctx context.Context, deviceTag string) (Set, error)
	// Clear removes the copy saved under deviceTag.
	Clear(ctx context.Context, deviceTag string) error
	// ScheduleSync requests a deferred network backup.
	ScheduleSync(ctx context.Context) error
}

// ErrBackupNotCleared is returned by Coordinator.Clear when the backup
// channel kept its copy.
var ErrBackupNotCleared = errors.New("backup copy was not cleared")

// DefaultRestoreTimeout bounds a restore and a clear request.
const DefaultRestoreTimeout = 5 * time.Second

// Coordinator layers the backup channel and legacy migration over a Store.
// Either collaborator may be nil.
type Coordinator struct {
	store          *Store
	channel        BackupChannel
	legacy         *LegacyMigrator
	restoreTimeout time.Duration
	logger         *zap.Logger
}

// NewCoordinator returns a Coordinator. A restoreTimeout <= 0 uses
// DefaultRestoreTimeout.
func NewCoordinator(store *Store, channel BackupChannel, legacy *LegacyMigrator, restoreTimeout time.Duration, logger *zap.Logger) *Coordinator {
	if restoreTimeout <= 0 {
		restoreTimeout = DefaultRestoreTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:          store,
		channel:        channel,
		legacy:         legacy,
		restoreTimeout: restoreTimeout,
		logger:         logger,
	}
}

// Store returns the underlying Store.
func (c *Coordinator) Store() *Store {
	return c.store
}

// SaveWithBackup stores creds, then notifies the backup channel and asks
// it to schedule a deferred sync. Channel failures are logged only.
func (c *Coordinator) SaveWithBackup(ctx context.Context, creds Set) error {
	if err := c.store.Put(ctx, creds); err != nil {
		return err
	}
	if c.channel == nil {
		return nil
	}
	if err := c.channel.Backup(ctx, c.store.Device().Tag(), creds); err != nil {
		c.logger.Warn("credential backup failed", zap.Error(err))
	}
	if err := c.channel.ScheduleSync(ctx); err != nil {
		c.logger.Warn("scheduling credential sync failed", zap.Error(err))
	}
	return nil
}

// LoadWithFallback reads the Store. When it is empty, it restores from the
// backup channel (bounded by the restore timeout) and writes the result
// back into the Store. When that also yields nothing, it runs the legacy
// migration.
func (c *Coordinator) LoadWithFallback(ctx context.Context) Set {
	if creds := c.store.Get(ctx); !creds.Empty() {
		return creds
	}

	if creds := c.restore(ctx); !creds.Empty() {
		if err := c.store.Put(ctx, creds); err != nil {
			c.logger.Warn("writing restored credentials back failed", zap.Error(err))
		}
		return creds
	}

	if c.legacy != nil {
		return c.legacy.Migrate(ctx)
	}
	return Set{}
}

// Clear removes the credentials from the Store and the backup copy of this
// device from the channel, so a later LoadWithFallback cannot bring them
// back. The local clear always happens; a channel failure is returned.
func (c *Coordinator) Clear(ctx context.Context) error {
	c.store.Clear(ctx)
	if c.channel == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.restoreTimeout)
	defer cancel()
	if err := c.channel.Clear(ctx, c.store.Device().Tag()); err != nil {
		c.logger.Warn("clearing credential backup failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrBackupNotCleared, err)
	}
	return nil
}

func (c *Coordinator) restore(ctx context.Context) Set {
	if c.channel == nil {
		return Set{}
	}
	ctx, cancel := context.WithTimeout(ctx, c.restoreTimeout)
	defer cancel()

	creds, err := c.channel.Restore(ctx, c.store.Device().Tag())
	if err != nil {
		c.logger.Warn("credential restore failed", zap.Error(err))
		return Set{}
	}
	if creds.Empty() {
		return Set{}
	}
	c.logger.Info("restored credentials from backup channel", zap.Int("count", len(creds)))
	return creds
}
