package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/kv"
	"github.com/fyrsmithlabs/voicetask/internal/logging"
	"go.uber.org/zap"
)

// Store writes credentials to every tier and reads them from the first
// tier that yields any valid entry.
type Store struct {
	tiers  []Tier
	device Device
	key    string
	tag    string
	ttl    time.Duration
	now    func() time.Time
	legacy kv.Store
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides time.Now for the store and its tiers.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLegacyKeys makes Clear also remove the pre-tier flat keys from store.
func WithLegacyKeys(store kv.Store) Option {
	return func(s *Store) { s.legacy = store }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type clockSetter interface {
	setClock(func() time.Time)
}

// NewStore returns a Store over tiers, highest priority first.
func NewStore(device Device, tiers []Tier, opts ...Option) *Store {
	s := &Store{
		tiers:  tiers,
		device: device,
		key:    device.Key(),
		tag:    device.Tag(),
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, t := range s.tiers {
		if cs, ok := t.(clockSetter); ok {
			cs.setClock(s.now)
		}
	}
	return s
}

// Device returns the fingerprint the store is bound to.
func (s *Store) Device() Device {
	return s.device
}

// Put obfuscates each non-blank value in creds and writes it to every tier,
// replacing existing entries. Blank values leave the stored entry as is. Unknown IDs are ignored. A tier failure is
// logged; Put fails only when no tier accepted a value.
func (s *Store) Put(ctx context.Context, creds Set) error {
	now := s.now()
	var errs []error

	for _, id := range KnownIDs {
		value := creds[id]
		if strings.TrimSpace(value) == "" {
			continue
		}
		obfuscated, err := Obfuscate(value, s.key)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		entry := Entry{
			ID:        id,
			Value:     obfuscated,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
			DeviceTag: s.tag,
		}

		stored := false
		for _, t := range s.tiers {
			if err := t.Put(ctx, entry); err != nil {
				s.logger.Warn("credential tier write failed",
					zap.String("tier", t.Name()), zap.String("id", string(id)), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			stored = true
		}
		if !stored {
			return fmt.Errorf("%w: no tier stored %s: %v", ErrStorage, id, errors.Join(errs...))
		}
		s.logger.Debug("credential stored", logging.Credential(string(id), value))
	}

	for id := range creds {
		if !Known(id) {
			s.logger.Warn("ignoring unknown credential id", zap.String("id", string(id)))
		}
	}
	return nil
}

// Get returns every valid credential from the first tier that yields at
// least one. Expired entries, entries written on another device and
// undecodable entries are omitted. Tier errors fall through to the next
// tier. Get never fails; the result may be empty.
func (s *Store) Get(ctx context.Context) Set {
	now := s.now()
	for _, t := range s.tiers {
		found, err := s.readTier(ctx, t, now)
		if err != nil {
			s.logger.Warn("credential tier read failed, falling back",
				zap.String("tier", t.Name()), zap.Error(err))
			continue
		}
		if len(found) > 0 {
			return found
		}
	}
	return Set{}
}

func (s *Store) readTier(ctx context.Context, t Tier, now time.Time) (Set, error) {
	found := Set{}
	for _, id := range KnownIDs {
		e, ok, err := t.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if !e.valid(now, s.tag) {
			s.logger.Debug("skipping credential",
				zap.String("tier", t.Name()), zap.String("id", string(id)),
				zap.Bool("expired", !now.Before(e.ExpiresAt)),
				zap.Bool("foreign_device", e.DeviceTag != s.tag))
			continue
		}
		value, err := Reveal(e.Value, s.key)
		if err != nil || value == "" {
			continue
		}
		found[id] = value
	}
	return found, nil
}

// SweepExpired removes expired entries from every tier that supports it.
func (s *Store) SweepExpired(ctx context.Context) {
	now := s.now()
	for _, t := range s.tiers {
		sw, ok := t.(Sweeper)
		if !ok {
			continue
		}
		n, err := sw.SweepExpired(ctx, now)
		if err != nil {
			s.logger.Warn("credential sweep failed", zap.String("tier", t.Name()), zap.Error(err))
			continue
		}
		if n > 0 {
			s.logger.Info("swept expired credentials", zap.String("tier", t.Name()), zap.Int64("count", n))
		}
	}
}

// Clear removes every known credential from every tier, plus the legacy
// flat keys when configured.
func (s *Store) Clear(ctx context.Context) {
	for _, t := range s.tiers {
		if err := t.Delete(ctx, KnownIDs...); err != nil {
			s.logger.Warn("credential tier clear failed", zap.String("tier", t.Name()), zap.Error(err))
		}
	}
	if s.legacy != nil {
		if err := s.legacy.Delete(LegacyKeys...); err != nil {
			s.logger.Warn("legacy credential clear failed", zap.Error(err))
		}
	}
}
