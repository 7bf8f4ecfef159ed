package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voicetask/internal/backup"
	"github.com/fyrsmithlabs/voicetask/internal/capture"
	"github.com/fyrsmithlabs/voicetask/internal/config"
	"github.com/fyrsmithlabs/voicetask/internal/credentials"
	"github.com/fyrsmithlabs/voicetask/internal/extraction"
	"github.com/fyrsmithlabs/voicetask/internal/kv"
	"github.com/fyrsmithlabs/voicetask/internal/logging"
	"github.com/fyrsmithlabs/voicetask/internal/pipeline"
	"github.com/fyrsmithlabs/voicetask/internal/scrub"
	"github.com/fyrsmithlabs/voicetask/internal/tasks"
	"github.com/fyrsmithlabs/voicetask/internal/telemetry"
	"github.com/fyrsmithlabs/voicetask/internal/transcription"
	"github.com/fyrsmithlabs/voicetask/internal/workspace"
)

// base holds what every command needs: config, logger and telemetry.
type base struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Telemetry
}

func loadBase(ctx context.Context) (*base, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logging.NewLogger(logging.FromSettings(cfg.Logging.Level, cfg.Logging.Format), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := l.Underlying()

	return &base{
		cfg:       cfg,
		logger:    logger,
		telemetry: telemetry.New(ctx, cfg.Telemetry, version, logger),
	}, nil
}

func (b *base) Close() {
	if err := b.telemetry.Shutdown(context.Background()); err != nil {
		b.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = b.logger.Sync()
}

// app is the fully wired client side: storage, credentials, the session
// and the processing pipeline.
type app struct {
	*base

	slots       kv.Store
	sqlite      *credentials.SQLiteTier
	nc          *nats.Conn
	coordinator *credentials.Coordinator
	mappings    *workspace.MappingStore
	workspace   *workspace.Client
	session     *pipeline.Session
	processor   *pipeline.Processor
}

func newApp(ctx context.Context) (*app, error) {
	b, err := loadBase(ctx)
	if err != nil {
		return nil, err
	}
	a := &app{base: b}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg := a.cfg

	if err := cfg.EnsureStorageDir(); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	a.slots = openSlots(cfg.StatePath(), a.logger)
	slots := a.slots

	var tiers []credentials.Tier
	sqlite, err := credentials.OpenSQLiteTier(cfg.CredentialsPath())
	if err != nil {
		a.logger.Warn("credential database unavailable, using state file only",
			zap.String("path", cfg.CredentialsPath()),
			zap.Error(err))
	} else {
		a.sqlite = sqlite
		tiers = append(tiers, sqlite)
	}
	tiers = append(tiers, credentials.NewKVTier(slots))

	device := credentials.HostDevice(cfg.Device.UserAgent, cfg.Device.Screen, cfg.Device.Timezone)
	store := credentials.NewStore(device, tiers,
		credentials.WithTTL(cfg.Storage.CredentialTTL.Duration()),
		credentials.WithLegacyKeys(slots),
		credentials.WithLogger(a.logger),
	)

	var channel credentials.BackupChannel
	if cfg.Backup.Enabled {
		nc, err := nats.Connect(cfg.Backup.URL, nats.Name("voicetask"))
		if err != nil {
			a.logger.Warn("backup broker unavailable", zap.String("url", cfg.Backup.URL), zap.Error(err))
		} else {
			a.nc = nc
			channel = backup.NewClient(nc, cfg.Backup.Subject, a.logger)
		}
	}

	legacy := credentials.NewLegacyMigrator(slots, store, a.logger)
	a.coordinator = credentials.NewCoordinator(store, channel, legacy, cfg.Backup.RestoreTimeout.Duration(), a.logger)

	creds := a.coordinator.LoadWithFallback(ctx)
	if creds.Get(credentials.SpeechAPIKey) == "" && cfg.Speech.APIKey.IsSet() {
		creds = creds.Merge(credentials.Set{credentials.SpeechAPIKey: cfg.Speech.APIKey.Value()})
	}

	taskStore := tasks.NewStore(slots, a.logger)
	taskStore.Load()

	a.mappings = workspace.NewMappingStore(slots, a.logger)
	a.session = &pipeline.Session{
		Credentials: creds,
		Tasks:       taskStore,
		Mapping:     a.mappings.Load(),
		Language:    pipeline.ParseLanguage(cfg.UI.Language),
	}

	a.workspace = workspace.NewClient(workspace.Config{
		ProxyURL: cfg.Workspace.ProxyURL,
		BaseURL:  cfg.Workspace.BaseURL,
		Version:  cfg.Workspace.Version,
		Timeout:  cfg.Workspace.Timeout.Duration(),
	}, a.logger)

	deps := pipeline.Deps{
		Transcriber: transcription.NewClient(transcription.Config{
			BaseURL:   cfg.Speech.BaseURL,
			Model:     cfg.Speech.Model,
			Prompt:    cfg.Speech.Prompt,
			Timeout:   cfg.Speech.Timeout.Duration(),
			RateLimit: cfg.Speech.RateLimit,
		}, a.logger),
		Extractor: extraction.NewClient(extraction.Config{
			BaseURL:     cfg.Extraction.BaseURL,
			Model:       cfg.Extraction.Model,
			Temperature: cfg.Extraction.Temperature,
			Timeout:     cfg.Extraction.Timeout.Duration(),
			RateLimit:   cfg.Extraction.RateLimit,
		}, a.logger),
		Pusher: a.workspace,
		Tracer: a.telemetry.Tracer("voicetask/pipeline"),
	}
	if cfg.Scrub.Enabled {
		s, err := scrub.New(cfg.Scrub.AllowlistFile, a.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize scrubber: %w", err)
		}
		deps.Scrubber = s
	}
	a.processor = pipeline.New(deps, a.logger)
	return nil
}

// openSlots opens the state file. A corrupt file is moved aside and an
// unreadable one is replaced by an in-memory store for this run.
func openSlots(path string, logger *zap.Logger) kv.Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, movedTo, err := kv.OpenOrReset(path)
	if err != nil {
		logger.Warn("state file unavailable, changes will not be saved",
			zap.String("path", path),
			zap.Error(err))
		return kv.NewMemory()
	}
	if movedTo != "" {
		logger.Warn("state file was corrupt and has been reset",
			zap.String("path", path),
			zap.String("moved_to", movedTo))
	}
	return f
}

func (a *app) captureOptions() capture.Options {
	return capture.Options{
		MaxDuration: a.cfg.Capture.MaxDuration.Duration(),
		MaxBytes:    a.cfg.Capture.MaxBytes,
	}
}

func (a *app) Close() {
	if a.nc != nil {
		a.nc.Close()
	}
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			a.logger.Warn("failed to close credential database", zap.Error(err))
		}
	}
	a.base.Close()
}
