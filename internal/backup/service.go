package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Service answers backup, restore, clear and sync messages.
type Service struct {
	nc      *nats.Conn
	store   *store
	subject string
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Subject   string
	StorePath string
	TTL       time.Duration
}

// NewService opens the backup database. Call Start to begin serving.
func NewService(nc *nats.Conn, cfg ServiceConfig, logger *zap.Logger) (*Service, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	st, err := openStore(cfg.StorePath)
	if err != nil {
		return nil, err
	}
	return &Service{
		nc:      nc,
		store:   st,
		subject: cfg.Subject,
		ttl:     cfg.TTL,
		now:     time.Now,
		logger:  logger,
	}, nil
}

// Start subscribes to the service subjects.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) > 0 {
		return errors.New("backup service already started")
	}

	subj := subjects(s.subject)
	handlers := map[string]nats.MsgHandler{
		subj.backup:  s.handleBackup,
		subj.restore: s.handleRestore,
		subj.clear:   s.handleClear,
		subj.sync:    s.handleSync,
	}
	for subj, h := range handlers {
		sub, err := s.nc.Subscribe(subj, h)
		if err != nil {
			s.unsubscribeLocked()
			return fmt.Errorf("subscribe %s: %w", subj, err)
		}
		s.subs = append(s.subs, sub)
	}
	if err := s.nc.Flush(); err != nil {
		s.unsubscribeLocked()
		return fmt.Errorf("flush subscriptions: %w", err)
	}
	s.logger.Info("backup service started", zap.String("subject", s.subject))
	return nil
}

// Close unsubscribes and closes the database.
func (s *Service) Close() error {
	s.mu.Lock()
	s.unsubscribeLocked()
	s.mu.Unlock()
	return s.store.close()
}

func (s *Service) unsubscribeLocked() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *Service) handleBackup(msg *nats.Msg) {
	var m BackupMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		s.logger.Warn("discarding malformed backup message", zap.Error(err))
		return
	}
	id, err := backupID(m.DeviceTag)
	if err != nil {
		s.logger.Warn("discarding backup message without device tag", zap.String("message_id", m.ID))
		return
	}
	now := s.now()
	if err := s.store.put(context.Background(), id, m.Credentials, now, now.Add(s.ttl)); err != nil {
		s.logger.Error("credential backup failed", zap.Error(err))
		return
	}
	s.logger.Info("credentials backed up",
		zap.String("message_id", m.ID),
		zap.String("device_tag", m.DeviceTag),
		zap.Int("count", len(m.Credentials)))
}

func (s *Service) handleRestore(msg *nats.Msg) {
	var req RestoreRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.respond(msg, RestoreReply{Error: "Invalid restore request"})
			return
		}
	}
	id, err := backupID(req.DeviceTag)
	if err != nil {
		s.respond(msg, RestoreReply{Error: errNoDevice})
		return
	}

	reply := RestoreReply{Success: true, DeviceTag: req.DeviceTag}
	creds, err := s.store.get(context.Background(), id, s.now())
	switch {
	case errors.Is(err, ErrNoBackup):
		reply = RestoreReply{Error: errNoBackup}
	case err != nil:
		s.logger.Error("credential restore failed", zap.Error(err))
		reply = RestoreReply{Error: err.Error()}
	default:
		reply.Credentials = creds
	}
	s.respond(msg, reply)
}

func (s *Service) handleClear(msg *nats.Msg) {
	var req ClearRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respond(msg, ClearReply{Error: "Invalid clear request"})
		return
	}
	id, err := backupID(req.DeviceTag)
	if err != nil {
		s.respond(msg, ClearReply{Error: errNoDevice})
		return
	}
	if err := s.store.delete(context.Background(), id); err != nil {
		s.logger.Error("clearing credential backup failed", zap.Error(err))
		s.respond(msg, ClearReply{Error: err.Error()})
		return
	}
	s.logger.Info("credential backup cleared", zap.String("device_tag", req.DeviceTag))
	s.respond(msg, ClearReply{Success: true})
}

func (s *Service) respond(msg *nats.Msg, reply any) {
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("marshal reply", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("reply failed", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

func (s *Service) handleSync(msg *nats.Msg) {
	var m SyncMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		s.logger.Warn("discarding malformed sync message", zap.Error(err))
		return
	}
	s.logger.Info("deferred credential backup requested; network backup not implemented",
		zap.String("tag", m.Tag))
}
