package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/credentials"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Client implements credentials.BackupChannel over NATS.
type Client struct {
	nc       *nats.Conn
	subjects subjectSet
	logger   *zap.Logger
}

var _ credentials.BackupChannel = (*Client)(nil)

// NewClient returns a client publishing under subject.
func NewClient(nc *nats.Conn, subject string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{nc: nc, subjects: subjects(subject), logger: logger}
}

// Backup publishes creds for deviceTag without waiting for the service.
func (c *Client) Backup(_ context.Context, deviceTag string, creds credentials.Set) error {
	if deviceTag == "" {
		return ErrNoDevice
	}
	data, err := json.Marshal(BackupMessage{
		ID:          uuid.NewString(),
		DeviceTag:   deviceTag,
		Credentials: creds,
		Timestamp:   time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}
	if err := c.nc.Publish(c.subjects.backup, data); err != nil {
		return fmt.Errorf("publish backup: %w", err)
	}
	return nil
}

// Restore asks the service for the copy of deviceTag. A "no backup" reply
// yields an empty set and nil error, and so does a reply for another
// device. The ctx deadline bounds the wait.
func (c *Client) Restore(ctx context.Context, deviceTag string) (credentials.Set, error) {
	if deviceTag == "" {
		return nil, ErrNoDevice
	}
	req, err := json.Marshal(RestoreRequest{DeviceTag: deviceTag})
	if err != nil {
		return nil, fmt.Errorf("marshal restore request: %w", err)
	}
	msg, err := c.nc.RequestWithContext(ctx, c.subjects.restore, req)
	if err != nil {
		return nil, fmt.Errorf("restore request: %w", err)
	}

	var reply RestoreReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode restore reply: %w", err)
	}
	if !reply.Success {
		if reply.Error == errNoBackup {
			return credentials.Set{}, nil
		}
		return nil, fmt.Errorf("restore failed: %s", reply.Error)
	}
	if reply.DeviceTag != deviceTag {
		c.logger.Warn("discarding backup bound to another device")
		return credentials.Set{}, nil
	}
	if reply.Credentials == nil {
		return credentials.Set{}, nil
	}
	return reply.Credentials, nil
}

// Clear asks the service to drop the copy of deviceTag and waits for the
// acknowledgement.
func (c *Client) Clear(ctx context.Context, deviceTag string) error {
	if deviceTag == "" {
		return ErrNoDevice
	}
	req, err := json.Marshal(ClearRequest{DeviceTag: deviceTag})
	if err != nil {
		return fmt.Errorf("marshal clear request: %w", err)
	}
	msg, err := c.nc.RequestWithContext(ctx, c.subjects.clear, req)
	if err != nil {
		return fmt.Errorf("clear request: %w", err)
	}
	var reply ClearReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fmt.Errorf("decode clear reply: %w", err)
	}
	if !reply.Success {
		return fmt.Errorf("clear failed: %s", reply.Error)
	}
	return nil
}

// ScheduleSync publishes a deferred backup request.
func (c *Client) ScheduleSync(_ context.Context) error {
	data, err := json.Marshal(SyncMessage{Tag: SyncTag, RequestedAt: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("marshal sync: %w", err)
	}
	if err := c.nc.Publish(c.subjects.sync, data); err != nil {
		return fmt.Errorf("publish sync: %w", err)
	}
	return nil
}
