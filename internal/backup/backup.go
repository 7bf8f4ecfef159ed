// Package backup is the out-of-process credential backup channel.
//
// A Service holds one copy of the credentials per device tag (the
// "main-backup" record of that device) in its own SQLite database with a
// 30-day expiry. A copy is only returned to the device tag that saved it.
// Clients talk to it over NATS:
//
//	<subject>.backup   publish      BackupMessage
//	<subject>.restore  request      RestoreRequest -> RestoreReply
//	<subject>.clear    request      ClearRequest -> ClearReply
//	<subject>.sync     publish      SyncMessage (deferred network backup)
//
// Deferred network backup is not implemented; the service only logs sync
// requests.
package backup

import (
	"errors"
	"strings"
	"time"

	"github.com/fyrsmithlabs/voicetask/internal/credentials"
)

const (
	mainBackupID = "main-backup"

	// SyncTag names the deferred backup job.
	SyncTag = "credential-backup"

	// DefaultTTL is how long a backup stays restorable.
	DefaultTTL = 30 * 24 * time.Hour

	errNoBackup = "No valid backup found"
	errNoDevice = "Missing device tag"
)

var (
	// ErrNoBackup is returned by Service lookups when no unexpired backup
	// exists for a device.
	ErrNoBackup = errors.New("no valid backup found")

	// ErrNoDevice rejects messages without a device tag.
	ErrNoDevice = errors.New("missing device tag")
)

// BackupMessage carries credentials to the service.
type BackupMessage struct {
	ID          string          `json:"id"`
	DeviceTag   string          `json:"deviceTag"`
	Credentials credentials.Set `json:"credentials"`
	Timestamp   int64           `json:"timestamp"`
}

// RestoreRequest asks for the copy of one device.
type RestoreRequest struct {
	DeviceTag string `json:"deviceTag"`
}

// RestoreReply answers a restore request.
type RestoreReply struct {
	Success     bool            `json:"success"`
	DeviceTag   string          `json:"deviceTag,omitempty"`
	Credentials credentials.Set `json:"credentials,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// ClearRequest removes the copy of one device.
type ClearRequest struct {
	DeviceTag string `json:"deviceTag"`
}

// ClearReply answers a clear request.
type ClearReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SyncMessage requests a deferred network backup.
type SyncMessage struct {
	Tag         string `json:"tag"`
	RequestedAt int64  `json:"requestedAt"`
}

type subjectSet struct {
	backup, restore, clear, sync string
}

func subjects(prefix string) subjectSet {
	return subjectSet{
		backup:  prefix + ".backup",
		restore: prefix + ".restore",
		clear:   prefix + ".clear",
		sync:    prefix + ".sync",
	}
}

// backupID is the record ID holding the copy of deviceTag.
func backupID(deviceTag string) (string, error) {
	tag := strings.TrimSpace(deviceTag)
	if tag == "" {
		return "", ErrNoDevice
	}
	return mainBackupID + ":" + tag, nil
}
