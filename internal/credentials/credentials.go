// Package credentials persists the three API secrets voicetask needs:
// the speech service key, the task database key and the task database ID.
//
// Values are obfuscated with a key derived from the device fingerprint and
// written to every configured tier. The obfuscation is reversible XOR plus
// base64. It keeps secrets out of casual view on disk but is not encryption
// and provides no confidentiality against anyone who can read the store and
// knows the fingerprint inputs.
//
// Each entry expires after a TTL (30 days by default) and is bound to the
// device tag it was written with. Reads skip expired entries and entries
// written under another fingerprint.
package credentials

import (
	"errors"
	"strings"
	"time"
)

// ID names one stored credential.
type ID string

const (
	SpeechAPIKey ID = "speechApiKey"
	TaskDBAPIKey ID = "taskDbApiKey"
	TaskDBID     ID = "taskDbId"
)

// KnownIDs lists every credential ID in storage order.
var KnownIDs = []ID{SpeechAPIKey, TaskDBAPIKey, TaskDBID}

// Known reports whether id is one of KnownIDs.
func Known(id ID) bool {
	for _, k := range KnownIDs {
		if k == id {
			return true
		}
	}
	return false
}

// Set maps credential IDs to plaintext values.
type Set map[ID]string

// Get returns the value for id, or "".
func (s Set) Get(id ID) string {
	return s[id]
}

// Empty reports whether the set holds no non-empty values.
func (s Set) Empty() bool {
	for _, v := range s {
		if v != "" {
			return false
		}
	}
	return true
}

// Merge returns a copy of s with non-empty values from other applied on top.
func (s Set) Merge(other Set) Set {
	out := make(Set, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// DefaultTTL is how long a saved credential stays valid.
const DefaultTTL = 30 * 24 * time.Hour

// entryType marks rows in the primary tier.
const entryType = "api_credential"

// Entry is one stored credential as the tiers see it. Value is obfuscated.
type Entry struct {
	ID        ID
	Value     string
	CreatedAt time.Time
	ExpiresAt time.Time
	DeviceTag string
}

// valid reports whether e may be used at now on the device with tag.
func (e Entry) valid(now time.Time, tag string) bool {
	return now.Before(e.ExpiresAt) && e.DeviceTag == tag
}

// ErrStorage wraps tier failures. Get and Clear never return it.
var ErrStorage = errors.New("credential storage error")

// ErrInvalidSpeechKey is returned by ValidateSpeechKey.
var ErrInvalidSpeechKey = errors.New(`speech API key must start with "sk-"`)

// ValidateSpeechKey checks the speech service key format. Empty is allowed.
func ValidateSpeechKey(v string) error {
	if v != "" && !strings.HasPrefix(v, "sk-") {
		return ErrInvalidSpeechKey
	}
	return nil
}
