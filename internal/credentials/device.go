package credentials

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
	"unicode/utf16"
)

// Device holds the fingerprint inputs the obfuscation key is derived from.
type Device struct {
	UserAgent string
	Screen    string // "WxH"
	Timezone  string
}

// HostDevice returns a fingerprint for the current host. Empty override
// fields are filled from the hostname, platform and local timezone.
func HostDevice(userAgent, screen, timezone string) Device {
	if userAgent == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		userAgent = fmt.Sprintf("voicetask (%s; %s/%s)", host, runtime.GOOS, runtime.GOARCH)
	}
	if screen == "" {
		screen = "0x0"
	}
	if timezone == "" {
		timezone = time.Local.String()
	}
	return Device{UserAgent: userAgent, Screen: screen, Timezone: timezone}
}

// Fingerprint is the string the key is hashed from.
func (d Device) Fingerprint() string {
	return d.UserAgent + "-" + d.Screen + "-" + d.Timezone
}

// Key derives the obfuscation key from the fingerprint.
func (d Device) Key() string {
	return hashKey(d.Fingerprint())
}

// hashKey is a 32-bit rolling hash (h*31 + c over UTF-16 code units,
// wrapping) of s, as an absolute value in base 36.
func hashKey(s string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return strconv.FormatInt(abs, 36)
}

// Tag is the short device tag stored alongside each entry.
func (d Device) Tag() string {
	key := d.Key()
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
