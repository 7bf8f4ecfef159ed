package capture

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

var extensionTypes = map[string]string{
	".webm": "audio/webm",
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".flac": "audio/flac",
}

// DetectMimeType guesses the audio type from the file name, then the
// content.
func DetectMimeType(path string, data []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "audio/") {
		return t
	}
	t := http.DetectContentType(data)
	if t == "audio/wave" {
		return "audio/wav"
	}
	if strings.HasPrefix(t, "audio/") || strings.HasPrefix(t, "video/webm") {
		return strings.Replace(t, "video/", "audio/", 1)
	}
	return "audio/webm"
}

// WAVDuration returns the play time of a WAV payload.
func WAVDuration(data []byte) (time.Duration, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return 0, fmt.Errorf("not a valid WAV file")
	}
	return d.Duration()
}

// CheckLimits rejects audio over the size limit, and WAV audio over the
// duration limit. Other formats are not decoded.
func CheckLimits(data []byte, mimeType string, opts Options) error {
	if opts.MaxBytes > 0 && int64(len(data)) > opts.MaxBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(data), opts.MaxBytes)
	}
	if opts.MaxDuration <= 0 || !isWAV(mimeType) {
		return nil
	}
	dur, err := WAVDuration(data)
	if err != nil {
		return err
	}
	if dur > opts.MaxDuration {
		return fmt.Errorf("%w: %s > %s", ErrTooLong, dur.Round(time.Second), opts.MaxDuration)
	}
	return nil
}

func isWAV(mimeType string) bool {
	base, _, _ := mime.ParseMediaType(mimeType)
	switch base {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return true
	}
	return false
}

// FromFile loads an audio file as a Recording. mimeType may be empty.
func FromFile(path, mimeType string, opts Options) (Recording, error) {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}

	info, err := os.Stat(path)
	if err != nil {
		return Recording{}, fmt.Errorf("stat audio file: %w", err)
	}
	if info.Size() > opts.MaxBytes {
		return Recording{}, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, info.Size(), opts.MaxBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Recording{}, fmt.Errorf("read audio file: %w", err)
	}
	if len(data) == 0 {
		return Recording{}, fmt.Errorf("audio file %s is empty", path)
	}

	if mimeType == "" {
		mimeType = DetectMimeType(path, data)
	}
	if err := CheckLimits(data, mimeType, opts); err != nil {
		return Recording{}, err
	}

	rec := Recording{
		ID:        uuid.NewString(),
		MimeType:  mimeType,
		Audio:     data,
		StartedAt: info.ModTime(),
	}
	if isWAV(mimeType) {
		rec.Duration, _ = WAVDuration(data)
	}
	return rec, nil
}
