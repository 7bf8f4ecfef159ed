package credentials

import (
	"encoding/base64"
	"errors"
	"fmt"
)

var errEmptyKey = errors.New("empty obfuscation key")

// Obfuscate XORs each byte of value with key (cycled) and base64-encodes
// the result. This is obfuscation, not encryption.
func Obfuscate(value, key string) (string, error) {
	if key == "" {
		return "", errEmptyKey
	}
	return base64.StdEncoding.EncodeToString(xor([]byte(value), key)), nil
}

// Reveal reverses Obfuscate.
func Reveal(encoded, key string) (string, error) {
	if key == "" {
		return "", errEmptyKey
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding obfuscated value: %w", err)
	}
	return string(xor(raw, key)), nil
}

func xor(data []byte, key string) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}
