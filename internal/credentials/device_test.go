package credentials

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice_Key(t *testing.T) {
	d := Device{UserAgent: "Mozilla/5.0", Screen: "1920x1080", Timezone: "Europe/Amsterdam"}

	key := d.Key()
	require.NotEmpty(t, key)
	assert.Equal(t, key, d.Key(), "key is deterministic")
	assert.Regexp(t, `^[0-9a-z]+$`, key)
	assert.LessOrEqual(t, len(d.Tag()), 8)
	assert.True(t, len(key) >= len(d.Tag()))
	assert.Equal(t, key[:len(d.Tag())], d.Tag())

	other := d
	other.Timezone = "UTC"
	assert.NotEqual(t, key, other.Key())
}

func TestDevice_KeyKnownValues(t *testing.T) {
	// "a" hashes to 97; "ab" to 97*31+98 = 3105.
	assert.Equal(t, "2p", hashKey("a"))
	assert.Equal(t, "2e9", hashKey("ab"))
	assert.Equal(t, "0", hashKey(""))
}

func TestDevice_KeyWrapsLikeInt32(t *testing.T) {
	// Long inputs overflow 32 bits; negative sums are reported by magnitude.
	cases := []struct {
		in   string
		want string
	}{
		{"hello world", "to5x38"},        // 1794106052
		{"abcdefgh", "ktz6h0"},           // 1259673732
		{"voicetask", "gu57bd"},          // -1018090057
		{"\U0001F600-0x0-UTC", "yu0ymj"}, // -2106283339, surrogate pair
		{"Mozilla/5.0 (X11; Linux x86_64)-1920x1080-Europe/Amsterdam", "3mtx29"}, // 219745953
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, hashKey(tc.in), tc.in)
	}

	// Reading a negative sum as unsigned would give a different key.
	neg := int32(-1018090057)
	assert.NotEqual(t, strconv.FormatUint(uint64(uint32(neg)), 36), hashKey("voicetask"))
}

func TestHostDevice_Defaults(t *testing.T) {
	d := HostDevice("", "", "")
	assert.Contains(t, d.UserAgent, "voicetask")
	assert.Equal(t, "0x0", d.Screen)
	assert.NotEmpty(t, d.Timezone)

	d = HostDevice("ua", "800x600", "UTC")
	assert.Equal(t, "ua-800x600-UTC", d.Fingerprint())
}

func TestObfuscate_RoundTrip(t *testing.T) {
	key := Device{UserAgent: "ua", Screen: "1x1", Timezone: "UTC"}.Key()

	inputs := []string{"", "sk-abc123", "secret_ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", "~!@#$%^&*()_+ {}|:<>?", "héllo wörld"}
	for i := 32; i < 127; i++ {
		inputs = append(inputs, string(rune(i)))
	}

	for _, in := range inputs {
		enc, err := Obfuscate(in, key)
		require.NoError(t, err)
		out, err := Reveal(enc, key)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestObfuscate_Errors(t *testing.T) {
	_, err := Obfuscate("x", "")
	assert.Error(t, err)

	_, err = Reveal("not base64!!", "k")
	assert.Error(t, err)

	enc, err := Obfuscate("sk-abc", "key1")
	require.NoError(t, err)
	assert.NotContains(t, enc, "sk-abc")
	out, err := Reveal(enc, "key2")
	require.NoError(t, err)
	assert.NotEqual(t, "sk-abc", out)
}

func TestValidateSpeechKey(t *testing.T) {
	assert.NoError(t, ValidateSpeechKey(""))
	assert.NoError(t, ValidateSpeechKey("sk-123"))
	assert.ErrorIs(t, ValidateSpeechKey("pk-123"), ErrInvalidSpeechKey)
}
