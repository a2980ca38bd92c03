package signature

import (
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey = "signature-key"
	testURL = "https://sync.example.com/square/webhook"
)

var testBody = []byte(`{"type":"booking.created","data":{"id":"B1"}}`)

func TestVerifySHA256RoundTrip(t *testing.T) {
	sigs := Sign(testBody, testKey, testURL)
	assert.True(t, Verify(testBody, Headers{SHA256: sigs.SHA256}, testKey, testURL))
}

func TestVerifySHA1HexAndBase64(t *testing.T) {
	sigs := Sign(testBody, testKey, testURL)
	require.Len(t, sigs.SHA1, 40)
	assert.True(t, Verify(testBody, Headers{SHA1: sigs.SHA1}, testKey, testURL))

	raw, err := hex.DecodeString(sigs.SHA1)
	require.NoError(t, err)
	assert.True(t, Verify(testBody, Headers{SHA1: base64.StdEncoding.EncodeToString(raw)}, testKey, testURL))
}

func TestVerifyFlipsAnyByte(t *testing.T) {
	sigs := Sign(testBody, testKey, testURL)

	for i := range testBody {
		flipped := append([]byte(nil), testBody...)
		flipped[i] ^= 0x01
		assert.Falsef(t, Verify(flipped, Headers{SHA256: sigs.SHA256}, testKey, testURL), "body byte %d", i)
	}
	for i := range testURL {
		url := []byte(testURL)
		url[i] ^= 0x01
		assert.Falsef(t, Verify(testBody, Headers{SHA256: sigs.SHA256}, testKey, string(url)), "url byte %d", i)
	}
	for i := range sigs.SHA256 {
		sig := []byte(sigs.SHA256)
		sig[i] ^= 0x01
		assert.Falsef(t, Verify(testBody, Headers{SHA256: string(sig)}, testKey, testURL), "signature byte %d", i)
	}
}

func TestVerifyPrefersSHA256(t *testing.T) {
	sigs := Sign(testBody, testKey, testURL)
	// A valid legacy header must not rescue an invalid SHA-256 header.
	assert.False(t, Verify(testBody, Headers{SHA256: "bm9wZQ==", SHA1: sigs.SHA1}, testKey, testURL))
	assert.True(t, Verify(testBody, Headers{SHA256: sigs.SHA256, SHA1: "garbage"}, testKey, testURL))
}

func TestVerifyMalformedInput(t *testing.T) {
	assert.False(t, Verify(testBody, Headers{}, testKey, testURL))
	assert.False(t, Verify(testBody, Headers{SHA256: "%%%not-base64"}, testKey, testURL))
	assert.False(t, Verify(testBody, Headers{SHA1: "zz" + string(make([]byte, 38))}, testKey, testURL))
	assert.False(t, Verify(nil, Headers{SHA256: ""}, testKey, ""))
}

func TestVerifyWithoutSecretPassesOpen(t *testing.T) {
	assert.True(t, Verify(testBody, Headers{}, "", testURL))

	v := NewVerifier("", testURL)
	assert.False(t, v.Enabled())
	assert.True(t, v.Verify(testBody, Headers{SHA256: "whatever"}, ""))
}

func TestVerifierFallbackURL(t *testing.T) {
	v := NewVerifier(testKey, "")
	sigs := Sign(testBody, testKey, testURL)

	assert.True(t, v.Verify(testBody, Headers{SHA256: sigs.SHA256}, testURL))
	assert.False(t, v.Verify(testBody, Headers{SHA256: sigs.SHA256}, "https://other.example.com/square/webhook"))
}

func TestFromHTTPAndRequestURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://internal:8080/square/webhook", nil)
	req.Header.Set("X-Square-HmacSha256-Signature", " abc ")
	req.Header.Set("X-Square-Signature", "def")
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "sync.example.com")

	h := FromHTTP(req.Header)
	assert.Equal(t, "abc", h.SHA256)
	assert.Equal(t, "def", h.SHA1)
	assert.Equal(t, testURL, RequestURL(req))
}
