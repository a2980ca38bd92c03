// Package signature verifies that webhook bodies were signed by Square.
//
// Square signs the notification URL followed by the raw request body with
// the subscription's signature key. Two headers exist: the current
// HMAC-SHA256 header (base64) and a legacy HMAC-SHA1 header. When both are
// present only the SHA-256 one is checked.
package signature

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // legacy header still sent by older subscriptions
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"net/http"
	"strings"
)

// Header names, lower case as Square documents them.
const (
	HeaderSHA256 = "x-square-hmacsha256-signature"
	HeaderSHA1   = "x-square-signature"
)

// Headers carries the signature header values found on a request.
type Headers struct {
	SHA256 string
	SHA1   string
}

// FromHTTP extracts both signature headers.
func FromHTTP(h http.Header) Headers {
	return Headers{
		SHA256: strings.TrimSpace(h.Get(HeaderSHA256)),
		SHA1:   strings.TrimSpace(h.Get(HeaderSHA1)),
	}
}

// Verify reports whether one of the headers is a valid signature of
// canonicalURL || body under secret. An empty secret disables verification
// and returns true. Malformed input returns false.
func Verify(body []byte, headers Headers, secret, canonicalURL string) bool {
	if secret == "" {
		return true
	}
	message := make([]byte, 0, len(canonicalURL)+len(body))
	message = append(message, canonicalURL...)
	message = append(message, body...)

	if headers.SHA256 != "" {
		mac := compute(sha256.New, secret, message)
		return equalBase64(mac, headers.SHA256)
	}
	if headers.SHA1 != "" {
		mac := compute(sha1.New, secret, message)
		if len(headers.SHA1) == hex.EncodedLen(sha1.Size) {
			return equalHex(mac, headers.SHA1)
		}
		return equalBase64(mac, headers.SHA1)
	}
	return false
}

// Signatures holds header values produced by Sign.
type Signatures struct {
	SHA256 string
	SHA1   string
}

// Sign computes both header values for body. Intended for tests and tooling.
func Sign(body []byte, secret, canonicalURL string) Signatures {
	message := append([]byte(canonicalURL), body...)
	return Signatures{
		SHA256: base64.StdEncoding.EncodeToString(compute(sha256.New, secret, message)),
		SHA1:   hex.EncodeToString(compute(sha1.New, secret, message)),
	}
}

func compute(h func() hash.Hash, secret string, message []byte) []byte {
	mac := hmac.New(h, []byte(secret))
	mac.Write(message)
	return mac.Sum(nil)
}

func equalBase64(expected []byte, encoded string) bool {
	got, err := base64.StdEncoding.Strict().DecodeString(encoded)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

func equalHex(expected []byte, encoded string) bool {
	got, err := hex.DecodeString(strings.ToLower(encoded))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// Verifier binds the configured key and notification URL.
type Verifier struct {
	secret       string
	canonicalURL string
}

// NewVerifier builds a Verifier. canonicalURL may be empty, in which case
// the caller-supplied fallback URL is used per request.
func NewVerifier(secret, canonicalURL string) *Verifier {
	return &Verifier{
		secret:       strings.TrimSpace(secret),
		canonicalURL: strings.TrimSpace(canonicalURL),
	}
}

// Enabled reports whether a signature key is configured.
func (v *Verifier) Enabled() bool {
	return v != nil && v.secret != ""
}

// Verify checks body against headers. fallbackURL is used when no
// canonical URL is configured.
func (v *Verifier) Verify(body []byte, headers Headers, fallbackURL string) bool {
	if !v.Enabled() {
		return true
	}
	url := v.canonicalURL
	if url == "" {
		url = fallbackURL
	}
	return Verify(body, headers, v.secret, url)
}

// RequestURL reconstructs the public URL of r, honouring X-Forwarded-Proto
// and X-Forwarded-Host set by the hosting platform's proxy.
func RequestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		scheme = strings.ToLower(strings.Split(proto, ",")[0])
	}
	host := r.Host
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-Host")); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
