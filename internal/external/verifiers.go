package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ---------------------------------------------------------------------------
// Provider Webhook Verification (HMAC-SHA256)
// ---------------------------------------------------------------------------

// HMACVerifier implements WebhookVerifier for the payment provider's webhook
// signing scheme: the X-Signature header carries the hex-encoded HMAC-SHA256
// of the raw request body under the shared signing secret.
//
// Verification MUST run over the exact raw body bytes as received. Verifying
// a re-serialized JSON form would change byte layout (key order, whitespace)
// and reject legitimate deliveries.
type HMACVerifier struct{}

// NewHMACVerifier creates a new HMACVerifier.
func NewHMACVerifier() *HMACVerifier {
	return &HMACVerifier{}
}

// Verify reports whether header is the valid hex HMAC-SHA256 signature of
// payload under secret.
//
// The comparison decodes the header and compares digest bytes with
// crypto/hmac.Equal, which is constant-time by contract; a short-circuiting
// string equality would leak the correct signature byte-by-byte through
// response timing.
//
// Any malformed input (empty secret, empty or non-hex header) is reported as
// false; the caller treats false identically to "reject".
func (v *HMACVerifier) Verify(payload []byte, header string, secret string) bool {
	if secret == "" {
		return false
	}

	sig := strings.TrimSpace(header)
	if sig == "" {
		return false
	}

	provided, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), provided)
}

// Compile-time assertion that HMACVerifier satisfies WebhookVerifier.
var _ WebhookVerifier = (*HMACVerifier)(nil)
