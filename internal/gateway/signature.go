// internal/gateway/signature.go
package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the request header carrying the webhook HMAC digest.
const SignatureHeader = "X-Gateway-Signature"

// VerifySignature checks the HMAC-SHA512 hex digest of the exact raw bytes
// received. Verification must run before any decoding: re-serializing the
// body can reorder keys and change the byte sequence.
func (c *Client) VerifySignature(rawBody []byte, signatureHeader string) bool {
	return VerifySignature(rawBody, signatureHeader, c.webhookSecret)
}

// VerifySignature is the standalone form used by tests and by callers that
// hold only the secret.
func VerifySignature(rawBody []byte, signatureHeader string, secret []byte) bool {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" || len(secret) == 0 {
		return false
	}

	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, secret)
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), decoded)
}

// Sign computes the hex HMAC-SHA512 digest for a payload. Exported for test
// fixtures.
func Sign(rawBody, secret []byte) string {
	mac := hmac.New(sha512.New, secret)
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
