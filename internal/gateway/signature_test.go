// internal/gateway/signature_test.go
package gateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignatureRoundTrip(t *testing.T) {
	secret := []byte("whsec_test")
	body := []byte(`{"token":"evt_1","type":"payment.succeeded","data":{}}`)

	sig := Sign(body, secret)
	assert.True(t, VerifySignature(body, sig, secret))
	assert.True(t, VerifySignature(body, strings.ToUpper(sig), secret), "hex case must not matter")
}

func TestVerifySignatureRejects(t *testing.T) {
	secret := []byte("whsec_test")
	body := []byte(`{"token":"evt_1"}`)
	sig := Sign(body, secret)

	assert.False(t, VerifySignature(body, sig, []byte("other_secret")))
	assert.False(t, VerifySignature([]byte(`{"token":"evt_2"}`), sig, secret), "signature covers exact bytes")
	assert.False(t, VerifySignature(body, "", secret))
	assert.False(t, VerifySignature(body, "zzzz", secret), "non-hex header")
	assert.False(t, VerifySignature(body, sig, nil), "empty secret never verifies")
}

func TestVerifySignatureIsByteExact(t *testing.T) {
	secret := []byte("whsec_test")
	// Same JSON value, different byte sequence.
	a := []byte(`{"a":1,"b":2}`)
	b := []byte(`{"b":2,"a":1}`)

	assert.False(t, VerifySignature(b, Sign(a, secret), secret))
}
