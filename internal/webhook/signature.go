package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// signaturePayload is what the provider signs: the timestamp header joined to
// the raw request body with a dot.
func signaturePayload(timestamp string, body []byte) []byte {
	payload := make([]byte, 0, len(timestamp)+1+len(body))
	payload = append(payload, timestamp...)
	payload = append(payload, '.')
	payload = append(payload, body...)
	return payload
}

// computeSignature returns the hex HMAC-SHA256 of the payload under secret.
func computeSignature(secret string, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(signaturePayload(timestamp, body))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature checks the signature header against the expected HMAC using
// a constant-time comparison, and bounds the timestamp to the replay window.
func verifySignature(secret, signature, timestamp string, body []byte, tolerance time.Duration, now time.Time) bool {
	if signature == "" || timestamp == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > tolerance {
		return false
	}

	expected := computeSignature(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
