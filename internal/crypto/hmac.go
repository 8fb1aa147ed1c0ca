package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// APIKeyHeader carries the API key on every authenticated request.
const APIKeyHeader = "X-MBX-APIKEY"

// HMACAuth holds the credentials for signed exchange endpoints.
type HMACAuth struct {
	Key    string // API key
	Secret string // API secret, used raw as the HMAC key
}

// Sign appends timestamp and recvWindow to params and then the signature
// over the encoded query. The signature is hex(HMAC-SHA256(secret, query)).
//
// The returned string is the full query to send, signature last.
func (h *HMACAuth) Sign(params url.Values, recvWindow time.Duration) string {
	return h.SignAt(params, recvWindow, time.Now().UnixMilli())
}

// SignAt is like Sign but lets the caller supply the millisecond timestamp
// (useful for deterministic testing).
func (h *HMACAuth) SignAt(params url.Values, recvWindow time.Duration, unixMilli int64) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(unixMilli, 10))
	if recvWindow > 0 {
		params.Set("recvWindow", strconv.FormatInt(recvWindow.Milliseconds(), 10))
	}
	query := params.Encode()
	return query + "&signature=" + hmacSHA256Hex([]byte(h.Secret), query)
}

// Headers returns the HTTP headers for an authenticated request.
func (h *HMACAuth) Headers() map[string]string {
	return map[string]string{APIKeyHeader: h.Key}
}

// hmacSHA256Hex computes HMAC-SHA256 of message using key and returns the
// result hex-encoded.
func hmacSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
