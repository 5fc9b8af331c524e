package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

const (
	HeaderSignature = "X-Gig-Signature"
	HeaderDate      = "X-Gig-Date"
	HeaderNonce     = "X-Gig-Nonce"
)

var ErrMissingSignature = errors.New("missing signature headers")

func ComputeBodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ComputeSignature signs the canonical request. key is the caller's
// request signing key, see DeriveKey.
func ComputeSignature(key []byte, method string, path string, query string, bodyHash string, date string, nonce string) string {
	data := strings.Join([]string{
		strings.ToUpper(method),
		path,
		query,
		bodyHash,
		date,
		nonce,
	}, "\n")

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func ValidateSignature(key []byte, signature string, method string, path string, query string, body []byte, date string, nonce string) bool {
	expected := ComputeSignature(key, method, path, query, ComputeBodyHash(body), date, nonce)
	return hmac.Equal([]byte(signature), []byte(expected))
}

func ExtractSignatureHeaders(r *http.Request) (date string, nonce string, signature string, err error) {
	date = r.Header.Get(HeaderDate)
	nonce = r.Header.Get(HeaderNonce)
	signature = r.Header.Get(HeaderSignature)

	if date == "" || nonce == "" || signature == "" {
		return "", "", "", ErrMissingSignature
	}
	return date, nonce, signature, nil
}

// SignPayload is used for outgoing webhook bodies.
func SignPayload(key []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
