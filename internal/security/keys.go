package security

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	PurposeRequestSignature = "gig-delivery/request-signature"
	PurposeWebhook          = "gig-delivery/webhook"
)

// DeriveKey expands a configured master secret into a 32 byte subkey bound
// to purpose and, optionally, a subject such as a user id.
func DeriveKey(master string, purpose string, subject string) []byte {
	info := purpose
	if subject != "" {
		info += ":" + subject
	}
	r := hkdf.New(sha256.New, []byte(master), nil, []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails after 255*32 bytes of output
		panic(err)
	}
	return key
}
