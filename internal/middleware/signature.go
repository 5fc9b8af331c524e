package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fiftybrains/delivery/internal/config"
	"fiftybrains/delivery/internal/security"
)

// NonceStore is implemented by cache.Nonces.
type NonceStore interface {
	Claim(ctx context.Context, callerID, nonce string, ttl time.Duration) (bool, error)
}

// Signature verifies the HMAC request signature on mutating routes. Each
// caller signs with a key derived from the shared signature secret and
// their user id. It must run after Auth. Disabled unless
// security.requiresignature is set.
func Signature(cfg config.SecurityConfig, nonces NonceStore, log zerolog.Logger) gin.HandlerFunc {
	maxSkew := cfg.SignatureMaxSkew
	if maxSkew <= 0 {
		maxSkew = 5 * time.Minute
	}

	return func(c *gin.Context) {
		if !cfg.RequireSignature {
			c.Next()
			return
		}

		date, nonce, signature, err := security.ExtractSignatureHeaders(c.Request)
		if err != nil {
			abort(c, http.StatusUnauthorized, "signature_required", "request signature is required")
			return
		}

		requestTime, err := time.Parse(time.RFC3339, date)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid_date", "request date is malformed")
			return
		}
		if time.Since(requestTime) > maxSkew || time.Until(requestTime) > maxSkew {
			abort(c, http.StatusUnauthorized, "request_expired", "request signature has expired")
			return
		}

		rawBody, err := c.GetRawData()
		if err != nil {
			abort(c, http.StatusBadRequest, "invalid_body", "request body could not be read")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(rawBody))

		caller, ok := CurrentCaller(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized", "sign in to continue")
			return
		}

		key := security.DeriveKey(cfg.SignatureSecret, security.PurposeRequestSignature, caller.UserID)
		if !security.ValidateSignature(key, signature, c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery, rawBody, date, nonce) {
			abort(c, http.StatusUnauthorized, "invalid_signature", "request signature does not match")
			return
		}

		fresh, err := nonces.Claim(c.Request.Context(), caller.UserID, nonce, 2*maxSkew)
		if err != nil {
			log.Error().Err(err).Str("request_id", RequestIDFrom(c)).Msg("nonce check failed")
			abort(c, http.StatusServiceUnavailable, "signature_unavailable", "try again shortly")
			return
		}
		if !fresh {
			abort(c, http.StatusUnauthorized, "replay_detected", "request was already processed")
			return
		}

		c.Next()
	}
}
