package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"fiftybrains/delivery/internal/config"
	"fiftybrains/delivery/internal/models"
	"fiftybrains/delivery/internal/security"
)

const testSecret = "jwt-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryNonces map[string]bool

func (m memoryNonces) Claim(_ context.Context, callerID, nonce string, _ time.Duration) (bool, error) {
	key := callerID + ":" + nonce
	if m[key] {
		return false, nil
	}
	m[key] = true
	return true, nil
}

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := security.GenerateAccessToken(testSecret, userID, role, time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	engine.Use(RequestID(), Recovery(zerolog.Nop()))
	handlers = append(handlers, func(c *gin.Context) {
		caller, _ := CurrentCaller(c)
		c.String(http.StatusOK, caller.UserID)
	})
	engine.POST("/t", handlers...)
	engine.GET("/panic", func(c *gin.Context) { panic("boom") })
	return engine
}

func do(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	engine := newEngine(Auth(testSecret))

	req := httptest.NewRequest(http.MethodPost, "/t", nil)
	rec := do(engine, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":false`)

	req = httptest.NewRequest(http.MethodPost, "/t", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	require.Equal(t, http.StatusUnauthorized, do(engine, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/t", nil)
	req.Header.Set("Authorization", bearer(t, "user-1", "superhero"))
	require.Equal(t, http.StatusForbidden, do(engine, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/t", nil)
	req.Header.Set("Authorization", bearer(t, "user-1", "creator"))
	rec = do(engine, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "user-1", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequireRoles(t *testing.T) {
	engine := newEngine(Auth(testSecret), RequireRoles(models.UserRoleBrand))

	for role, want := range map[string]int{
		"brand":   http.StatusOK,
		"admin":   http.StatusOK,
		"creator": http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPost, "/t", nil)
		req.Header.Set("Authorization", bearer(t, "u", role))
		require.Equal(t, want, do(engine, req).Code, role)
	}
}

func signedRequest(t *testing.T, secret, userID, body, nonce string, at time.Time) *http.Request {
	t.Helper()
	date := at.UTC().Format(time.RFC3339)
	key := security.DeriveKey(secret, security.PurposeRequestSignature, userID)
	sig := security.ComputeSignature(key, http.MethodPost, "/t", "", security.ComputeBodyHash([]byte(body)), date, nonce)

	req := httptest.NewRequest(http.MethodPost, "/t", strings.NewReader(body))
	req.Header.Set("Authorization", bearer(t, userID, "creator"))
	req.Header.Set(security.HeaderDate, date)
	req.Header.Set(security.HeaderNonce, nonce)
	req.Header.Set(security.HeaderSignature, sig)
	return req
}

func TestSignature(t *testing.T) {
	cfg := config.SecurityConfig{SignatureSecret: "sig-secret", RequireSignature: true, SignatureMaxSkew: time.Minute}
	engine := newEngine(Auth(testSecret), Signature(cfg, memoryNonces{}, zerolog.Nop()))
	now := time.Now()

	require.Equal(t, http.StatusOK, do(engine, signedRequest(t, "sig-secret", "user-1", `{"a":1}`, "n1", now)).Code)
	require.Equal(t, http.StatusUnauthorized, do(engine, signedRequest(t, "sig-secret", "user-1", `{"a":1}`, "n1", now)).Code, "replay")
	require.Equal(t, http.StatusUnauthorized, do(engine, signedRequest(t, "wrong", "user-1", `{}`, "n2", now)).Code)
	require.Equal(t, http.StatusUnauthorized, do(engine, signedRequest(t, "sig-secret", "user-1", `{}`, "n3", now.Add(-time.Hour))).Code)

	unsigned := httptest.NewRequest(http.MethodPost, "/t", nil)
	unsigned.Header.Set("Authorization", bearer(t, "user-1", "creator"))
	require.Equal(t, http.StatusUnauthorized, do(engine, unsigned).Code)
}

func TestSignatureDisabled(t *testing.T) {
	engine := newEngine(Auth(testSecret), Signature(config.SecurityConfig{}, nil, zerolog.Nop()))

	req := httptest.NewRequest(http.MethodPost, "/t", nil)
	req.Header.Set("Authorization", bearer(t, "user-1", "brand"))
	require.Equal(t, http.StatusOK, do(engine, req).Code)
}

func TestRecovery(t *testing.T) {
	rec := do(newEngine(), httptest.NewRequest(http.MethodGet, "/panic", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal_server_error")
}

func TestCORS(t *testing.T) {
	engine := gin.New()
	engine.Use(CORS([]string{"https://app.example"}))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := do(engine, req)
	require.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	require.Equal(t, http.StatusForbidden, do(engine, req).Code)
}
