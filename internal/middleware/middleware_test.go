package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hostelx-api/internal/models"
	appErrors "github.com/noah-isme/hostelx-api/pkg/errors"
	"github.com/noah-isme/hostelx-api/pkg/ratelimit"
)

type stubValidator map[string]*models.JWTClaims

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := s[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type countingRecorder struct{ routes []string }

func (r *countingRecorder) RecordRateLimited(route string) { r.routes = append(r.routes, route) }

var tokens = stubValidator{
	"student-token":  {UserID: "s1", Role: models.RoleStudent, FullName: "Rina"},
	"security-token": {UserID: "g1", Role: models.RoleSecurity, FullName: "Budi"},
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	chain := append(handlers, func(c *gin.Context) {
		actor := CurrentActor(c)
		c.JSON(http.StatusOK, gin.H{"id": actor.ID, "role": actor.Role})
	})
	r.GET("/ping", chain...)
	return r
}

func call(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestJWTRequiresValidToken(t *testing.T) {
	r := newRouter(JWT(tokens))

	assert.Equal(t, http.StatusUnauthorized, call(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(r, "forged").Code)

	rec := call(r, "student-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"s1"`)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalJWTFallsBackToAnonymous(t *testing.T) {
	r := newRouter(OptionalJWT(tokens))

	rec := call(r, "forged")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":""`)

	rec = call(r, "security-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"SECURITY"`)
}

func TestRequireRoles(t *testing.T) {
	r := newRouter(JWT(tokens), RequireRoles(models.RoleSecurity))

	assert.Equal(t, http.StatusForbidden, call(r, "student-token").Code)
	assert.Equal(t, http.StatusOK, call(r, "security-token").Code)

	staff := newRouter(JWT(tokens), RequireStaff())
	assert.Equal(t, http.StatusForbidden, call(staff, "security-token").Code)
}

func TestRateLimitRejectsAfterBudget(t *testing.T) {
	recorder := &countingRecorder{}
	limiter := ratelimit.NewLocal(time.Minute)
	r := newRouter(OptionalJWT(tokens), RateLimit(limiter, "gate_verify", 2, recorder))

	assert.Equal(t, http.StatusOK, call(r, "security-token").Code)
	assert.Equal(t, http.StatusOK, call(r, "security-token").Code)
	rec := call(r, "security-token")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, []string{"gate_verify"}, recorder.routes)

	// Anonymous callers have their own budget keyed by IP.
	assert.Equal(t, http.StatusOK, call(r, "").Code)
}

func TestResponseMetaStampsProcessingTime(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	var meta map[string]interface{}
	r.GET("/ping", func(c *gin.Context) {
		SetMeta(c, "source", "cache")
		meta = ExtractMeta(c)
		c.Status(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.NotNil(t, meta)
	assert.Equal(t, "cache", meta["source"])
	assert.Contains(t, meta, "processing_time_ms")
}
