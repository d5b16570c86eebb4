package jwt_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/infrastructure/jwt"
)

const secret = "test-secret"

func newRouter(s string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(jwt.Middleware(s))
	r.POST("/runs", func(c *gin.Context) {
		claims, ok := jwt.GetClaims(c)
		if ok {
			c.String(http.StatusOK, claims.Sub)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	return r
}

func do(t *testing.T, r *gin.Engine, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, "/runs", http.NoBody)
	require.NoError(t, err)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_ValidToken(t *testing.T) {
	token, err := jwt.Sign(secret, "operator", time.Minute)
	require.NoError(t, err)

	w := do(t, newRouter(secret), "Bearer "+token)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "operator", w.Body.String())
}

func TestMiddleware_Rejects(t *testing.T) {
	wrong, err := jwt.Sign("other-secret", "operator", time.Minute)
	require.NoError(t, err)
	expired, err := jwt.Sign(secret, "operator", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name string
		auth string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"wrong secret", "Bearer " + wrong},
		{"expired", "Bearer " + expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, newRouter(secret), tt.auth)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	w := do(t, newRouter(""), "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anonymous", w.Body.String())
}
