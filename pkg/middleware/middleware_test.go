package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/chain-engine/internal/auth"
)

const testSecret = "test-signing-secret"

func issueToken(t *testing.T, account string, scopes ...string) string {
	t.Helper()
	s := auth.NewService(testSecret)
	s.RegisterKey("key", "secret", account, scopes...)
	token, err := s.GenerateToken(auth.Credentials{APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)
	return token.Token
}

func protectedRouter(requiredScope string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/v1/transactions", JWTAuth(testSecret, requiredScope), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"account": auth.Account(c)})
	})
	return r
}

func perform(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	r := protectedRouter(auth.ScopeSubmit)
	token := issueToken(t, "chain-owner", auth.ScopeSubmit)

	w := perform(r, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chain-owner")
}

func TestJWTAuthRejectsMissingHeader(t *testing.T) {
	r := protectedRouter("")

	w := perform(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthRejectsWrongSecret(t *testing.T) {
	r := protectedRouter("")
	s := auth.NewService("other-secret")
	s.RegisterKey("key", "secret", "chain-owner")
	token, err := s.GenerateToken(auth.Credentials{APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)

	w := perform(r, "Bearer "+token.Token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthEnforcesScope(t *testing.T) {
	r := protectedRouter(auth.ScopeSubmit)
	token := issueToken(t, "observer", auth.ScopeQuery)

	w := perform(r, "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
