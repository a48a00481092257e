package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", RequireAuth(secret), func(c *gin.Context) {
		s, ok := MustSession(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"sub": s.Subject, "wallet": s.Wallet})
	})
	return r
}

func TestIssueAndParseToken(t *testing.T) {
	tok, err := IssueToken(secret, Session{Subject: "alice", Email: "a@example.com", Wallet: "0xabc"}, time.Hour)
	require.NoError(t, err)

	s, err := ParseToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", s.Subject)
	assert.Equal(t, "a@example.com", s.Email)
	assert.Equal(t, "0xabc", s.Wallet)
}

func TestParseTokenRejects(t *testing.T) {
	expired, err := IssueToken(secret, Session{Subject: "alice"}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(secret, expired)
	assert.Error(t, err)

	wrongKey, err := IssueToken([]byte("other"), Session{Subject: "alice"}, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(secret, wrongKey)
	assert.Error(t, err)

	system, err := IssueToken(secret, System, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(secret, system)
	assert.Error(t, err, "the system subject cannot be claimed by a token")

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	tok, err := hs512.SignedString(secret)
	require.NoError(t, err)
	_, err = ParseToken(secret, tok)
	assert.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	r := newRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	tok, err := IssueToken(secret, Session{Subject: "bob", Wallet: "0x1"}, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sub":"bob","wallet":"0x1"}`, w.Body.String())
}
