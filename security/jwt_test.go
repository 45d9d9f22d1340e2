package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbrgm/mcp-core/mcp"
)

func signHS256(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func bearerContext(token string) mcp.RequestContext {
	return mcp.NewRequestContext("http", "/mcp", "initialize", map[string]string{"Authorization": "Bearer " + token}, nil, nil)
}

func TestJWTStrategyAcceptsValidToken(t *testing.T) {
	secret := []byte("s3cr3t")
	strategy := NewJWTStrategy(secret, 30*time.Second)

	token := signHS256(t, secret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	identity, ok := strategy.Authenticate(bearerContext(token))
	require.True(t, ok)
	assert.Equal(t, "user-1", identity["sub"])
}

func TestJWTStrategyRejectsBadSignature(t *testing.T) {
	strategy := NewJWTStrategy([]byte("right-secret"), 30*time.Second)
	token := signHS256(t, []byte("wrong-secret"), jwt.MapClaims{"sub": "user-1"})

	_, ok := strategy.Authenticate(bearerContext(token))
	assert.False(t, ok)
}

func TestJWTStrategyRejectsExpiredToken(t *testing.T) {
	secret := []byte("s3cr3t")
	strategy := NewJWTStrategy(secret, 0)

	token := signHS256(t, secret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, ok := strategy.Authenticate(bearerContext(token))
	assert.False(t, ok)
}

func TestJWTStrategyHonorsClockSkew(t *testing.T) {
	secret := []byte("s3cr3t")
	strategy := NewJWTStrategy(secret, time.Minute)

	token := signHS256(t, secret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-10 * time.Second).Unix(),
	})

	_, ok := strategy.Authenticate(bearerContext(token))
	assert.True(t, ok, "expiry within the leeway window should still validate")
}

func TestJWTStrategyDefaultsSubjectWhenAbsent(t *testing.T) {
	secret := []byte("s3cr3t")
	strategy := NewJWTStrategy(secret, 30*time.Second)

	token := signHS256(t, secret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})

	identity, ok := strategy.Authenticate(bearerContext(token))
	require.True(t, ok)
	assert.Equal(t, "jwt", identity[subjectKey])
}

func TestJWTStrategyRejectsMissingAuthorizationHeader(t *testing.T) {
	strategy := NewJWTStrategy([]byte("s3cr3t"), 30*time.Second)
	_, ok := strategy.Authenticate(mcp.RequestContext{})
	assert.False(t, ok)
}

func TestJWTStrategyRejectsNonBearerScheme(t *testing.T) {
	strategy := NewJWTStrategy([]byte("s3cr3t"), 30*time.Second)
	rc := mcp.NewRequestContext("http", "/mcp", "initialize", map[string]string{"Authorization": "Basic abc"}, nil, nil)
	_, ok := strategy.Authenticate(rc)
	assert.False(t, ok)
}

func TestJWTStrategyRejectsUnsupportedAlgorithm(t *testing.T) {
	strategy := NewJWTStrategy([]byte("s3cr3t"), 30*time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "x"})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, ok := strategy.Authenticate(bearerContext(signed))
	assert.False(t, ok, "alg=none must never be accepted")
}

func TestJWTStrategyName(t *testing.T) {
	assert.Equal(t, "signed-token", NewJWTStrategy(nil, 0).Name())
}
