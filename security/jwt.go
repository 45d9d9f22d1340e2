package security

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cbrgm/mcp-core/mcp"
)

// allowedAlgorithms whitelists the signing algorithms the JWT strategy will
// accept, guarding against algorithm-confusion attacks, following
// JamesPrial-mcp-oauth-2.1/internal/oauth/internal/token/validator.go.
var allowedAlgorithms = map[string]bool{
	"HS256": true,
	"HS384": true,
	"HS512": true,
	"RS256": true,
	"RS384": true,
	"RS512": true,
	"ES256": true,
	"ES384": true,
	"ES512": true,
}

// JWTStrategy validates a signed bearer token using a static secret (HMAC)
// per spec.md §4.3's "signed token" strategy. Expired or malformed tokens
// are rejected; surviving claims become the identity descriptor.
type JWTStrategy struct {
	Secret    []byte
	ClockSkew time.Duration
}

// NewJWTStrategy builds a JWTStrategy verifying tokens with the given HMAC
// secret, allowing clockSkew of leeway on expiry.
func NewJWTStrategy(secret []byte, clockSkew time.Duration) *JWTStrategy {
	return &JWTStrategy{Secret: secret, ClockSkew: clockSkew}
}

func (j *JWTStrategy) Name() string { return "signed-token" }

func (j *JWTStrategy) Authenticate(rc mcp.RequestContext) (map[string]any, bool) {
	raw, ok := rc.Header("Authorization")
	if !ok {
		return nil, false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(raw, prefix) {
		return nil, false
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(raw, prefix))
	if tokenString == "" {
		return nil, false
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	unverified, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, false
	}
	alg, _ := unverified.Header["alg"].(string)
	if !allowedAlgorithms[alg] {
		return nil, false
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != alg {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return j.Secret, nil
	}, jwt.WithLeeway(j.ClockSkew))
	if err != nil || !token.Valid {
		return nil, false
	}

	identity := make(map[string]any, len(claims)+1)
	for k, v := range claims {
		identity[k] = v
	}
	if _, ok := identity[subjectKey]; !ok {
		identity[subjectKey] = "jwt"
	}
	return identity, true
}
