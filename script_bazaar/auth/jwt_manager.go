package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"script_ink/script_bazaar/schema"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

const (
	userIdKey = "user_id"

	// JwtCookieName is also the cookie jwtauth.Verifier reads tokens from.
	JwtCookieName = "jwt"

	DefaultSessionDuration = 12 * time.Hour
)

type JwtManager struct {
	auth *jwtauth.JWTAuth
	exp  time.Duration
}

func NewJwtManager(secret []byte, exp time.Duration) *JwtManager {
	if exp <= 0 {
		exp = DefaultSessionDuration
	}
	return &JwtManager{auth: jwtauth.New("HS256", secret, nil), exp: exp}
}

// Verifier looks for a token in the Authorization header and then the jwt cookie.
func (m *JwtManager) Verifier() func(http.Handler) http.Handler {
	return jwtauth.Verifier(m.auth)
}

func (m *JwtManager) Authenticator() func(http.Handler) http.Handler {
	return jwtauth.Authenticator(m.auth)
}

func (m *JwtManager) SessionDuration() time.Duration {
	return m.exp
}

func (m *JwtManager) CreateUserJwt(userId uuid.UUID) (string, error) {
	claims := map[string]interface{}{
		userIdKey: userId.String(),
	}
	jwtauth.SetExpiryIn(claims, m.exp)
	jwtauth.SetIssuedNow(claims)

	_, token, err := m.auth.Encode(claims)
	if err != nil {
		slog.Error("error generating jwt", "error", err)
		return "", fmt.Errorf("error generating access token: %w", err)
	}
	return token, nil
}

func ValueFromContext(r *http.Request, key string) (string, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", fmt.Errorf("error retrieving auth claims: %w", err)
	}

	valueUncasted, ok := claims[key]
	if !ok {
		return "", fmt.Errorf("invalid token: unable to locate key %v in claims", key)
	}

	value, ok := valueUncasted.(string)
	if !ok {
		return "", fmt.Errorf("invalid token: value for key %v has invalid type", key)
	}

	return value, nil
}

func UserFromContext(r *http.Request) (schema.User, error) {
	userUntyped := r.Context().Value(UserRequestContextKey)
	if userUntyped == nil {
		return schema.User{}, fmt.Errorf("user field not found in request context")
	}
	user, ok := userUntyped.(schema.User)
	if !ok {
		return schema.User{}, fmt.Errorf("invalid value for user field")
	}
	return user, nil
}
