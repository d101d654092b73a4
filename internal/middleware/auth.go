package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/aegisgate/aegis/internal/security"
)

type contextKey string

const UserContextKey contextKey = "user"

// Claims carried in the access token. Role and department come from the
// identity provider; the RBAC layer decides what they mean.
type Claims struct {
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	logger *zap.Logger
	rbac   *security.RBACManager
	secret []byte
}

func NewAuthMiddleware(secret string, rbac *security.RBACManager, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		logger: logger.Named("auth"),
		rbac:   rbac,
		secret: []byte(secret),
	}
}

// Authenticate validates the bearer token and attaches the resolved user to
// the request context. A token with an unknown role is rejected outright,
// never downgraded to a default role.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := extractBearer(r)
		if err != nil {
			m.sendError(w, http.StatusUnauthorized, "Missing or malformed authorization header")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			m.logger.Debug("Token validation failed", zap.Error(err))
			m.sendError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		if claims.Subject == "" {
			m.sendError(w, http.StatusUnauthorized, "Token missing subject")
			return
		}

		user, err := m.rbac.CreateUser(claims.Subject, claims.Role, claims.Department)
		if err != nil {
			m.logger.Warn("Rejected token with unknown role",
				zap.String("user_id", claims.Subject),
				zap.String("role", claims.Role))
			m.sendError(w, http.StatusForbidden, "Unknown role")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the authenticated user, or nil outside the
// authenticated chain.
func UserFromContext(ctx context.Context) *security.User {
	user, _ := ctx.Value(UserContextKey).(*security.User)
	return user
}

func extractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("no authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("malformed authorization header")
	}
	return parts[1], nil
}

func (m *AuthMiddleware) sendError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "authentication_error",
		},
	})
}
