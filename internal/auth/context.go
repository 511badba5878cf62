// internal/auth/context.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const viewerKey = contextKey("viewer")

var ErrNoViewer = errors.New("viewer not found in context")

// Viewer - текущий пользователь запроса
type Viewer struct {
	ID          string
	Email       string
	IsModerator bool
}

// Сохраняет viewer в контексте
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, viewer)
}

// Достает viewer из контекста
func GetViewerFromContext(ctx context.Context) (Viewer, error) {
	val := ctx.Value(viewerKey)
	viewer, ok := val.(Viewer)
	if !ok || viewer.ID == "" {
		return Viewer{}, ErrNoViewer
	}
	return viewer, nil
}

// IssueToken подписывает JWT для viewer
func IssueToken(secret string, viewer Viewer, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("JWT secret is not set")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":   viewer.ID,
		"email":     viewer.Email,
		"moderator": viewer.IsModerator,
		"exp":       time.Now().Add(ttl).Unix(),
	})

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ParseToken проверяет подпись и срок действия и возвращает viewer
func ParseToken(secret, tokenStr string) (Viewer, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return Viewer{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Viewer{}, errors.New("invalid token claims")
	}

	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		return Viewer{}, errors.New("token has no user_id")
	}
	email, _ := claims["email"].(string)
	moderator, _ := claims["moderator"].(bool)

	return Viewer{ID: id, Email: email, IsModerator: moderator}, nil
}

// Для извлечения viewer из JWT и помещения в context
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := extractTokenFromHeader(r.Header.Get("Authorization"))
			if tokenStr == "" {
				next.ServeHTTP(w, r) // неавторизованный доступ - пропускаем
				return
			}

			if secret == "" {
				http.Error(w, "JWT secret not set", http.StatusInternalServerError)
				return
			}

			viewer, err := ParseToken(secret, tokenStr)
			if err != nil {
				next.ServeHTTP(w, r) // если невалидный токен - пропускаем
				return
			}

			ctx := WithViewer(r.Context(), viewer)
			r = r.WithContext(ctx)

			next.ServeHTTP(w, r)
		})
	}
}

func extractTokenFromHeader(header string) string {
	parts := strings.Split(header, " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}
