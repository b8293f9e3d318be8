// Package middleware содержит HTTP middleware сервиса VNDR Music.
package middleware

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vndr/vndr-music/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

const tokenTTL = 24 * time.Hour

// ErrUnauthenticated возвращается при отсутствующем или некорректном bearer-токене.
var ErrUnauthenticated = errors.New("unauthenticated")

// Claims описывает полезную нагрузку bearer-токена.
// Клейм admin — единственный источник истины о роли администратора.
type Claims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// AuthMiddleware выполняет проверку аутентификации по подписанному bearer-токену.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// IssueToken выпускает подписанный bearer-токен для указанного пользователя.
func (a *AuthMiddleware) IssueToken(uid string, admin bool) (string, error) {
	claims := Claims{
		Admin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secretKey)
}

// ParseIdentity разбирает заголовок Authorization и возвращает идентичность вызывающего.
// Пустой заголовок даёт анонимную идентичность; некорректный токен — ErrUnauthenticated.
func (a *AuthMiddleware) ParseIdentity(authorization string) (model.Identity, error) {
	if authorization == "" {
		return model.Identity{}, nil
	}

	raw, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok {
		return model.Identity{}, ErrUnauthenticated
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secretKey, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return model.Identity{}, ErrUnauthenticated
	}

	return model.Identity{UID: claims.Subject, IsAdmin: claims.Admin}, nil
}

// RequireAuth пропускает только аутентифицированные запросы
// и добавляет идентичность вызывающего в контекст.
func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.ParseIdentity(r.Header.Get("Authorization"))
		if err != nil || identity.IsAnonymous() {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalAuth пропускает анонимные запросы, но отклоняет некорректные токены.
// Используется для коллекций с публичным чтением.
func (a *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.ParseIdentity(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentityFromContext извлекает идентичность вызывающего из контекста запроса.
func GetIdentityFromContext(ctx context.Context) (model.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(model.Identity)
	return identity, ok
}
