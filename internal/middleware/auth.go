package middleware

import (
	"context"
	"net/http"

	"taverna-be/internal/auth"
	"taverna-be/internal/utils"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	AdminUserKey   contextKey = "adminUser"
	TokenClaimsKey contextKey = "jwtClaims"
)

// RequireAdmin guards the back-office routes. Requests without a valid admin
// token are rejected outright; there is no anonymous fallback here.
func RequireAdmin(secretKey string) func(http.Handler) http.Handler {
	key := []byte(secretKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := auth.ExtractAccessToken(r)
			if tokenStr == "" {
				utils.WriteJSONError(w, http.StatusUnauthorized, "missing credentials")
				return
			}

			token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return key, nil
			})
			if err != nil || !token.Valid {
				utils.WriteJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || claims["role"] != "admin" {
				utils.WriteJSONError(w, http.StatusForbidden, "admin access required")
				return
			}

			ctx := context.WithValue(r.Context(), TokenClaimsKey, claims)
			if sub, ok := claims["sub"].(string); ok {
				ctx = context.WithValue(ctx, AdminUserKey, sub)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminUserFromContext returns the authenticated admin username.
func AdminUserFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(AdminUserKey).(string)
	return v, ok
}
