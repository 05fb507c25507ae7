package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 8 * time.Hour

func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie("access_token"); err == nil {
		if cookie.Value != "" {
			return cookie.Value
		}
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}

// VerifyAdminCredentials checks the login against the configured admin user
// and its bcrypt hash.
func VerifyAdminCredentials(username, password, wantUser, wantHash string) error {
	if wantUser == "" || wantHash == "" {
		return fmt.Errorf("admin login is not configured")
	}
	if username != wantUser {
		return fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(wantHash), []byte(password)); err != nil {
		return fmt.Errorf("invalid credentials")
	}
	return nil
}

// IssueAdminToken mints a short-lived admin JWT.
func IssueAdminToken(username, secretKey string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  username,
		"role": "admin",
		"iat":  now.Unix(),
		"exp":  now.Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}
