package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/clinicguard/internal/models"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain        string // Empty string = current host only
	Secure        bool   // HTTPS only; production
	AccessMaxAge  int    // seconds
	RefreshMaxAge int    // seconds
}

// NewCookieConfig derives cookie lifetimes from the token expiries.
func NewCookieConfig(domain string, secure bool, accessExpiry, refreshExpiry time.Duration) CookieConfig {
	return CookieConfig{
		Domain:        domain,
		Secure:        secure,
		AccessMaxAge:  int(accessExpiry / time.Second),
		RefreshMaxAge: int(refreshExpiry / time.Second),
	}
}

// SetSessionCookies writes both tokens as HttpOnly, SameSite=Lax cookies.
// Tokens never appear in response bodies.
func SetSessionCookies(w http.ResponseWriter, pair *models.TokenPair, config CookieConfig) {
	setCookie(w, AccessTokenCookie, pair.AccessToken, config.AccessMaxAge, config)
	setCookie(w, RefreshTokenCookie, pair.RefreshToken, config.RefreshMaxAge, config)
}

// ClearSessionCookies expires both session cookies.
func ClearSessionCookies(w http.ResponseWriter, config CookieConfig) {
	setCookie(w, AccessTokenCookie, "", -1, config)
	setCookie(w, RefreshTokenCookie, "", -1, config)
}

func setCookie(w http.ResponseWriter, name, value string, maxAge int, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge > 0 {
		cookie.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	}
	http.SetCookie(w, cookie)
}

// RefreshTokenFromCookie reads the refresh token. Headers are never consulted.
func RefreshTokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(RefreshTokenCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// AccessTokenFromRequest reads the access token cookie, falling back to a
// Bearer Authorization header for non-browser clients.
func AccessTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
