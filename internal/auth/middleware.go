package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/clinicguard/internal/models"
	pkghttp "github.com/BradenHooton/clinicguard/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	claimsContextKey contextKey = "claims"
	userContextKey   contextKey = "user"
	tokenContextKey  contextKey = "access_token"
)

// RevocationChecker reports whether a raw token has been blacklisted.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// AccountChecker loads a user and applies the account lifecycle rules.
type AccountChecker interface {
	CheckAccess(ctx context.Context, userID string) (*models.User, error)
}

// Authenticator is the per-request session gate: token verify, blacklist
// lookup, then account lifecycle check.
type Authenticator struct {
	tokens   *TokenManager
	revoked  RevocationChecker
	accounts AccountChecker
	logger   *slog.Logger
}

func NewAuthenticator(tokens *TokenManager, revoked RevocationChecker, accounts AccountChecker, logger *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, revoked: revoked, accounts: accounts, logger: logger}
}

// Middleware rejects requests without a live session. Token problems of any
// kind produce the same 401 as a missing token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := AccessTokenFromRequest(r)
		if raw == "" {
			writeNoSession(w)
			return
		}

		claims, err := a.tokens.Verify(raw, models.TokenTypeAccess)
		if err != nil {
			writeNoSession(w)
			return
		}

		revoked, err := a.revoked.IsRevoked(r.Context(), raw)
		if err != nil {
			a.logger.Error("blacklist lookup failed", slog.Any("error", err))
			pkghttp.WriteServiceUnavailable(w, "Unable to verify session")
			return
		}
		if revoked {
			writeNoSession(w)
			return
		}

		user, err := a.accounts.CheckAccess(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				writeNoSession(w)
				return
			}
			if writeAccountStateError(w, err) {
				return
			}
			a.logger.Error("account check failed", slog.Any("error", err))
			pkghttp.WriteServiceUnavailable(w, "Unable to verify session")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		ctx = context.WithValue(ctx, userContextKey, user)
		ctx = context.WithValue(ctx, tokenContextKey, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows the request only when the current user has one of roles.
// Must run after Authenticator.Middleware.
func RequireRole(roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUser(r.Context())
			if user == nil {
				writeNoSession(w)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			pkghttp.WriteForbidden(w, "Insufficient permissions")
		})
	}
}

// writeAccountStateError writes the 403 body for an account state error and
// reports whether err was one.
func writeAccountStateError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, models.ErrAccountBanned):
		pkghttp.WriteError(w, http.StatusForbidden, "account_banned", "Account is banned")
	case errors.Is(err, models.ErrAccountBlocked):
		pkghttp.WriteError(w, http.StatusForbidden, "account_blocked", "Account is blocked")
	case errors.Is(err, models.ErrAccountDisabled):
		pkghttp.WriteError(w, http.StatusForbidden, "account_disabled", "Account is disabled")
	default:
		return false
	}
	return true
}

func writeNoSession(w http.ResponseWriter) {
	pkghttp.WriteUnauthorized(w, "No valid session")
}

// GetClaims returns the verified access token claims, or nil.
func GetClaims(ctx context.Context) *models.TokenClaims {
	claims, _ := ctx.Value(claimsContextKey).(*models.TokenClaims)
	return claims
}

// GetUser returns the authenticated user, or nil.
func GetUser(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

// GetAccessToken returns the raw access token the request authenticated with.
func GetAccessToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

// WithSession returns a context carrying a session, for handler tests.
func WithSession(ctx context.Context, claims *models.TokenClaims, user *models.User, token string) context.Context {
	ctx = context.WithValue(ctx, claimsContextKey, claims)
	ctx = context.WithValue(ctx, userContextKey, user)
	return context.WithValue(ctx, tokenContextKey, token)
}
