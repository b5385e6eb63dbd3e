package middleware

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fio-analyzer/server/pkg/auth"
)

// UserClaims represents JWT claims for an authenticated user
type UserClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator guards routes. Requests carry either htpasswd Basic
// credentials or a Bearer token previously minted from them.
type Authenticator struct {
	users    *auth.Service
	secret   string
	tokenTTL time.Duration
}

// NewAuthenticator creates an Authenticator backed by the user files.
func NewAuthenticator(users *auth.Service, secret string, tokenTTL time.Duration) *Authenticator {
	return &Authenticator{users: users, secret: secret, tokenTTL: tokenTTL}
}

// MintToken issues a signed token carrying the user's role.
func (a *Authenticator) MintToken(username string, role auth.Role) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(a.tokenTTL)
	claims := &UserClaims{
		Username: username,
		Role:     string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    "fio-analyzer",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.secret))
	return signed, expires, err
}

// RequireAuth admits any authenticated user.
func (a *Authenticator) RequireAuth() fiber.Handler {
	return a.require(func(auth.Role) bool { return true })
}

// RequireUploader admits uploaders and admins.
func (a *Authenticator) RequireUploader() fiber.Handler {
	return a.require(auth.Role.CanUpload)
}

// RequireAdmin admits admins only.
func (a *Authenticator) RequireAdmin() fiber.Handler {
	return a.require(func(r auth.Role) bool { return r == auth.RoleAdmin })
}

func (a *Authenticator) require(allowed func(auth.Role) bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		username, role, err := a.authenticate(c)
		if err != nil {
			return err
		}
		if !allowed(role) {
			log.Printf("[Auth] User %q (role %s) denied on %s", username, role, c.Path())
			return fiber.NewError(fiber.StatusForbidden, "Insufficient permissions")
		}
		c.Locals("username", username)
		c.Locals("role", role)
		return c.Next()
	}
}

// Credentials resolves a request to a username and role without gating,
// for endpoints that mint tokens.
func (a *Authenticator) Credentials(c *fiber.Ctx) (string, auth.Role, error) {
	return a.authenticate(c)
}

func (a *Authenticator) authenticate(c *fiber.Ctx) (string, auth.Role, error) {
	header := c.Get("Authorization")

	if username, password, ok := auth.ParseBasicAuth(header); ok {
		role, ok := a.users.Authenticate(username, password)
		if !ok {
			log.Printf("[Auth] Invalid credentials for %q on %s", username, c.Path())
			return "", "", fiber.NewError(fiber.StatusUnauthorized, "Invalid credentials")
		}
		return username, role, nil
	}

	var tokenString string
	if header != "" {
		tokenString = strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			log.Printf("[Auth] Invalid authorization format for %s", c.Path())
			return "", "", fiber.NewError(fiber.StatusUnauthorized, "Invalid authorization format")
		}
	}

	// Fallback: accept _token query param for SSE and WebSocket endpoints
	// (EventSource and browser WebSocket APIs cannot set custom headers)
	if tokenString == "" && c.Query("_token") != "" && tokenFallbackPath(c.Path()) {
		tokenString = c.Query("_token")
	}

	if tokenString == "" {
		log.Printf("[Auth] Missing authorization for %s", c.Path())
		c.Set(fiber.HeaderWWWAuthenticate, `Basic realm="FIO Analyzer"`)
		return "", "", fiber.NewError(fiber.StatusUnauthorized, "Missing authorization")
	}

	claims, err := ValidateJWT(tokenString, a.secret)
	if err != nil {
		log.Printf("[Auth] Token validation failed for %s: %v", c.Path(), err)
		return "", "", fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}
	return claims.Username, auth.Role(claims.Role), nil
}

func tokenFallbackPath(path string) bool {
	return strings.HasSuffix(path, "/stream") || strings.HasPrefix(path, "/ws")
}

// GetUsername extracts the authenticated username from context
func GetUsername(c *fiber.Ctx) string {
	username, ok := c.Locals("username").(string)
	if !ok {
		return ""
	}
	return username
}

// GetRole extracts the authenticated role from context
func GetRole(c *fiber.Ctx) auth.Role {
	role, ok := c.Locals("role").(auth.Role)
	if !ok {
		return ""
	}
	return role
}

// WebSocketUpgrade handles WebSocket upgrade
func WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("Upgrade") != "websocket" {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}
}

// ValidateJWT validates a JWT token string and returns the claims
// Used for WebSocket connections where the token is passed via query param
func ValidateJWT(tokenString, secret string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	claims, ok := token.Claims.(*UserClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
