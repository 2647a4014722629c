package middlewares

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "
)

// Claims is our JWT payload: subject=userID plus the staff role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var (
	secretMu  sync.RWMutex
	jwtSecret []byte
	tokenTTL  = 24 * time.Hour
)

// ConfigureJWT installs the signing secret and token lifetime.
func ConfigureJWT(secret string, ttl time.Duration) {
	secretMu.Lock()
	defer secretMu.Unlock()
	jwtSecret = []byte(strings.TrimSpace(secret))
	if ttl > 0 {
		tokenTTL = ttl
	}
}

func signingKey() ([]byte, error) {
	secretMu.RLock()
	defer secretMu.RUnlock()
	if len(jwtSecret) == 0 {
		return nil, errors.New("JWT secret not configured (set JWT_SECRET_KEY or JWT_SECRET)")
	}
	return jwtSecret, nil
}

// IsAuthenticatedHeader validates a Bearer token, enforces HS256, and populates c.Locals("userID","role").
func IsAuthenticatedHeader() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, err := signingKey()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "server auth not configured")
		}

		h := c.Get(authHeader)
		if h == "" || !strings.HasPrefix(strings.ToLower(h), strings.ToLower(bearerPrefix)) {
			return fiber.NewError(fiber.StatusUnauthorized, "missing/invalid Authorization header")
		}
		raw := strings.TrimSpace(h[len(bearerPrefix):])
		if raw == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid bearer token")
		}

		parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		var claims Claims
		token, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
			return key, nil
		})
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}
		if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.Role) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "token missing subject/role")
		}

		c.Locals("userID", claims.Subject)
		c.Locals("role", claims.Role)

		return c.Next()
	}
}

// RequireRole lets the request through only for the listed roles.
// Run after IsAuthenticatedHeader.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(string)
		if !allowed[role] {
			return fiber.NewError(fiber.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}

// GenerateJWT signs a new HS256 token for the given user and role.
func GenerateJWT(userID, role string) (string, error) {
	key, err := signingKey()
	if err != nil {
		return "", err
	}
	secretMu.RLock()
	ttl := tokenTTL
	secretMu.RUnlock()

	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// UserID returns the authenticated user's id, or "".
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals("userID").(string)
	return id
}
