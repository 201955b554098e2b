package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig holds JWT middleware settings
type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
	Issuer     string
	SkipPaths  []string // Paths that don't require authentication
}

// Claims JWT claims
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Denylist holds revoked token ids until they expire (logout support).
type Denylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewDenylist() *Denylist {
	return &Denylist{revoked: make(map[string]time.Time)}
}

// Revoke marks a token id invalid until its expiry.
func (d *Denylist) Revoke(jti string, expires time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revoked[jti] = expires
	// Opportunistic cleanup of expired entries.
	now := time.Now()
	for id, exp := range d.revoked {
		if now.After(exp) {
			delete(d.revoked, id)
		}
	}
}

// Revoked reports whether a token id has been revoked.
func (d *Denylist) Revoked(jti string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.revoked[jti]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(d.revoked, jti)
		return false
	}
	return true
}

// JWTMiddleware validates bearer tokens on every request except the
// configured skip paths.
func JWTMiddleware(config JWTConfig, denylist *Denylist) fiber.Handler {
	if config.Expiration == 0 {
		config.Expiration = 24 * time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "xbacnet"
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, skipPath := range config.SkipPaths {
			if strings.HasPrefix(path, skipPath) {
				return c.Next()
			}
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(config.SecretKey), nil
		})
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token: " + err.Error(),
			})
		}

		claims, ok := token.Claims.(*Claims)
		if !ok || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token claims",
			})
		}

		if denylist != nil && claims.ID != "" && denylist.Revoked(claims.ID) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token has been revoked",
			})
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("username", claims.Username)
		c.Locals("is_admin", claims.IsAdmin)
		c.Locals("token_id", claims.ID)
		var expires time.Time
		if claims.ExpiresAt != nil {
			expires = claims.ExpiresAt.Time
		}
		c.Locals("token_expires", expires)

		return c.Next()
	}
}

// GenerateToken issues a signed token for a user.
func GenerateToken(config JWTConfig, userID int64, username string, isAdmin bool, jti string) (string, error) {
	if config.Expiration == 0 {
		config.Expiration = 24 * time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "xbacnet"
	}

	claims := Claims{
		UserID:   userID,
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    config.Issuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(config.Expiration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.SecretKey))
}
