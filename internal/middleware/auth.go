package middleware

import (
	"strconv"
	"strings"

	"atrium/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

var (
	cfg             *config.Config
	blacklistClient *redis.Client
)

// Token issuer and audience checked on every request.
const (
	TokenIssuer   = "atrium-api"
	TokenAudience = "atrium-client"
)

// InitMiddleware wires the shared config into the auth middleware.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// SetBlacklistClient wires the Redis client used for token revocation
// lookups. Without one, logged-out tokens stay valid until they expire.
func SetBlacklistClient(c *redis.Client) {
	blacklistClient = c
}

// AuthRequired enforces a valid bearer token on protected routes. On success
// the authenticated user's ID and role are stored in locals for downstream
// handlers and the permission checker.
func AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Authorization header required",
		})
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid authorization header format",
		})
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(TokenAudience),
	)
	if err != nil || !token.Valid {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token claims",
		})
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token structure - missing subject",
		})
	}

	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid user ID in token",
		})
	}

	if jti, ok := claims["jti"].(string); ok && jti != "" && blacklistClient != nil {
		if revoked, err := blacklistClient.Exists(c.Context(), "blacklist:"+jti).Result(); err == nil && revoked > 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token has been revoked",
			})
		}
	}

	// Tokens minted before roles existed carry no role claim; those sessions
	// get the least privileged role until they log in again.
	role, _ := claims["role"].(string)
	if role == "" {
		role = "employee"
	}

	c.Locals("userID", uint(userID))
	c.Locals("userRole", role)

	return c.Next()
}
