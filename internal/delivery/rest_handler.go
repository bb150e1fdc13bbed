package delivery

import (
	"strconv"
	"strings"

	"github.com/git-krishnabisht/vaatsip-sub000/internal/auth"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/domain"

	"github.com/gofiber/fiber/v2"
)

// tokenFromCtx extracts the handshake credential: token query parameter
// first, then the session cookies, then a bearer header for REST calls.
func tokenFromCtx(c *fiber.Ctx) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	for _, name := range []string{"jwt", "token", "access_token", "authToken"} {
		if token := c.Cookies(name); token != "" {
			return token
		}
	}
	if header := c.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func (s *Server) requireAuth(c *fiber.Ctx) error {
	ident, err := s.verifier.Verify(tokenFromCtx(c))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "authentication rejected",
		})
	}
	c.Locals("identity", ident)
	return c.Next()
}

func (s *Server) handleGetOnlineUsers(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    s.reg.Snapshot(),
	})
}

func (s *Server) handleGetPresence(c *fiber.Ctx) error {
	userID, err := strconv.ParseInt(c.Params("user_id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid user id",
		})
	}

	rec := s.reg.Presence(userID)

	// The registry only knows users seen this process lifetime; fall back
	// to the redis mirror for last-seen times across restarts.
	if rec.Status == domain.StatusOffline && rec.LastSeen.IsZero() && s.redis != nil {
		if mirrored, err := s.redis.Presence(c.Context(), userID); err == nil {
			rec.LastSeen = mirrored.LastSeen
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    rec,
	})
}

func (s *Server) handleGetMessages(c *fiber.Ctx) error {
	ident := c.Locals("identity").(*auth.Identity)

	peerID, err := strconv.ParseInt(c.Params("user_id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid user id",
		})
	}

	messages, err := s.store.MessagesBetween(c.Context(), ident.UserID, peerID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "failed to load messages",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    messages,
	})
}
