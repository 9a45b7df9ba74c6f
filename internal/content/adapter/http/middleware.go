package http

import (
	"strings"
	"time"

	"keepsake/internal/session"
	"keepsake/internal/shared/contextkeys"
	apperrors "keepsake/internal/shared/errors"
	"keepsake/internal/shared/logger"
	"keepsake/internal/shared/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// AdminMiddleware guards write routes with admin tokens issued by the gate.
type AdminMiddleware struct {
	tokens *session.TokenService
	log    logger.Logger
}

// NewAdminMiddleware creates the middleware. A nil token service rejects every write.
func NewAdminMiddleware(tokens *session.TokenService, log logger.Logger) *AdminMiddleware {
	if log == nil {
		log = logger.Nop()
	}
	return &AdminMiddleware{tokens: tokens, log: log.WithComponent("admin_middleware")}
}

// RequireAdmin rejects requests without a valid admin bearer token and stores the
// unlocked session in the request context otherwise.
func (m *AdminMiddleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m.tokens == nil {
			return writeError(c, apperrors.NewAppError(apperrors.ErrorTypeAuthentication, "writes are disabled on this server", fiber.StatusForbidden))
		}
		token := bearerToken(c)
		if token == "" {
			return writeError(c, apperrors.NewAuthenticationError("admin token required").WithCause(apperrors.ErrUnauthorized))
		}
		if _, err := m.tokens.ValidateAdmin(c.UserContext(), token); err != nil {
			m.log.Debugf("Rejected admin token from %s: %v", c.IP(), err)
			return writeError(c, apperrors.NewAuthenticationError("invalid admin token").WithCause(err))
		}
		c.SetUserContext(session.NewContext(c.UserContext(), session.Init(token)))
		return c.Next()
	}
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// RequestID tags every request with an X-Request-ID stored in fiber locals.
func RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		ContextKey: string(contextkeys.RequestIDKey),
	})
}

// PropagateRequestID copies the request id from fiber locals into the user context so loggers
// built with WithContext pick it up.
func PropagateRequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, ok := c.Locals(string(contextkeys.RequestIDKey)).(string); ok && id != "" {
			c.SetUserContext(utils.WithRequestID(c.UserContext(), id))
		}
		return c.Next()
	}
}

// CORS allows the viewer to be served from another origin.
func CORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		MaxAge:       86400,
	})
}

// GateRateLimiter slows down guessing at the unlock endpoint.
func GateRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.Get(fiber.HeaderXForwardedFor, c.IP())
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{
				Error:   "RATE_LIMITED",
				Message: "Too many attempts. Please try again later.",
			})
		},
	})
}
