package server

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/badrx15/creavisionbot/internal/authorization"
	"github.com/badrx15/creavisionbot/internal/observability/logger"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	contextAdminIDKey   = "admin_user_id"
	contextAdminRoleKey = "admin_role"
	adminTokenIssuer    = "creavisionbot"
)

type adminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// IssueAdminToken signs an HS256 bearer token for an admin user id.
func IssueAdminToken(secret string, userID int64, now time.Time, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" || userID <= 0 {
		return "", ErrInvalidRequest
	}
	c := adminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    adminTokenIssuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: "admin",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// AdminRequired accepts bearer tokens whose subject is a configured or promoted admin.
// Admin routes are hidden entirely when no secret is configured.
func (s *Server) AdminRequired() gin.HandlerFunc {
	secret := []byte(strings.TrimSpace(s.cfg.AdminJWTSecret))
	return func(c *gin.Context) {
		if len(secret) == 0 {
			AbortWithError(c, ErrNotFound)
			return
		}

		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		claims := &adminClaims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(adminTokenIssuer),
			jwt.WithTimeFunc(s.now),
		)
		if err != nil || !tok.Valid || claims.Role != "admin" {
			logger.FromContext(c.Request.Context()).Warn("admin token rejected", zap.Error(err))
			AbortWithError(c, ErrUnauthorized)
			return
		}

		adminID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || adminID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		role := authorization.RoleOwner
		if !s.cfg.IsAdmin(adminID) {
			account, err := s.accountSvc.Get(c.Request.Context(), adminID)
			if err != nil || !account.IsAdmin {
				AbortWithError(c, ErrForbidden)
				return
			}
			role = authorization.RoleAdmin
		}

		c.Set(contextAdminIDKey, adminID)
		c.Set(contextAdminRoleKey, role)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), adminID))
		c.Next()
	}
}

// RequireAction runs after AdminRequired and checks the caller's role grants.
func (s *Server) RequireAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := fmt.Sprintf("user:%d", c.GetInt64(contextAdminIDKey))
		if err := s.authzSvc.Authorize(c.Request.Context(), actor, c.GetString(contextAdminRoleKey), object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// MessageRateLimit rejects message bursts per user before any credit is touched.
func (s *Server) MessageRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.messageLimiter.Enabled() {
			c.Next()
			return
		}

		userID, err := userIDParam(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		allowed, retryAfter := s.messageLimiter.AllowUser(ctx, userID)
		if !allowed {
			route := normalizeRateLimitEndpoint(c)
			logger.FromContext(ctx).Warn("message rate limit exceeded",
				zap.Int64("user_id", userID),
				zap.String("endpoint", route),
			)
			s.obsMetrics.RecordRateLimited(ctx, route)
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func userIDParam(c *gin.Context) (int64, error) {
	raw := strings.TrimSpace(c.Param("user_id"))
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return 0, newValidationError("user_id", "invalid_user", "user id must be a positive integer")
	}
	c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), userID))
	return userID, nil
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
