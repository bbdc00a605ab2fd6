package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/erpcore/internal/orgcontext"
	"github.com/smallbiznis/erpcore/pkg/log/ctxlogger"
	"github.com/smallbiznis/erpcore/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

const (
	HeaderOrg   = "X-Org-ID"
	HeaderActor = "X-Actor"
)

// RequestLoggerConfig controls request logging behavior.
type RequestLoggerConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// Correlation propagates or mints the correlation id for the request.
func Correlation() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		cid := strings.TrimSpace(c.GetHeader(correlation.HeaderName))
		if cid == "" {
			cid = strings.TrimSpace(c.GetHeader("X-Request-Id"))
		}
		if cid != "" {
			ctx = correlation.ContextWithCorrelationID(ctx, cid)
		} else {
			ctx, cid = correlation.EnsureCorrelationID(ctx)
		}
		c.Header(correlation.HeaderName, cid)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogger logs each request with correlation identifiers and safe fields.
func RequestLogger(base *zap.Logger, cfg RequestLoggerConfig) gin.HandlerFunc {
	base = base.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}

		var errorType string
		if lastErr := c.Errors.Last(); lastErr != nil {
			var errorCode string
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields,
				zap.String("error_type", errorType),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		log := ctxlogger.WithContext(c.Request.Context(), base)
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("http_request", fields...)
		case route == "/metrics" || route == "/health":
			log.Debug("http_request", fields...)
		case errorType == "lock_timeout":
			log.Warn("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}

// TenantContext resolves the tenant from X-Org-ID and the caller from X-Actor.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderOrg))
		if raw == "" {
			AbortWithError(c, newValidationError("org_id", ErrOrgRequired.Error(), fmt.Sprintf("%s header is required", HeaderOrg)))
			return
		}
		tenantID, err := snowflake.ParseString(raw)
		if err != nil || tenantID <= 0 {
			AbortWithError(c, newValidationError("org_id", "invalid_org_id", "invalid org id"))
			return
		}

		ctx := orgcontext.WithOrgID(c.Request.Context(), tenantID.Int64())
		ctx = ctxlogger.ContextWithTenant(ctx, tenantID.Int64())
		if actor := strings.TrimSpace(c.GetHeader(HeaderActor)); actor != "" {
			ctx = orgcontext.WithActor(ctx, actor)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func tenantID(c *gin.Context) int64 {
	id, _ := orgcontext.OrgIDFromContext(c.Request.Context())
	return id
}

func actor(c *gin.Context) string {
	return orgcontext.ActorFromContext(c.Request.Context())
}

// GenerateRateLimit applies the per-tenant bucket of the sequence in the path.
func (s *Server) GenerateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.generateLimiter == nil || !s.generateLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := s.generateLimiter.Allow(ctx, tenantID(c), c.Param("name"))
		if err != nil {
			ctxlogger.WithContext(ctx, s.log).Warn("generate rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			retryAfter := max(int(res.RetryAfter.Seconds()+0.999), 1)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
