package ingress

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	logx "relaybot/pkg/logx"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
)

// RequestID reuses the caller's X-Request-ID or generates a UUIDv4, and
// echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// AccessLog writes one structured line per request. 5xx and gin errors
// log at error, 4xx at warn, the rest at debug (Telegram posts often).
func AccessLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		fields := []logx.Field{
			logx.String("request_id", requestID(c)),
			logx.String("method", c.Request.Method),
			logx.String("path", path),
			logx.String("remote_ip", c.ClientIP()),
			logx.Int64("bytes_in", c.Request.ContentLength),
			logx.Int("status", status),
			logx.Int("bytes_out", c.Writer.Size()),
			logx.Duration("latency", time.Since(start)),
		}
		switch {
		case len(c.Errors) > 0:
			log.Error("request", append(fields, logx.String("errors", c.Errors.String()))...)
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Debug("request", fields...)
		}
	}
}

// Recovery turns a panic into a JSON 500 carrying the request id.
func Recovery(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rid := requestID(c)
				log.Error("panic recovered",
					logx.Any("panic", rec),
					logx.String("stack", string(debug.Stack())),
					logx.String("request_id", rid),
				)
				if !c.Writer.Written() {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
						"request_id": rid,
						"code":       "internal_error",
						"message":    "internal server error",
					})
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
