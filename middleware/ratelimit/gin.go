package ratelimit

import (
	"github.com/gin-gonic/gin"
)

// GinMiddleware é o equivalente de Middleware para rotas gin.
func GinMiddleware(opts MiddlewareOptions) gin.HandlerFunc {
	opts = opts.withDefaults()

	return func(c *gin.Context) {
		res := consumeRequest(c.Request, opts)
		writeRateLimitHeaders(c.Writer.Header(), res, opts)

		if !res.Allowed {
			c.AbortWithStatusJSON(opts.RejectStatus, gin.H{
				"error":     "rate limit exceeded, please try again later",
				"remaining": res.Remaining,
				"reset":     res.Reset,
			})
			return
		}

		c.Next()
	}
}
