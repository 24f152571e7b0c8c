package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowedHeaders = "Authorization, Content-Type, X-Requested-With, X-Request-ID"
	allowedMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
)

// New returns a CORS middleware that reflects the request origin when it is
// in the allowed list. An empty list allows every origin.
func New(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[normalize(origin)] = struct{}{}
	}
	allowAll := len(allowed) == 0

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Vary", "Origin")

		origin := c.GetHeader("Origin")
		switch {
		case origin != "":
			if _, ok := allowed[normalize(origin)]; allowAll || ok {
				h.Set("Access-Control-Allow-Origin", origin)
			}
		case allowAll:
			h.Set("Access-Control-Allow-Origin", "*")
		}

		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", allowedHeaders)
		h.Set("Access-Control-Allow-Methods", allowedMethods)
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func normalize(origin string) string {
	return strings.TrimRight(origin, "/")
}
