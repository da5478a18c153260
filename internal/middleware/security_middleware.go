package middleware

import (
	"github.com/gin-gonic/gin"
)

type header struct {
	name, value string
}

// The API serves JSON and WebSocket upgrades only, so nothing may render,
// frame or load subresources.
var securityHeaders = []header{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()"},
	{"Cross-Origin-Resource-Policy", "same-site"},
}

const hstsValue = "max-age=31536000; includeSubDomains; preload"

// SecurityHeadersMiddleware sets the fixed response headers. HSTS is only
// sent in production, where TLS terminates in front of the server.
func SecurityHeadersMiddleware(isProduction bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range securityHeaders {
			c.Header(h.name, h.value)
		}
		if isProduction {
			c.Header("Strict-Transport-Security", hstsValue)
		}
		c.Next()
	}
}
