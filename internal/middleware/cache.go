package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore keeps attempt state out of browser and proxy caches. Question and
// summary payloads change with every answer and must always be refetched.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
