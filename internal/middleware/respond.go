package middleware

import "github.com/gin-gonic/gin"

// abort writes the failure envelope shared with the handlers.
func abort(c *gin.Context, status int, code string, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   code,
		"message": message,
	})
}
