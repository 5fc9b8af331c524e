package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		components[name] = "ok"
		if err := check(ctx); err != nil {
			components[name] = "error"
			status = http.StatusServiceUnavailable
			h.log.Error().Err(err).Str("component", name).Msg("health check failed")
		}
	}

	c.JSON(status, gin.H{
		"success":     status == http.StatusOK,
		"components":  components,
		"environment": h.cfg.Environment,
	})
}
