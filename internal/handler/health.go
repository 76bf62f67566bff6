package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"hostpanel/internal/apperr"
	"hostpanel/internal/model"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	DB      Pinger
	Version string
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, model.Failure("Database unavailable", apperr.CodeDatabaseUnavailable))
		return
	}
	ok(c, "OK", gin.H{"version": h.Version})
}
