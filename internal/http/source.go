package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/shelfsync/internal/source"
)

// SourceController exposes raw source payloads for troubleshooting matches.
type SourceController struct {
	source ItemFetcher
}

func NewSourceController(src ItemFetcher) *SourceController {
	return &SourceController{source: src}
}

// GetItem handles GET /api/source/items/:id
func (sc *SourceController) GetItem(c *gin.Context) {
	if sc.source == nil {
		respondError(c, http.StatusServiceUnavailable, "source_unavailable", "progress source is not configured")
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondBadRequest(c, "item id is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	raw, err := sc.source.GetItem(ctx, id)
	if errors.Is(err, source.ErrUnavailable) {
		respondError(c, http.StatusBadGateway, "source_unavailable", err.Error())
		return
	}
	if err != nil {
		respondInternalError(c, err, "get source item")
		return
	}
	if raw == nil {
		respondNotFound(c, "item")
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}
