package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MappingsController serves the match cache.
type MappingsController struct {
	store MappingReader
}

func NewMappingsController(store MappingReader) *MappingsController {
	return &MappingsController{store: store}
}

// ListMappings handles GET /api/mappings
func (mc *MappingsController) ListMappings(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}

	mappings, total, err := mc.store.ListMappings(limit, offset)
	if err != nil {
		respondInternalError(c, err, "list mappings")
		return
	}

	c.JSON(http.StatusOK, newPaginatedResponse(mappings, total, limit, offset))
}

// GetMapping handles GET /api/mappings/:book_id
func (mc *MappingsController) GetMapping(c *gin.Context) {
	mapping, err := mc.store.GetMapping(c.Param("book_id"))
	if err != nil {
		respondInternalError(c, err, "get mapping")
		return
	}
	if mapping == nil {
		respondNotFound(c, "mapping")
		return
	}

	c.JSON(http.StatusOK, mapping)
}
