package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aniflux/aniflux/internal/errors"
)

func (h *Handler) handleSearch(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		respondError(c, errors.NewInvalidRequest("query parameter q is required"))
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	list, err := h.catalog.Search(c.Request.Context(), query, page)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, list)
}

func (h *Handler) handleInfo(c *gin.Context) {
	info, err := h.catalog.GetInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, info)
}

func (h *Handler) handleEpisodes(c *gin.Context) {
	episodes, err := h.catalog.GetEpisodes(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, gin.H{
		"totalEpisodes": len(episodes),
		"episodes":      episodes,
	})
}
