package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aniflux/aniflux/internal/errors"
	"github.com/aniflux/aniflux/internal/models"
	"github.com/aniflux/aniflux/internal/resolver"
)

// resolveTimeout bounds one HTTP resolution end to end, including the
// inter-server pauses of a full walk.
const resolveTimeout = 30 * time.Second

// episodeRef extracts and parses the compound episode identifier from the
// query string. Both parameter spellings are accepted.
func episodeRef(c *gin.Context) (models.EpisodeReference, error) {
	id := c.Query("animeEpisodeId")
	if id == "" {
		id = c.Query("episodeId")
	}
	return models.ParseEpisodeID(id)
}

func (h *Handler) handleServers(c *gin.Context) {
	ref, err := episodeRef(c)
	if err != nil {
		respondError(c, err)
		return
	}

	servers := h.discovery.Discover(c.Request.Context(), ref)
	respond(c, gin.H{
		"episodeId": ref.EpisodeID(),
		"servers":   servers,
	})
}

func (h *Handler) handleSources(c *gin.Context) {
	ref, err := episodeRef(c)
	if err != nil {
		respondError(c, err)
		return
	}

	category, err := models.ParseCategory(c.Query("category"))
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), resolveTimeout)
	defer cancel()

	result, err := h.engine.Resolve(ctx, ref, category, resolver.Options{
		PreferredServer: c.Query("server"),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	// With fallback=true the caller wants a hard error instead of the
	// embed viewer when nothing resolved.
	if len(result.Sources) == 0 && c.Query("fallback") == "true" {
		respondError(c, errors.NewNoSourcesFound("no working server for "+ref.EpisodeID()))
		return
	}

	c.JSON(200, gin.H{
		"success": true,
		"data":    result,
		"server":  result.UsedServer,
	})
}

func (h *Handler) handleHistory(c *gin.Context) {
	if h.history == nil {
		respond(c, gin.H{"entries": []any{}})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.history.Recent(limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, gin.H{"entries": entries})
}
