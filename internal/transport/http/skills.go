package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/skills"
)

// SkillStats exposes the skills indexer statistics.
type SkillStats interface {
	Stats(ctx context.Context) (map[string]any, error)
}

// GET /internal/skills/stats
func skillStatsHandler(src SkillStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		stats, err := src.Stats(c.Request().Context())
		if err != nil {
			if skills.IsNotFound(err) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "skill stats not available"})
			}
			log.Warn().Err(err).Msg("failed to read skill stats")
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read skill stats"})
		}
		return c.JSON(http.StatusOK, stats)
	}
}
