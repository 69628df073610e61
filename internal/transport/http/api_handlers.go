package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vchaly/roomcast/internal/core"
)

// ErrorResponse is the JSON error body for API endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RoomsHandler reports every known room with live occupancy and history
// size. Passphrases are never exposed.
// GET /api/rooms
func RoomsHandler(hub *core.Hub, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		infos, err := hub.Snapshot(c.Request.Context())
		if err != nil {
			logger.Error().Err(err).Msg("room snapshot failed")
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rooms": infos})
	}
}
