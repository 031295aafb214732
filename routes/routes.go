package routes

import (
	"net/http"

	"bokquiz/handlers"
	"bokquiz/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func SetupRoutes(
	router *gin.Engine,
	gameHandler *handlers.GameHandler,
	hub *services.Hub,
	gameService *services.GameService,
	log zerolog.Logger,
) {
	api := router.Group("/api/v1")
	{
		games := api.Group("/games")
		{
			games.POST("", gameHandler.CreateGame)
			games.GET("/:code/state", gameHandler.GetState)
			games.POST("/:code/join", gameHandler.Join)
			games.POST("/:code/rename", gameHandler.Rename)
			games.POST("/:code/ready", gameHandler.SetReady)
			games.POST("/:code/host_start", gameHandler.HostStart)
			games.POST("/:code/host_next", gameHandler.HostNext)
			games.POST("/:code/submit", gameHandler.Submit)
			games.GET("/:code/question", gameHandler.GetCurrentQuestion)
			games.GET("/:code/me", gameHandler.GetMe)
			games.GET("/:code/round_result", gameHandler.GetRoundResult)
			games.POST("/:code/host_finish", gameHandler.HostFinish)
			games.GET("/:code/results", gameHandler.GetResults)
		}
	}

	// Event subscription channel. Events are refetch hints, not state.
	router.GET("/ws/:code", func(c *gin.Context) {
		code := c.Param("code")

		// The game must exist before the upgrade; the channel itself is
		// unauthenticated because events carry no secrets.
		if _, err := gameService.GetState(code); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "not_found", "message": "Game not found"}})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Str("code", code).Msg("websocket upgrade failed")
			return
		}

		hub.Subscribe(conn, code)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
