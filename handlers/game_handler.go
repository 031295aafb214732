package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"bokquiz/game"
	"bokquiz/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type GameHandler struct {
	gameService *services.GameService
	log         zerolog.Logger
}

func NewGameHandler(gameService *services.GameService, log zerolog.Logger) *GameHandler {
	return &GameHandler{
		gameService: gameService,
		log:         log.With().Str("component", "game_handler").Logger(),
	}
}

type createGameRequest struct {
	HostName string `json:"host_name" binding:"required"`
}

type joinRequest struct {
	Name string `json:"name" binding:"required"`
}

type renameRequest struct {
	PlayerID       uint   `json:"player_id" binding:"required"`
	ReconnectToken string `json:"reconnect_token" binding:"required"`
	Name           string `json:"name" binding:"required"`
}

type readyRequest struct {
	PlayerID       uint   `json:"player_id" binding:"required"`
	ReconnectToken string `json:"reconnect_token" binding:"required"`
	Ready          *bool  `json:"ready" binding:"required"`
}

type submitRequest struct {
	PlayerID       uint   `json:"player_id" binding:"required"`
	ReconnectToken string `json:"reconnect_token" binding:"required"`
	SelectedIndex  *int   `json:"selected_index" binding:"required"`
}

func (h *GameHandler) CreateGame(c *gin.Context) {
	var req createGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": game.CodeBadState, "message": err.Error()}})
		return
	}

	created, err := h.gameService.CreateGame(req.HostName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *GameHandler) GetState(c *gin.Context) {
	state, err := h.gameService.GetState(c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *GameHandler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": game.CodeBadState, "message": err.Error()}})
		return
	}

	joined, err := h.gameService.Join(c.Param("code"), req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, joined)
}

func (h *GameHandler) Rename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": game.CodeBadState, "message": err.Error()}})
		return
	}

	if err := h.gameService.Rename(c.Param("code"), req.PlayerID, req.ReconnectToken, req.Name); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"renamed": true})
}

func (h *GameHandler) SetReady(c *gin.Context) {
	var req readyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": game.CodeBadState, "message": err.Error()}})
		return
	}

	if err := h.gameService.SetReady(c.Param("code"), req.PlayerID, req.ReconnectToken, *req.Ready); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": *req.Ready})
}

func (h *GameHandler) HostStart(c *gin.Context) {
	res, err := h.gameService.HostStart(c.Param("code"), c.GetHeader("X-Host-Token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *GameHandler) HostNext(c *gin.Context) {
	res, err := h.gameService.HostNext(c.Param("code"), c.GetHeader("X-Host-Token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *GameHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": game.CodeBadState, "message": err.Error()}})
		return
	}

	if err := h.gameService.Submit(c.Param("code"), req.PlayerID, req.ReconnectToken, *req.SelectedIndex); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

func (h *GameHandler) GetCurrentQuestion(c *gin.Context) {
	q, err := h.gameService.GetCurrentQuestion(c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *GameHandler) GetMe(c *gin.Context) {
	playerID, err := strconv.ParseUint(c.Query("player_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"code": game.CodeBadState, "message": "player_id required"}})
		return
	}

	me, err := h.gameService.GetMe(c.Param("code"), uint(playerID), c.Query("reconnect_token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, me)
}

func (h *GameHandler) GetRoundResult(c *gin.Context) {
	res, err := h.gameService.GetRoundResult(c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *GameHandler) HostFinish(c *gin.Context) {
	if err := h.gameService.HostFinish(c.Param("code"), c.GetHeader("X-Host-Token")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"finished": true})
}

func (h *GameHandler) GetResults(c *gin.Context) {
	res, err := h.gameService.GetResults(c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// respondError maps the engine's error taxonomy onto HTTP. Anything that is
// not a typed game error is logged with context and surfaced as a generic
// internal failure.
func (h *GameHandler) respondError(c *gin.Context, err error) {
	var gerr *game.Error
	if errors.As(err, &gerr) {
		c.JSON(statusFor(gerr.Code), gin.H{"error": gin.H{"code": gerr.Code, "message": gerr.Message}})
		return
	}

	h.log.Error().Err(err).Str("path", c.FullPath()).Msg("unexpected error")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"code": game.CodeInternal, "message": "Something went wrong"},
	})
}

func statusFor(code string) int {
	switch code {
	case game.CodeAuth:
		return http.StatusForbidden
	case game.CodeNotFound:
		return http.StatusNotFound
	case game.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}
