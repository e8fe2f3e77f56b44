package command

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/greenfelt/cardroom/internal/store"
)

// Header names the auth layer forwards the verified identity under
const (
	headerUserID        = "X-User-Id"
	headerUsername      = "X-Username"
	headerEmailVerified = "X-Email-Verified"
)

// Routes mounts the command surface under r
func (s *Service) Routes(r gin.IRouter) {
	rooms := r.Group("/rooms", identityMiddleware())
	rooms.POST("", s.handleCreateRoom)
	rooms.POST("/join", s.handleJoinRoom)
	rooms.POST("/:roomId/leave", s.handleLeaveRoom)
	rooms.POST("/:roomId/close", s.handleCloseRoom)
	rooms.POST("/:roomId/start", s.handleStartGame)
	rooms.POST("/:roomId/play-status", s.handleTogglePlayStatus)
	rooms.POST("/:roomId/kick", s.handleKickUser)
	rooms.POST("/:roomId/transfer", s.handleTransferChips)
	rooms.POST("/:roomId/max-players", s.handleUpdateMaxPlayers)
	rooms.POST("/:roomId/filter", s.handleUpdateRoomFilter)
}

// identityMiddleware reads the authenticated identity forwarded by the
// auth layer. Requests without one are refused before any handler runs.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerUserID)
		username := c.GetHeader(headerUsername)
		if userID == "" || username == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    KindUnauthorized,
				"message": "missing identity",
			})
			return
		}
		c.Set("identity", Identity{
			UserID:        userID,
			Username:      username,
			EmailVerified: c.GetHeader(headerEmailVerified) == "true",
		})
		c.Next()
	}
}

func identityFrom(c *gin.Context) Identity {
	id, _ := c.MustGet("identity").(Identity)
	return id
}

var kindStatus = map[Kind]int{
	KindUnauthorized:  http.StatusUnauthorized,
	KindForbidden:     http.StatusForbidden,
	KindConflict:      http.StatusConflict,
	KindNotFound:      http.StatusNotFound,
	KindInvalidInput:  http.StatusBadRequest,
	KindInvalidAction: http.StatusUnprocessableEntity,
	KindStoreFailure:  http.StatusServiceUnavailable,
	KindInternal:      http.StatusInternalServerError,
}

func writeError(c *gin.Context, err error) {
	kind := KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	var message string
	if cmdErr, ok := err.(*Error); ok {
		message = cmdErr.Message
	} else {
		message = "internal error"
	}
	c.JSON(status, gin.H{"code": kind, "message": message})
}

func (s *Service) handleCreateRoom(c *gin.Context) {
	var cfg store.RoomConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeError(c, errf(KindInvalidInput, "malformed room config"))
		return
	}
	created, err := s.CreateRoom(c.Request.Context(), identityFrom(c), cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "room": created})
}

func (s *Service) handleJoinRoom(c *gin.Context) {
	var req struct {
		JoinCode string `json:"joinCode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errf(KindInvalidInput, "joinCode is required"))
		return
	}
	joined, err := s.JoinRoom(c.Request.Context(), identityFrom(c), req.JoinCode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "room": joined})
}

func (s *Service) handleLeaveRoom(c *gin.Context) {
	if err := s.LeaveRoom(c.Request.Context(), identityFrom(c), c.Param("roomId")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Service) handleCloseRoom(c *gin.Context) {
	if err := s.CloseRoom(c.Request.Context(), identityFrom(c), c.Param("roomId")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Service) handleStartGame(c *gin.Context) {
	if err := s.StartGame(c.Request.Context(), identityFrom(c), c.Param("roomId")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Service) handleTogglePlayStatus(c *gin.Context) {
	var req struct {
		Want *bool `json:"want" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errf(KindInvalidInput, "want is required"))
		return
	}
	if err := s.TogglePlayStatus(c.Request.Context(), identityFrom(c), c.Param("roomId"), *req.Want); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Service) handleKickUser(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errf(KindInvalidInput, "userId is required"))
		return
	}
	if err := s.KickUser(c.Request.Context(), identityFrom(c), c.Param("roomId"), req.UserID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Service) handleTransferChips(c *gin.Context) {
	var req struct {
		To     string `json:"to" binding:"required"`
		Amount int    `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errf(KindInvalidInput, "to and amount are required"))
		return
	}
	if err := s.TransferChips(c.Request.Context(), identityFrom(c), c.Param("roomId"), req.To, req.Amount); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Service) handleUpdateMaxPlayers(c *gin.Context) {
	var req struct {
		MaxPlayers int `json:"maxPlayers" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errf(KindInvalidInput, "maxPlayers is required"))
		return
	}
	if err := s.UpdateMaxPlayers(c.Request.Context(), identityFrom(c), c.Param("roomId"), req.MaxPlayers); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Service) handleUpdateRoomFilter(c *gin.Context) {
	var req struct {
		Filter *bool `json:"filter" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errf(KindInvalidInput, "filter is required"))
		return
	}
	if err := s.UpdateRoomFilter(c.Request.Context(), identityFrom(c), c.Param("roomId"), *req.Filter); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
