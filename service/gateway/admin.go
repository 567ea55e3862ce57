package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ===== 管理接口 =====

func (s *Server) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.handler.Stats())
}

func (s *Server) HandleRoomMembers(c *gin.Context) {
	members := s.handler.RoomMembers(c.Param("id"))
	if members == nil {
		members = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"exchangeId": c.Param("id"), "members": members})
}

type adminSendReq struct {
	Event string         `json:"event" binding:"required"`
	Data  map[string]any `json:"data"`
}

func (s *Server) HandleSendToUser(c *gin.Context) {
	var req adminSendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	delivered := s.handler.SendToUser(c.Param("id"), req.Event, req.Data)
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}

func (s *Server) HandleSendToRoom(c *gin.Context) {
	var req adminSendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.handler.SendToRoom(c.Param("id"), req.Event, req.Data)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type adminDisconnectReq struct {
	Reason string `json:"reason"`
}

func (s *Server) HandleDisconnectUser(c *gin.Context) {
	var req adminDisconnectReq
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "kicked by admin"
	}
	s.handler.DisconnectUser(c.Param("id"), req.Reason)
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}
