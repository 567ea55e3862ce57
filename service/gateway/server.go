package gateway

import (
	"EPresence/global"
	midsec "EPresence/middleware/security"
	ka "EPresence/service/dispatcher/kafka"
	"EPresence/service/presence"
	"EPresence/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server websocket 网关 + 管理接口
type Server struct {
	cfg      *global.AppConfig
	handler  *presence.Handler
	conns    *ConnTable
	relay    ka.Relay // 可空：没配 kafka 时 message 帧直接拒绝
	identity security.Options
}

func NewServer(cfg *global.AppConfig, handler *presence.Handler, conns *ConnTable, relay ka.Relay) *Server {
	return &Server{
		cfg:      cfg,
		handler:  handler,
		conns:    conns,
		relay:    relay,
		identity: security.DefaultOptions([]byte(cfg.JWTSecret)),
	}
}

func (s *Server) Handler() *presence.Handler { return s.handler }
func (s *Server) Conns() *ConnTable          { return s.conns }

// Engine 组路由
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(s.cfg.WSPath, s.HandleWS)

	admin := r.Group("/admin", midsec.Middleware(midsec.DefaultOptions(s.cfg.AdminToken)))
	{
		admin.GET("/stats", s.HandleStats)
		admin.GET("/exchanges/:id/members", s.HandleRoomMembers)
		admin.POST("/exchanges/:id/send", s.HandleSendToRoom)
		admin.POST("/users/:id/send", s.HandleSendToUser)
		admin.POST("/users/:id/disconnect", s.HandleDisconnectUser)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
