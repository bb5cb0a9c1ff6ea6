package ginserver

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"tableside/internal/config"
)

type Server struct {
	engine *gin.Engine
	addr   string
}

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

func NewServer(cfg config.ServerConfig, engine *gin.Engine) *Server {
	return &Server{
		engine: engine,
		addr:   cfg.Address(),
	}
}

func (s *Server) Run() error {
	if s.engine == nil {
		return fmt.Errorf("gin engine is nil")
	}
	return s.engine.Run(s.addr)
}
