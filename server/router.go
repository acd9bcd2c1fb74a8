package server

import (
	"fmt"
	"os"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) setupRouter() *gin.Engine {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "test" {
		r := gin.New()
		s.defineRoutes(r)
		return r
	}

	r := gin.New()

	// LoggerWithFormatter middleware will write the logs to gin.DefaultWriter
	// By default gin.DefaultWriter = os.Stdout
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	r.Use(gin.Recovery())
	r.Use(cors.New(s.corsConfig()))
	s.defineRoutes(r)

	return r
}

func (s *Server) corsConfig() cors.Config {
	conf := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if origins := s.Config.Origins(); len(origins) > 0 {
		conf.AllowOrigins = origins
	} else {
		conf.AllowAllOrigins = true
		conf.AllowCredentials = false
	}
	return conf
}

func (s *Server) defineRoutes(router *gin.Engine) {
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: s.Config.MessageRateLimit,
	})
	limitMessages := limitRateForMessages(store)

	router.GET("/health", s.handleHealth())

	apirouter := router.Group("/api/v1")
	authorized := apirouter.Group("/")
	authorized.Use(s.Authorize())

	authorized.GET("/ws", s.handleRealtime())
	authorized.PUT("/me/device-token", s.handleRegisterDeviceToken())

	authorized.GET("/conversations", s.handleListConversations())
	authorized.POST("/conversations/direct", s.handleGetOrCreateDirect())
	authorized.POST("/conversations/group", s.handleCreateGroup())
	authorized.PUT("/conversations/:id/name", s.handleRenameGroup())

	authorized.GET("/conversations/:id/messages", s.handleListMessages())
	authorized.POST("/conversations/:id/messages", limitMessages, s.handleSendMessage())
	authorized.PUT("/conversations/:id/read", s.handleMarkRead())

	authorized.PUT("/conversations/:id/invite", s.handleRespondToInvite())
	authorized.POST("/conversations/:id/participants", s.handleInvite())
	authorized.DELETE("/conversations/:id/participants/:userID", s.handleRemoveParticipant())
	authorized.PUT("/conversations/:id/participants/:userID/role", s.handleChangeRole())
}
