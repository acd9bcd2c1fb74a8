package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	errs "github.com/techagentng/spotchat/errors"
	"github.com/techagentng/spotchat/models"
	"github.com/techagentng/spotchat/server/response"
)

func (s *Server) handleRegisterDeviceToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUserID(c)
		if !ok {
			return
		}
		var req models.DeviceTokenRequest
		if problems := decode(c, &req); problems != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, problems)
			return
		}

		if err := s.NotificationService.RegisterDeviceToken(c.Request.Context(), userID, req.Token); err != nil {
			respondError(c, err)
			return
		}
		response.JSON(c, "device token saved", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.DB != nil && s.DB.DB != nil {
			sqlDB, err := s.DB.DB.DB()
			if err == nil {
				err = sqlDB.PingContext(c.Request.Context())
			}
			if err != nil {
				response.JSON(c, "database unreachable", http.StatusServiceUnavailable, nil, errs.New(err.Error(), http.StatusServiceUnavailable))
				return
			}
		}
		response.JSON(c, "ok", http.StatusOK, nil, nil)
	}
}
