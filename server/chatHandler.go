package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/techagentng/spotchat/models"
	"github.com/techagentng/spotchat/server/response"
)

func (s *Server) handleListMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUserID(c)
		if !ok {
			return
		}
		conversationID, ok := pathID(c, "id")
		if !ok {
			return
		}

		messages, err := s.ThreadService.ListMessages(c.Request.Context(), userID, conversationID)
		if err != nil {
			respondError(c, err)
			return
		}
		response.JSON(c, "messages retrieved", http.StatusOK, messages, nil)
	}
}

func (s *Server) handleSendMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUserID(c)
		if !ok {
			return
		}
		conversationID, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req models.SendMessageRequest
		if problems := decode(c, &req); problems != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, problems)
			return
		}

		message, err := s.ThreadService.SendMessage(c.Request.Context(), userID, conversationID, req.Content)
		if err != nil {
			respondError(c, err)
			return
		}
		response.JSON(c, "message sent", http.StatusCreated, message, nil)
	}
}

func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUserID(c)
		if !ok {
			return
		}
		conversationID, ok := pathID(c, "id")
		if !ok {
			return
		}

		if err := s.ThreadService.MarkRead(c.Request.Context(), userID, conversationID); err != nil {
			respondError(c, err)
			return
		}
		response.JSON(c, "conversation marked as read", http.StatusOK, nil, nil)
	}
}
