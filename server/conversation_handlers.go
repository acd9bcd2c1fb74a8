package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/techagentng/spotchat/models"
	"github.com/techagentng/spotchat/server/response"
)

func (s *Server) handleGetOrCreateDirect() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUserID(c)
		if !ok {
			return
		}
		var req models.CreateDirectRequest
		if problems := decode(c, &req); problems != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, problems)
			return
		}

		conversationID, err := s.ConversationService.GetOrCreateDirect(c.Request.Context(), userID, req.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		response.JSON(c, "conversation ready", http.StatusOK, models.ConversationIDResponse{ConversationID: conversationID}, nil)
	}
}

func (s *Server) handleCreateGroup() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUserID(c)
		if !ok {
			return
		}
		var req models.CreateGroupRequest
		if problems := decode(c, &req); problems != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, problems)
			return
		}

		conversationID, err := s.ConversationService.CreateGroup(c.Request.Context(), userID, &req)
		if err != nil {
			respondError(c, err)
			return
		}
		response.JSON(c, "group created", http.StatusCreated, models.ConversationIDResponse{ConversationID: conversationID}, nil)
	}
}

// handleListConversations returns the partitioned inbox along with the flat list it came from.
func (s *Server) handleListConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUserID(c)
		if !ok {
			return
		}

		inbox, err := s.InboxService.Inbox(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		response.JSON(c, "conversations retrieved", http.StatusOK, inbox, nil)
	}
}

func (s *Server) handleRenameGroup() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUserID(c)
		if !ok {
			return
		}
		conversationID, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req models.RenameGroupRequest
		if problems := decode(c, &req); problems != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, problems)
			return
		}

		if err := s.ParticipantService.RenameGroup(c.Request.Context(), userID, conversationID, req.Name); err != nil {
			respondError(c, err)
			return
		}
		response.JSON(c, "group renamed", http.StatusOK, nil, nil)
	}
}
