package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/techagentng/spotchat/models"
	"github.com/techagentng/spotchat/server/response"
)

// handleRespondToInvite answers the caller's own invite.
func (s *Server) handleRespondToInvite() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUserID(c)
		if !ok {
			return
		}
		conversationID, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req models.RespondToInviteRequest
		if problems := decode(c, &req); problems != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, problems)
			return
		}

		err := s.ParticipantService.RespondToInvite(c.Request.Context(), userID, conversationID, userID, req.Decision)
		if err != nil {
			respondError(c, err)
			return
		}
		response.JSON(c, "invite "+string(req.Decision), http.StatusOK, nil, nil)
	}
}

func (s *Server) handleInvite() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUserID(c)
		if !ok {
			return
		}
		conversationID, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req models.InviteRequest
		if problems := decode(c, &req); problems != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, problems)
			return
		}

		added, err := s.ParticipantService.Invite(c.Request.Context(), userID, conversationID, req.UserIDs)
		if err != nil {
			respondError(c, err)
			return
		}
		response.JSON(c, "users invited", http.StatusOK, models.InviteResponse{Added: added}, nil)
	}
}

func (s *Server) handleRemoveParticipant() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUserID(c)
		if !ok {
			return
		}
		conversationID, ok := pathID(c, "id")
		if !ok {
			return
		}
		targetID, ok := pathID(c, "userID")
		if !ok {
			return
		}

		if err := s.ParticipantService.RemoveParticipant(c.Request.Context(), userID, conversationID, targetID); err != nil {
			respondError(c, err)
			return
		}
		response.JSON(c, "participant removed", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleChangeRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := mustUserID(c)
		if !ok {
			return
		}
		conversationID, ok := pathID(c, "id")
		if !ok {
			return
		}
		targetID, ok := pathID(c, "userID")
		if !ok {
			return
		}
		var req models.ChangeRoleRequest
		if problems := decode(c, &req); problems != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, problems)
			return
		}

		if err := s.ParticipantService.ChangeRole(c.Request.Context(), userID, conversationID, targetID, req.Role); err != nil {
			respondError(c, err)
			return
		}
		response.JSON(c, "role updated", http.StatusOK, nil, nil)
	}
}
