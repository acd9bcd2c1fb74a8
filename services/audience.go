package services

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/techagentng/spotchat/db"
	"github.com/techagentng/spotchat/models"
)

// audience returns every participant that still sees the conversation. Failures only cost
// notifications, so they are logged.
func audience(ctx context.Context, participantRepo db.ParticipantRepository, conversationID uuid.UUID) []uuid.UUID {
	participants, err := participantRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		log.Printf("could not resolve audience of %s: %v", conversationID, err)
		return nil
	}
	ids := make([]uuid.UUID, 0, len(participants))
	for _, p := range participants {
		if p.Status != models.StatusRejected {
			ids = append(ids, p.UserID)
		}
	}
	return ids
}
