package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/techagentng/spotchat/db"
	errs "github.com/techagentng/spotchat/errors"
	"github.com/techagentng/spotchat/models"
)

// InboxService builds the per-user conversation list.
type InboxService interface {
	ListConversations(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error)
	Inbox(ctx context.Context, userID uuid.UUID) (*models.Inbox, error)
}

type inboxService struct {
	conversationRepo db.ConversationRepository
	participantRepo  db.ParticipantRepository
	messageRepo      db.MessageRepository
	userRepo         db.UserRepository
}

func NewInboxService(
	conversationRepo db.ConversationRepository,
	participantRepo db.ParticipantRepository,
	messageRepo db.MessageRepository,
	userRepo db.UserRepository,
) InboxService {
	return &inboxService{
		conversationRepo: conversationRepo,
		participantRepo:  participantRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
	}
}

// ListConversations returns every conversation the user has not rejected, most recent
// activity first. Profiles and last messages are loaded with one query each.
func (s *inboxService) ListConversations(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error) {
	memberships, err := s.participantRepo.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, errs.Storage("could not load memberships", err)
	}
	if len(memberships) == 0 {
		return []models.ConversationSummary{}, nil
	}

	mine := make(map[uuid.UUID]models.Participant, len(memberships))
	ids := make([]uuid.UUID, 0, len(memberships))
	for _, m := range memberships {
		mine[m.ConversationID] = m
		ids = append(ids, m.ConversationID)
	}

	convos, err := s.conversationRepo.ListWithParticipants(ctx, ids)
	if err != nil {
		return nil, errs.Storage("could not load conversations", err)
	}

	var everyone []uuid.UUID
	for _, c := range convos {
		for _, p := range c.Participants {
			everyone = append(everyone, p.UserID)
		}
	}
	profiles, err := s.userRepo.FindProfiles(ctx, distinctIDs(everyone))
	if err != nil {
		return nil, errs.Storage("could not load profiles", err)
	}

	latest, err := s.messageRepo.LatestByConversation(ctx, ids)
	if err != nil {
		return nil, errs.Storage("could not load last messages", err)
	}

	summaries := make([]models.ConversationSummary, 0, len(convos))
	for _, c := range convos {
		me, ok := mine[c.ID]
		if !ok {
			continue
		}
		participants := make([]models.ParticipantWithProfile, 0, len(c.Participants))
		for _, p := range c.Participants {
			participants = append(participants, models.ParticipantWithProfile{Participant: p, Profile: profiles[p.UserID]})
		}

		summary := models.ConversationSummary{
			Conversation: c,
			Participants: participants,
			UnreadCount:  me.UnreadCount,
			MyRole:       me.Role,
			MyStatus:     me.Status,
		}
		summary.Conversation.Participants = nil
		if last, ok := latest[c.ID]; ok {
			last := last
			summary.LastMessage = &last
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *inboxService) Inbox(ctx context.Context, userID uuid.UUID) (*models.Inbox, error) {
	summaries, err := s.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	inbox := Partition(summaries)
	return &inbox, nil
}

// Partition splits summaries into active chats and open invites, keeping their order.
// Rejected conversations land in neither.
func Partition(summaries []models.ConversationSummary) models.Inbox {
	inbox := models.Inbox{
		Active:        []models.ConversationSummary{},
		Invites:       []models.ConversationSummary{},
		Conversations: summaries,
	}
	if inbox.Conversations == nil {
		inbox.Conversations = []models.ConversationSummary{}
	}
	for _, s := range summaries {
		switch s.MyStatus {
		case models.StatusAccepted:
			inbox.Active = append(inbox.Active, s)
		case models.StatusPending:
			inbox.Invites = append(inbox.Invites, s)
		}
	}
	return inbox
}
