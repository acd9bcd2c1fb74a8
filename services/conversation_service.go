package services

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/techagentng/spotchat/db"
	errs "github.com/techagentng/spotchat/errors"
	"github.com/techagentng/spotchat/models"
	"github.com/techagentng/spotchat/realtime"
)

// ConversationService resolves direct conversations and creates groups.
type ConversationService interface {
	GetOrCreateDirect(ctx context.Context, userA, userB uuid.UUID) (uuid.UUID, error)
	CreateGroup(ctx context.Context, creatorID uuid.UUID, req *models.CreateGroupRequest) (uuid.UUID, error)
}

type conversationService struct {
	conversationRepo db.ConversationRepository
	publisher        EventPublisher
}

func NewConversationService(conversationRepo db.ConversationRepository, publisher EventPublisher) ConversationService {
	return &conversationService{
		conversationRepo: conversationRepo,
		publisher:        publisher,
	}
}

func (s *conversationService) GetOrCreateDirect(ctx context.Context, userA, userB uuid.UUID) (uuid.UUID, error) {
	if userA == uuid.Nil || userB == uuid.Nil {
		return uuid.Nil, errs.Invalid("both users are required")
	}
	if userA == userB {
		return uuid.Nil, errs.Invalid("cannot start a direct conversation with yourself")
	}

	id, created, err := s.conversationRepo.LookupOrCreateDirect(ctx, userA, userB)
	if err != nil {
		log.Printf("direct conversation procedure failed for %s/%s, falling back: %v", userA, userB, err)
		id, created, err = s.lookupThenCreate(ctx, userA, userB)
		if err != nil {
			return uuid.Nil, err
		}
	}
	if !created {
		return id, nil
	}

	s.publisher.NotifyInbox(ctx, realtime.Event{
		Reason:         realtime.ReasonConversationCreated,
		ConversationID: id,
		ActorID:        userA,
	}, userA, userB)
	return id, nil
}

// lookupThenCreate intersects both users' conversations and keeps the oldest two-person
// direct one. It is not atomic: two callers may both miss and both create. The unique
// direct key on the store turns the loser's insert into ErrDuplicateDirect, which resolves
// to the winner's row. created reports whether this call inserted the conversation.
func (s *conversationService) lookupThenCreate(ctx context.Context, userA, userB uuid.UUID) (uuid.UUID, bool, error) {
	idsA, err := s.conversationRepo.ConversationIDsForUser(ctx, userA)
	if err != nil {
		return uuid.Nil, false, errs.Storage("could not load conversations", err)
	}
	idsB, err := s.conversationRepo.ConversationIDsForUser(ctx, userB)
	if err != nil {
		return uuid.Nil, false, errs.Storage("could not load conversations", err)
	}

	matches, err := s.conversationRepo.FindDirectAmong(ctx, intersect(idsA, idsB))
	if err != nil {
		return uuid.Nil, false, errs.Storage("could not load conversations", err)
	}
	if len(matches) > 0 {
		return matches[0], false, nil
	}

	key := models.DirectKey(userA, userB)
	convo := &models.Conversation{
		IsGroup:   false,
		DirectKey: &key,
		CreatedBy: userA,
	}
	err = s.conversationRepo.CreateDirect(ctx, convo, userA, userB)
	if errors.Is(err, db.ErrDuplicateDirect) {
		existing, findErr := s.conversationRepo.FindByDirectKey(ctx, key)
		if findErr != nil {
			return uuid.Nil, false, storeError(findErr, "conversation")
		}
		return existing.ID, false, nil
	}
	if err != nil {
		return uuid.Nil, false, errs.Storage("could not create conversation", err)
	}
	return convo.ID, true, nil
}

func (s *conversationService) CreateGroup(ctx context.Context, creatorID uuid.UUID, req *models.CreateGroupRequest) (uuid.UUID, error) {
	name, err := groupName(req.Name)
	if err != nil {
		return uuid.Nil, err
	}
	members := distinctIDs(req.MemberIDs, creatorID)
	if len(members) == 0 {
		return uuid.Nil, errs.Invalid("a group needs at least one other member")
	}

	convo := &models.Conversation{
		Name:      &name,
		IsGroup:   true,
		CreatedBy: creatorID,
	}
	if err := s.conversationRepo.CreateGroup(ctx, convo, creatorID, members); err != nil {
		return uuid.Nil, errs.Storage("could not create group", err)
	}

	s.publisher.NotifyInbox(ctx, realtime.Event{
		Reason:         realtime.ReasonConversationCreated,
		ConversationID: convo.ID,
		ActorID:        creatorID,
	}, append([]uuid.UUID{creatorID}, members...)...)
	return convo.ID, nil
}

func intersect(a, b []uuid.UUID) []uuid.UUID {
	inA := make(map[uuid.UUID]bool, len(a))
	for _, id := range a {
		inA[id] = true
	}
	var shared []uuid.UUID
	for _, id := range b {
		if inA[id] {
			shared = append(shared, id)
			delete(inA, id)
		}
	}
	return shared
}
