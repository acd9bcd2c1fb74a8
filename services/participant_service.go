package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/techagentng/spotchat/db"
	errs "github.com/techagentng/spotchat/errors"
	"github.com/techagentng/spotchat/models"
	"github.com/techagentng/spotchat/realtime"
	"gorm.io/gorm"
)

// ParticipantService manages membership: invites, answers, removal, roles and group names.
// Every mutation checks the caller's own membership before touching the store.
type ParticipantService interface {
	RespondToInvite(ctx context.Context, callerID, conversationID, userID uuid.UUID, decision models.Status) error
	Invite(ctx context.Context, callerID, conversationID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error)
	RemoveParticipant(ctx context.Context, callerID, conversationID, userID uuid.UUID) error
	RenameGroup(ctx context.Context, callerID, conversationID uuid.UUID, name string) error
	ChangeRole(ctx context.Context, callerID, conversationID, userID uuid.UUID, role models.Role) error
}

type participantService struct {
	conversationRepo db.ConversationRepository
	participantRepo  db.ParticipantRepository
	publisher        EventPublisher
}

func NewParticipantService(conversationRepo db.ConversationRepository, participantRepo db.ParticipantRepository, publisher EventPublisher) ParticipantService {
	return &participantService{
		conversationRepo: conversationRepo,
		participantRepo:  participantRepo,
		publisher:        publisher,
	}
}

func (s *participantService) RespondToInvite(ctx context.Context, callerID, conversationID, userID uuid.UUID, decision models.Status) error {
	if callerID != userID {
		return errs.Forbidden("you can only answer your own invites")
	}
	if decision != models.StatusAccepted && decision != models.StatusRejected {
		return errs.Invalid("decision must be accepted or rejected")
	}

	participant, err := s.participantRepo.Find(ctx, conversationID, userID)
	if err != nil {
		return storeError(err, "invite")
	}
	if participant.Status != models.StatusPending {
		return errs.Invalid("invite has already been answered")
	}

	if err := s.participantRepo.UpdateStatus(ctx, conversationID, userID, decision); err != nil {
		return writeError(err, "answer invite")
	}

	s.notify(ctx, conversationID, callerID, realtime.ReasonParticipantUpdated, userID)
	return nil
}

func (s *participantService) Invite(ctx context.Context, callerID, conversationID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	invitees := distinctIDs(userIDs)
	if len(invitees) == 0 {
		return nil, errs.Invalid("at least one user is required")
	}
	convo, err := s.loadGroup(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, callerID, convo.ID); err != nil {
		return nil, err
	}

	added, err := s.participantRepo.AddPending(ctx, convo.ID, invitees)
	if err != nil {
		return nil, errs.Storage("could not invite users", err)
	}
	if len(added) > 0 {
		s.notify(ctx, convo.ID, callerID, realtime.ReasonParticipantInvited, added...)
	}
	if added == nil {
		added = []uuid.UUID{}
	}
	return added, nil
}

// RemoveParticipant hard deletes the membership. Messages the user already sent stay in
// the thread.
func (s *participantService) RemoveParticipant(ctx context.Context, callerID, conversationID, userID uuid.UUID) error {
	convo, err := s.loadGroup(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, callerID, convo.ID); err != nil {
		return err
	}
	if userID == convo.CreatedBy {
		return errs.Forbidden("the group creator cannot be removed")
	}

	// the removed user no longer belongs to the audience, so resolve it first
	members := audience(ctx, s.participantRepo, convo.ID)
	if err := s.participantRepo.Delete(ctx, convo.ID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.NotFound("participant not found")
		}
		return errs.Storage("could not remove participant", err)
	}

	event := realtime.Event{Reason: realtime.ReasonParticipantRemoved, ConversationID: convo.ID, ActorID: callerID}
	s.publisher.NotifyInbox(ctx, event, append(members, userID)...)
	s.publisher.NotifyThread(ctx, event)
	return nil
}

func (s *participantService) RenameGroup(ctx context.Context, callerID, conversationID uuid.UUID, name string) error {
	name, err := groupName(name)
	if err != nil {
		return err
	}
	convo, err := s.loadGroup(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, callerID, convo.ID); err != nil {
		return err
	}

	if err := s.conversationRepo.Rename(ctx, convo.ID, name); err != nil {
		return writeError(err, "rename group")
	}

	s.notify(ctx, convo.ID, callerID, realtime.ReasonConversationRenamed)
	return nil
}

func (s *participantService) ChangeRole(ctx context.Context, callerID, conversationID, userID uuid.UUID, role models.Role) error {
	if !role.Valid() {
		return errs.Invalid("role must be admin or member")
	}
	convo, err := s.loadGroup(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, callerID, convo.ID); err != nil {
		return err
	}
	if userID == convo.CreatedBy {
		return errs.Forbidden("the group creator's role cannot change")
	}

	target, err := s.participantRepo.Find(ctx, convo.ID, userID)
	if err != nil {
		return storeError(err, "participant")
	}
	if target.Status != models.StatusAccepted {
		return errs.Invalid("only accepted participants can change role")
	}
	if target.Role == role {
		return nil
	}

	if err := s.participantRepo.UpdateRole(ctx, convo.ID, userID, role); err != nil {
		return writeError(err, "change role")
	}

	s.notify(ctx, convo.ID, callerID, realtime.ReasonParticipantUpdated)
	return nil
}

func (s *participantService) loadGroup(ctx context.Context, conversationID uuid.UUID) (*models.Conversation, error) {
	convo, err := s.conversationRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, storeError(err, "conversation")
	}
	if !convo.IsGroup {
		return nil, errs.Invalid("only group conversations can be managed")
	}
	return convo, nil
}

// requireAdmin resolves the caller's own row. No row means no rights.
func (s *participantService) requireAdmin(ctx context.Context, callerID, conversationID uuid.UUID) error {
	caller, err := s.participantRepo.Find(ctx, conversationID, callerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.Forbidden("you are not a participant of this conversation")
	}
	if err != nil {
		return errs.Storage("could not check permissions", err)
	}
	if caller.Role != models.RoleAdmin || caller.Status != models.StatusAccepted {
		return errs.Forbidden("only admins can manage this conversation")
	}
	return nil
}

func (s *participantService) notify(ctx context.Context, conversationID, actorID uuid.UUID, reason string, extra ...uuid.UUID) {
	event := realtime.Event{Reason: reason, ConversationID: conversationID, ActorID: actorID}
	s.publisher.NotifyInbox(ctx, event, append(audience(ctx, s.participantRepo, conversationID), extra...)...)
	s.publisher.NotifyThread(ctx, event)
}
