package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/techagentng/spotchat/db"
	errs "github.com/techagentng/spotchat/errors"
	"github.com/techagentng/spotchat/models"
	"github.com/techagentng/spotchat/queue"
	"github.com/techagentng/spotchat/realtime"
	"gorm.io/gorm"
)

const previewLength = 120

// ThreadService reads and writes the messages of one conversation.
type ThreadService interface {
	ListMessages(ctx context.Context, callerID, conversationID uuid.UUID) ([]models.MessageWithAuthor, error)
	SendMessage(ctx context.Context, callerID, conversationID uuid.UUID, content string) (*models.Message, error)
	MarkRead(ctx context.Context, callerID, conversationID uuid.UUID) error
	CanOpenThread(ctx context.Context, userID, conversationID uuid.UUID) error
}

type threadService struct {
	conversationRepo db.ConversationRepository
	participantRepo  db.ParticipantRepository
	messageRepo      db.MessageRepository
	userRepo         db.UserRepository
	publisher        EventPublisher
	enqueuer         queue.Enqueuer
}

func NewThreadService(
	conversationRepo db.ConversationRepository,
	participantRepo db.ParticipantRepository,
	messageRepo db.MessageRepository,
	userRepo db.UserRepository,
	publisher EventPublisher,
	enqueuer queue.Enqueuer,
) ThreadService {
	return &threadService{
		conversationRepo: conversationRepo,
		participantRepo:  participantRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		publisher:        publisher,
		enqueuer:         enqueuer,
	}
}

// ListMessages returns the thread oldest first with each author's profile attached. All
// authors are resolved with one lookup.
func (t *threadService) ListMessages(ctx context.Context, callerID, conversationID uuid.UUID) ([]models.MessageWithAuthor, error) {
	if _, err := t.conversationRepo.FindByID(ctx, conversationID); err != nil {
		return nil, storeError(err, "conversation")
	}
	if _, err := t.requireMember(ctx, callerID, conversationID, false); err != nil {
		return nil, err
	}

	messages, err := t.messageRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, errs.Storage("could not load messages", err)
	}

	senders := make([]uuid.UUID, 0, len(messages))
	for _, m := range messages {
		senders = append(senders, m.SenderID)
	}
	profiles, err := t.userRepo.FindProfiles(ctx, distinctIDs(senders))
	if err != nil {
		return nil, errs.Storage("could not load authors", err)
	}

	out := make([]models.MessageWithAuthor, 0, len(messages))
	for _, m := range messages {
		out = append(out, models.MessageWithAuthor{Message: m, Author: profiles[m.SenderID]})
	}
	return out, nil
}

// SendMessage stores one message and returns it without author details.
func (t *threadService) SendMessage(ctx context.Context, callerID, conversationID uuid.UUID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	n := utf8.RuneCountInString(content)
	if n == 0 {
		return nil, errs.Invalid("message content is required")
	}
	if n > maxMessageLength {
		return nil, errs.Invalid("message content must be at most 4000 characters")
	}
	if _, err := t.requireMember(ctx, callerID, conversationID, true); err != nil {
		return nil, err
	}

	message := &models.Message{
		ConversationID: conversationID,
		SenderID:       callerID,
		Content:        content,
	}
	if err := t.messageRepo.Create(ctx, message); err != nil {
		return nil, errs.Storage("could not send message", err)
	}

	event := realtime.Event{Reason: realtime.ReasonMessageCreated, ConversationID: conversationID, ActorID: callerID}
	t.publisher.NotifyThread(ctx, event)
	t.publisher.NotifyInbox(ctx, event, audience(ctx, t.participantRepo, conversationID)...)

	err := t.enqueuer.EnqueueMessageNotification(ctx, queue.MessageNotificationPayload{
		ConversationID: conversationID,
		MessageID:      message.ID,
		SenderID:       callerID,
		Preview:        preview(content),
	})
	if err != nil {
		log.Printf("could not schedule push for message %s: %v", message.ID, err)
	}
	return message, nil
}

// MarkRead flags the messages others sent as read and clears the caller's unread count.
func (t *threadService) MarkRead(ctx context.Context, callerID, conversationID uuid.UUID) error {
	if _, err := t.requireMember(ctx, callerID, conversationID, false); err != nil {
		return err
	}
	if err := t.messageRepo.MarkRead(ctx, conversationID, callerID); err != nil {
		return errs.Storage("could not mark conversation read", err)
	}

	event := realtime.Event{Reason: realtime.ReasonConversationRead, ConversationID: conversationID, ActorID: callerID}
	t.publisher.NotifyInbox(ctx, event, callerID)
	t.publisher.NotifyThread(ctx, event)
	return nil
}

func (t *threadService) CanOpenThread(ctx context.Context, userID, conversationID uuid.UUID) error {
	_, err := t.requireMember(ctx, userID, conversationID, false)
	return err
}

// requireMember resolves the caller's row. Rejected invitees have no access. When accepted is
// set, pending invitees are refused as well.
func (t *threadService) requireMember(ctx context.Context, callerID, conversationID uuid.UUID, accepted bool) (*models.Participant, error) {
	participant, err := t.participantRepo.Find(ctx, conversationID, callerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.Forbidden("you are not a participant of this conversation")
	}
	if err != nil {
		return nil, errs.Storage("could not check membership", err)
	}
	switch {
	case participant.Status == models.StatusRejected:
		return nil, errs.Forbidden("you are not a participant of this conversation")
	case accepted && participant.Status != models.StatusAccepted:
		return nil, errs.Forbidden("accept the invite before sending messages")
	}
	return participant, nil
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLength]) + "…"
}
