package services

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/google/uuid"
	"github.com/techagentng/spotchat/db"
	errs "github.com/techagentng/spotchat/errors"
	"github.com/techagentng/spotchat/models"
	"github.com/techagentng/spotchat/queue"
	"google.golang.org/api/option"
)

// PushSender delivers one notification to one device.
type PushSender interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

type fcmSender struct {
	client *messaging.Client
}

// NewFCMSender builds a Firebase Cloud Messaging sender from a service account file.
func NewFCMSender(ctx context.Context, credentialsFile string) (PushSender, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %v", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Messaging client: %v", err)
	}
	log.Println("Firebase Messaging client initialized")
	return &fcmSender{client: client}, nil
}

func (f *fcmSender) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	}
	_, err := f.client.Send(ctx, message)
	return err
}

// LogSender only logs. Used when no Firebase credentials are configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, token, title, body string, _ map[string]string) error {
	log.Printf("push (not sent) to %s: %s: %s", token, title, body)
	return nil
}

// NotificationService registers device tokens and pushes new messages to recipients.
type NotificationService interface {
	RegisterDeviceToken(ctx context.Context, userID uuid.UUID, token string) error
	NotifyNewMessage(ctx context.Context, p queue.MessageNotificationPayload) error
}

type notificationService struct {
	conversationRepo db.ConversationRepository
	participantRepo  db.ParticipantRepository
	userRepo         db.UserRepository
	sender           PushSender
}

func NewNotificationService(
	conversationRepo db.ConversationRepository,
	participantRepo db.ParticipantRepository,
	userRepo db.UserRepository,
	sender PushSender,
) NotificationService {
	return &notificationService{
		conversationRepo: conversationRepo,
		participantRepo:  participantRepo,
		userRepo:         userRepo,
		sender:           sender,
	}
}

func (n *notificationService) RegisterDeviceToken(ctx context.Context, userID uuid.UUID, token string) error {
	if token == "" {
		return errs.Invalid("device token is required")
	}
	if err := n.userRepo.UpdateDeviceToken(ctx, userID, token); err != nil {
		return writeError(err, "save device token")
	}
	return nil
}

// NotifyNewMessage pushes to every accepted participant except the sender. A failing device
// is logged and skipped so a retry does not notify the others twice. Only store failures are
// returned.
func (n *notificationService) NotifyNewMessage(ctx context.Context, p queue.MessageNotificationPayload) error {
	convo, err := n.conversationRepo.FindByID(ctx, p.ConversationID)
	if err != nil {
		return storeError(err, "conversation")
	}
	participants, err := n.participantRepo.ListByConversation(ctx, p.ConversationID)
	if err != nil {
		return errs.Storage("could not load participants", err)
	}

	var recipients []uuid.UUID
	for _, participant := range participants {
		if participant.UserID != p.SenderID && participant.Status == models.StatusAccepted {
			recipients = append(recipients, participant.UserID)
		}
	}
	if len(recipients) == 0 {
		return nil
	}

	tokens, err := n.userRepo.FindDeviceTokens(ctx, recipients)
	if err != nil {
		return errs.Storage("could not load device tokens", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	title := "New message"
	profiles, err := n.userRepo.FindProfiles(ctx, []uuid.UUID{p.SenderID})
	if err == nil && profiles[p.SenderID] != nil {
		title = profiles[p.SenderID].Username
	}
	if convo.IsGroup && convo.Name != nil {
		title = fmt.Sprintf("%s in %s", title, *convo.Name)
	}

	data := convertToMapString(map[string]interface{}{
		"type":            queue.TypeMessageNotification,
		"conversation_id": p.ConversationID,
		"message_id":      p.MessageID,
		"is_group":        convo.IsGroup,
	})
	for userID, token := range tokens {
		if err := n.sender.Send(ctx, token, title, p.Preview, data); err != nil {
			log.Printf("push to %s for message %s failed: %v", userID, p.MessageID, err)
		}
	}
	return nil
}

// convertToMapString converts a map[string]interface{} to map[string]string.
func convertToMapString(input map[string]interface{}) map[string]string {
	result := make(map[string]string, len(input))
	for key, value := range input {
		if strValue, ok := value.(string); ok {
			result[key] = strValue
		} else {
			result[key] = fmt.Sprintf("%v", value)
		}
	}
	return result
}
