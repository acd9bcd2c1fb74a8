package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/techagentng/spotchat/config"
	errs "github.com/techagentng/spotchat/errors"
	"github.com/techagentng/spotchat/models"
	"github.com/techagentng/spotchat/queue"
	"github.com/techagentng/spotchat/realtime"
	"github.com/techagentng/spotchat/services"
	"github.com/techagentng/spotchat/services/jwt"
)

const testSecret = "test-secret"

type stubUsers struct {
	users map[uuid.UUID]*models.User
}

func (s *stubUsers) FindUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (s *stubUsers) FindProfiles(context.Context, []uuid.UUID) (map[uuid.UUID]*models.Profile, error) {
	return map[uuid.UUID]*models.Profile{}, nil
}

func (s *stubUsers) UpdateDeviceToken(context.Context, uuid.UUID, string) error { return nil }

func (s *stubUsers) FindDeviceTokens(context.Context, []uuid.UUID) (map[uuid.UUID]string, error) {
	return map[uuid.UUID]string{}, nil
}

type stubConversations struct {
	id  uuid.UUID
	err error
}

func (s *stubConversations) GetOrCreateDirect(context.Context, uuid.UUID, uuid.UUID) (uuid.UUID, error) {
	return s.id, s.err
}

func (s *stubConversations) CreateGroup(context.Context, uuid.UUID, *models.CreateGroupRequest) (uuid.UUID, error) {
	return s.id, s.err
}

type stubParticipants struct {
	err     error
	decided models.Status
}

func (s *stubParticipants) RespondToInvite(_ context.Context, _, _, _ uuid.UUID, decision models.Status) error {
	s.decided = decision
	return s.err
}

func (s *stubParticipants) Invite(_ context.Context, _, _ uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	return userIDs, s.err
}

func (s *stubParticipants) RemoveParticipant(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) error {
	return s.err
}

func (s *stubParticipants) RenameGroup(context.Context, uuid.UUID, uuid.UUID, string) error {
	return s.err
}

func (s *stubParticipants) ChangeRole(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, models.Role) error {
	return s.err
}

type stubThreads struct {
	err     error
	content string
}

func (s *stubThreads) ListMessages(context.Context, uuid.UUID, uuid.UUID) ([]models.MessageWithAuthor, error) {
	return []models.MessageWithAuthor{}, s.err
}

func (s *stubThreads) SendMessage(_ context.Context, callerID, conversationID uuid.UUID, content string) (*models.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.content = content
	return &models.Message{ID: uuid.New(), ConversationID: conversationID, SenderID: callerID, Content: content}, nil
}

func (s *stubThreads) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return s.err }

func (s *stubThreads) CanOpenThread(context.Context, uuid.UUID, uuid.UUID) error { return s.err }

type stubInbox struct {
	summaries []models.ConversationSummary
}

func (s *stubInbox) ListConversations(context.Context, uuid.UUID) ([]models.ConversationSummary, error) {
	return s.summaries, nil
}

func (s *stubInbox) Inbox(ctx context.Context, userID uuid.UUID) (*models.Inbox, error) {
	inbox := services.Partition(s.summaries)
	return &inbox, nil
}

type stubNotifications struct{}

func (stubNotifications) RegisterDeviceToken(context.Context, uuid.UUID, string) error { return nil }

func (stubNotifications) NotifyNewMessage(context.Context, queue.MessageNotificationPayload) error { return nil }

type testServer struct {
	server        *Server
	router        *gin.Engine
	users         *stubUsers
	conversations *stubConversations
	participants  *stubParticipants
	threads       *stubThreads
	inbox         *stubInbox
	me            uuid.UUID
	token         string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	t.Setenv("GIN_MODE", "test")
	gin.SetMode(gin.TestMode)

	me := uuid.New()
	ts := &testServer{
		users:         &stubUsers{users: map[uuid.UUID]*models.User{me: {ID: me, Username: "ada"}}},
		conversations: &stubConversations{id: uuid.New()},
		participants:  &stubParticipants{},
		threads:       &stubThreads{},
		inbox:         &stubInbox{},
		me:            me,
	}
	s := &Server{
		Config:              &config.Config{JWTSecret: testSecret, MessageRateLimit: 3},
		UserRepository:      ts.users,
		ConversationService: ts.conversations,
		ParticipantService:  ts.participants,
		ThreadService:       ts.threads,
		InboxService:        ts.inbox,
		NotificationService: stubNotifications{},
	}
	ts.server = s
	ts.router = s.setupRouter()
	ts.token = ts.tokenFor(t, me)
	return ts
}

func (ts *testServer) tokenFor(t *testing.T, id uuid.UUID) string {
	t.Helper()
	token, err := jwt.GenerateToken(id, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  json.RawMessage `json:"errors"`
	Status  string          `json:"status"`
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestHealthIsPublic(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthorize(t *testing.T) {
	ts := newTestServer(t)
	blocked := uuid.New()
	ts.users.users[blocked] = &models.User{ID: blocked, Username: "eve", IsBlocked: true}

	cases := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"garbage token", "not-a-token"},
		{"unknown user", ts.tokenFor(t, uuid.New())},
		{"blocked user", ts.tokenFor(t, blocked)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := ts.do(t, http.MethodGet, "/api/v1/conversations", tc.token, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestAuthorizeAcceptsQueryToken(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodGet, "/api/v1/conversations?token="+ts.token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListConversationsReturnsPartition(t *testing.T) {
	ts := newTestServer(t)
	ts.inbox.summaries = []models.ConversationSummary{
		{Conversation: models.Conversation{ID: uuid.New()}, MyStatus: models.StatusAccepted},
		{Conversation: models.Conversation{ID: uuid.New()}, MyStatus: models.StatusPending},
	}

	rec, env := ts.do(t, http.MethodGet, "/api/v1/conversations", ts.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var data struct {
		Active        []json.RawMessage `json:"active"`
		Invites       []json.RawMessage `json:"invites"`
		Conversations []json.RawMessage `json:"conversations"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data.Active) != 1 || len(data.Invites) != 1 || len(data.Conversations) != 2 {
		t.Fatalf("unexpected partition %s", env.Data)
	}
}

func TestCreateDirectValidation(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/conversations/direct", ts.token, map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(string(env.Errors), "user_id is a required field") {
		t.Fatalf("expected a translated message, got %s", env.Errors)
	}

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/conversations/direct", ts.token, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rec.Code)
	}
}

func TestCreateDirectReturnsConversationID(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/conversations/direct", ts.token, map[string]string{"user_id": uuid.NewString()})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var data models.ConversationIDResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.ConversationID != ts.conversations.id {
		t.Fatalf("expected %s, got %s", ts.conversations.id, data.ConversationID)
	}
}

func TestServiceErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{errs.Forbidden("only admins can manage this conversation"), http.StatusForbidden},
		{errs.NotFound("conversation not found"), http.StatusNotFound},
		{errs.Invalid("group name is required"), http.StatusBadRequest},
		{errs.Storage("could not rename group", gorm.ErrInvalidDB), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			ts := newTestServer(t)
			ts.participants.err = tc.err

			path := "/api/v1/conversations/" + uuid.NewString() + "/name"
			rec, env := ts.do(t, http.MethodPut, path, ts.token, map[string]string{"name": "Crew"})
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if env.Status != http.StatusText(tc.status) {
				t.Errorf("expected status text %q, got %q", http.StatusText(tc.status), env.Status)
			}
		})
	}
}

func TestMalformedPathID(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodGet, "/api/v1/conversations/not-a-uuid/messages", ts.token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec, _ = ts.do(t, http.MethodDelete, "/api/v1/conversations/"+uuid.NewString()+"/participants/nope", ts.token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSendMessageTrimsAndCreates(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/conversations/" + uuid.NewString() + "/messages"

	rec, _ := ts.do(t, http.MethodPost, path, ts.token, map[string]string{"content": "  hello  "})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if ts.threads.content != "hello" {
		t.Fatalf("expected trimmed content, got %q", ts.threads.content)
	}

	rec, _ = ts.do(t, http.MethodPost, path, ts.token, map[string]string{"content": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank content, got %d", rec.Code)
	}
}

func TestSendMessageIsRateLimitedPerUser(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/conversations/" + uuid.NewString() + "/messages"
	body := map[string]string{"content": "spam"}

	for i := 0; i < 3; i++ {
		rec, _ := ts.do(t, http.MethodPost, path, ts.token, body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i+1, rec.Code)
		}
	}
	rec, _ := ts.do(t, http.MethodPost, path, ts.token, body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	other := uuid.New()
	ts.users.users[other] = &models.User{ID: other, Username: "bob"}
	rec, _ = ts.do(t, http.MethodPost, path, ts.tokenFor(t, other), body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected another user to be unaffected, got %d", rec.Code)
	}
}

func TestRespondToInviteValidatesDecision(t *testing.T) {
	ts := newTestServer(t)
	path := "/api/v1/conversations/" + uuid.NewString() + "/invite"

	rec, _ := ts.do(t, http.MethodPut, path, ts.token, map[string]string{"decision": "maybe"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec, _ = ts.do(t, http.MethodPut, path, ts.token, map[string]string{"decision": "accepted"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ts.participants.decided != models.StatusAccepted {
		t.Fatalf("expected accepted, got %s", ts.participants.decided)
	}
}

func TestShutdownClosesWebsocketSessions(t *testing.T) {
	ts := newTestServer(t)
	channel := realtime.NewMemoryChannel()
	ts.server.Bridge = realtime.NewBridge(channel, ts.threads)
	sessions, closeSessions := context.WithCancel(context.Background())
	defer closeSessions()
	ts.server.sessions = sessions

	srv := httptest.NewServer(ts.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?token=" + ts.token
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]interface{}
	if err := client.ReadJSON(&frame); err != nil || frame["type"] != "connected" {
		t.Fatalf("expected a connected frame, got %v %v", frame, err)
	}

	closeSessions()
	_, _, err = client.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected a going away close frame, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ts.server.waitForSessions(ctx)
	if ctx.Err() != nil {
		t.Fatal("session did not finish after shutdown")
	}
	if n := channel.Subscribers(realtime.UserTopic(ts.me)); n != 0 {
		t.Fatalf("expected the inbox subscription released, got %d", n)
	}
}
