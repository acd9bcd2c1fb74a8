package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/techagentng/spotchat/db"
	"github.com/techagentng/spotchat/models"
	"github.com/techagentng/spotchat/queue"
	"github.com/techagentng/spotchat/realtime"
	"gorm.io/gorm"
)

// memStore keeps conversations, participants, messages and users in memory and mimics the
// behaviour of the postgres schema, including the message insert trigger. The direct key
// constraint can be switched off to reproduce a store without it.
type memStore struct {
	mu sync.Mutex

	enforceDirectKey bool
	procedureErr     error
	beforeCreate     func()

	conversations map[uuid.UUID]*models.Conversation
	participants  []*models.Participant
	messages      []*models.Message
	users         map[uuid.UUID]*models.User
	clock         time.Time
}

func newMemStore() *memStore {
	return &memStore{
		enforceDirectKey: true,
		conversations:    make(map[uuid.UUID]*models.Conversation),
		users:            make(map[uuid.UUID]*models.User),
		clock:            time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

var (
	_ db.ConversationRepository = (*memStore)(nil)
	_ db.ParticipantRepository  = (*memStore)(nil)
	_ db.MessageRepository      = memMessages{}
	_ db.UserRepository         = (*memStore)(nil)
)

func notFound(what string) error {
	return fmt.Errorf("could not find %s: %w", what, gorm.ErrRecordNotFound)
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) addUser(username string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.users[id] = &models.User{ID: id, Username: username, AvatarURL: "https://cdn.example/" + username + ".png"}
	return id
}

func (m *memStore) countDirect() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.conversations {
		if !c.IsGroup {
			n++
		}
	}
	return n
}

func (m *memStore) participantCount(conversationID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.participants {
		if p.ConversationID == conversationID {
			n++
		}
	}
	return n
}

func (m *memStore) messageCount(conversationID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			n++
		}
	}
	return n
}

// conversation repository

func (m *memStore) LookupOrCreateDirect(_ context.Context, userA, userB uuid.UUID) (uuid.UUID, bool, error) {
	if m.procedureErr != nil {
		return uuid.Nil, false, m.procedureErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := models.DirectKey(userA, userB)
	for _, c := range m.conversations {
		if c.DirectKey != nil && *c.DirectKey == key {
			return c.ID, false, nil
		}
	}
	convo := &models.Conversation{DirectKey: &key, CreatedBy: userA}
	m.insertLocked(convo, []models.Participant{
		{UserID: userA, Role: models.RoleAdmin, Status: models.StatusAccepted},
		{UserID: userB, Role: models.RoleMember, Status: models.StatusAccepted},
	})
	return convo.ID, true, nil
}

func (m *memStore) ConversationIDsForUser(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, p := range m.participants {
		if p.UserID == userID {
			ids = append(ids, p.ConversationID)
		}
	}
	return ids, nil
}

func (m *memStore) FindDirectAmong(_ context.Context, conversationIDs []uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	var found []*models.Conversation
	for _, id := range conversationIDs {
		c, ok := m.conversations[id]
		if !ok || c.IsGroup {
			continue
		}
		n := 0
		for _, p := range m.participants {
			if p.ConversationID == id {
				n++
			}
		}
		if n == 2 {
			found = append(found, c)
		}
	}
	m.mu.Unlock()

	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.Before(found[j].CreatedAt) })
	ids := make([]uuid.UUID, 0, len(found))
	for _, c := range found {
		ids = append(ids, c.ID)
	}
	if m.beforeCreate != nil && len(ids) == 0 {
		m.beforeCreate()
	}
	return ids, nil
}

func (m *memStore) FindByDirectKey(_ context.Context, key string) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		if c.DirectKey != nil && *c.DirectKey == key {
			cp := *c
			return &cp, nil
		}
	}
	return nil, notFound("direct conversation")
}

func (m *memStore) FindByID(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, notFound("conversation")
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) CreateDirect(_ context.Context, convo *models.Conversation, creatorID, otherID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enforceDirectKey && convo.DirectKey != nil {
		for _, c := range m.conversations {
			if c.DirectKey != nil && *c.DirectKey == *convo.DirectKey {
				return db.ErrDuplicateDirect
			}
		}
	}
	m.insertLocked(convo, []models.Participant{
		{UserID: creatorID, Role: models.RoleAdmin, Status: models.StatusAccepted},
		{UserID: otherID, Role: models.RoleMember, Status: models.StatusAccepted},
	})
	return nil
}

func (m *memStore) CreateGroup(_ context.Context, convo *models.Conversation, creatorID uuid.UUID, memberIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := []models.Participant{{UserID: creatorID, Role: models.RoleAdmin, Status: models.StatusAccepted}}
	for _, id := range memberIDs {
		rows = append(rows, models.Participant{UserID: id, Role: models.RoleMember, Status: models.StatusPending})
	}
	m.insertLocked(convo, rows)
	return nil
}

func (m *memStore) insertLocked(convo *models.Conversation, rows []models.Participant) {
	now := m.tick()
	convo.ID = uuid.New()
	convo.CreatedAt = now
	convo.LastMessageAt = now
	stored := *convo
	stored.Participants = nil
	m.conversations[convo.ID] = &stored
	for i := range rows {
		rows[i].ID = uuid.New()
		rows[i].ConversationID = convo.ID
		rows[i].JoinedAt = now
		row := rows[i]
		m.participants = append(m.participants, &row)
	}
	convo.Participants = rows
}

func (m *memStore) Rename(_ context.Context, id uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok || !c.IsGroup {
		return gorm.ErrRecordNotFound
	}
	c.Name = &name
	return nil
}

func (m *memStore) ListWithParticipants(_ context.Context, ids []uuid.UUID) ([]models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Conversation
	for _, id := range ids {
		c, ok := m.conversations[id]
		if !ok {
			continue
		}
		cp := *c
		for _, p := range m.participants {
			if p.ConversationID == id {
				cp.Participants = append(cp.Participants, *p)
			}
		}
		out = append(out, cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

// participant repository

func (m *memStore) findLocked(conversationID, userID uuid.UUID) *models.Participant {
	for _, p := range m.participants {
		if p.ConversationID == conversationID && p.UserID == userID {
			return p
		}
	}
	return nil
}

func (m *memStore) Find(_ context.Context, conversationID, userID uuid.UUID) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.findLocked(conversationID, userID)
	if p == nil {
		return nil, notFound("participant")
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Participant
	for _, p := range m.participants {
		if p.ConversationID == conversationID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) ListActiveForUser(_ context.Context, userID uuid.UUID) ([]models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Participant
	for _, p := range m.participants {
		if p.UserID == userID && p.Status != models.StatusRejected {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) AddPending(_ context.Context, conversationID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	unread := 0
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && !msg.IsRead {
			unread++
		}
	}
	var added []uuid.UUID
	for _, id := range userIDs {
		if m.findLocked(conversationID, id) != nil {
			continue
		}
		m.participants = append(m.participants, &models.Participant{
			ID:             uuid.New(),
			ConversationID: conversationID,
			UserID:         id,
			Role:           models.RoleMember,
			Status:         models.StatusPending,
			UnreadCount:    unread,
			JoinedAt:       m.tick(),
		})
		added = append(added, id)
	}
	return added, nil
}

func (m *memStore) UpdateStatus(_ context.Context, conversationID, userID uuid.UUID, status models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.findLocked(conversationID, userID)
	if p == nil {
		return gorm.ErrRecordNotFound
	}
	p.Status = status
	return nil
}

func (m *memStore) UpdateRole(_ context.Context, conversationID, userID uuid.UUID, role models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.findLocked(conversationID, userID)
	if p == nil {
		return gorm.ErrRecordNotFound
	}
	p.Role = role
	return nil
}

func (m *memStore) Delete(_ context.Context, conversationID, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.participants {
		if p.ConversationID == conversationID && p.UserID == userID {
			m.participants = append(m.participants[:i], m.participants[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// memMessages is the message repository view of a memStore. It is a separate type because
// both repositories name a method ListByConversation.
type memMessages struct {
	*memStore
}

func (m memMessages) Create(_ context.Context, message *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = m.tick()
	}
	stored := *message
	m.messages = append(m.messages, &stored)

	if c, ok := m.conversations[message.ConversationID]; ok && message.CreatedAt.After(c.LastMessageAt) {
		c.LastMessageAt = message.CreatedAt
	}
	for _, p := range m.participants {
		if p.ConversationID == message.ConversationID && p.UserID != message.SenderID && p.Status != models.StatusRejected {
			p.UnreadCount++
		}
	}
	return nil
}

func (m memMessages) ListByConversation(_ context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threadLocked(conversationID), nil
}

func (m *memStore) threadLocked(conversationID uuid.UUID) []models.Message {
	var out []models.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, *msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m memMessages) LatestByConversation(_ context.Context, conversationIDs []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := make(map[uuid.UUID]models.Message)
	for _, id := range conversationIDs {
		thread := m.threadLocked(id)
		if len(thread) > 0 {
			latest[id] = thread[len(thread)-1]
		}
	}
	return latest, nil
}

func (m memMessages) MarkRead(_ context.Context, conversationID, readerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID && msg.SenderID != readerID {
			msg.IsRead = true
		}
	}
	if p := m.findLocked(conversationID, readerID); p != nil {
		p.UnreadCount = 0
	}
	return nil
}

// user repository

func (m *memStore) FindUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, notFound("user")
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) FindProfiles(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profiles := make(map[uuid.UUID]*models.Profile)
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			profiles[id] = u.Profile()
		}
	}
	return profiles, nil
}

func (m *memStore) UpdateDeviceToken(_ context.Context, userID uuid.UUID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.DeviceToken = token
	return nil
}

func (m *memStore) FindDeviceTokens(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tokens := make(map[uuid.UUID]string)
	for _, id := range ids {
		if u, ok := m.users[id]; ok && u.DeviceToken != "" {
			tokens[id] = u.DeviceToken
		}
	}
	return tokens, nil
}

// recordingPublisher remembers which users and threads were told about a change.
type recordingPublisher struct {
	mu      sync.Mutex
	inbox   map[uuid.UUID][]realtime.Event
	threads map[uuid.UUID][]realtime.Event
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{
		inbox:   make(map[uuid.UUID][]realtime.Event),
		threads: make(map[uuid.UUID][]realtime.Event),
	}
}

func (r *recordingPublisher) NotifyInbox(_ context.Context, event realtime.Event, userIDs ...uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range userIDs {
		r.inbox[id] = append(r.inbox[id], event)
	}
}

func (r *recordingPublisher) NotifyThread(_ context.Context, event realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads[event.ConversationID] = append(r.threads[event.ConversationID], event)
}

func (r *recordingPublisher) inboxCount(userID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inbox[userID])
}

func (r *recordingPublisher) threadCount(conversationID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.threads[conversationID])
}

type recordingEnqueuer struct {
	mu       sync.Mutex
	payloads []queue.MessageNotificationPayload
}

func (r *recordingEnqueuer) EnqueueMessageNotification(_ context.Context, p queue.MessageNotificationPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
	return nil
}

type sentPush struct {
	token, title, body string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentPush
}

func (r *recordingSender) Send(_ context.Context, token, title, body string, _ map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentPush{token: token, title: title, body: body})
	return nil
}

// fixture wires every service onto one memStore.
type fixture struct {
	store         *memStore
	publisher     *recordingPublisher
	enqueuer      *recordingEnqueuer
	conversations ConversationService
	participants  ParticipantService
	threads       ThreadService
	inbox         InboxService
}

func newFixture() *fixture {
	store := newMemStore()
	publisher := newRecordingPublisher()
	enqueuer := &recordingEnqueuer{}
	return &fixture{
		store:         store,
		publisher:     publisher,
		enqueuer:      enqueuer,
		conversations: NewConversationService(store, publisher),
		participants:  NewParticipantService(store, store, publisher),
		threads:       NewThreadService(store, store, memMessages{store}, store, publisher, enqueuer),
		inbox:         NewInboxService(store, store, memMessages{store}, store),
	}
}
