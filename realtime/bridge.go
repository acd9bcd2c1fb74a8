package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	readTimeout  = 60 * time.Second
	maxFrameSize = 4096

	frameOpenThread  = "open_thread"
	frameCloseThread = "close_thread"

	ScopeInbox  = "inbox"
	ScopeThread = "thread"
)

// ThreadAuthorizer decides whether a user may watch a conversation's thread.
type ThreadAuthorizer interface {
	CanOpenThread(ctx context.Context, userID, conversationID uuid.UUID) error
}

type clientFrame struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversation_id"`
}

// Invalidation tells the client which view to fetch again.
type Invalidation struct {
	Type           string     `json:"type"`
	Scope          string     `json:"scope"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

type ackFrame struct {
	Type           string     `json:"type"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// Bridge turns channel events into client invalidations. Each websocket gets one Session.
type Bridge struct {
	channel Channel
	auth    ThreadAuthorizer
}

func NewBridge(channel Channel, auth ThreadAuthorizer) *Bridge {
	return &Bridge{channel: channel, auth: auth}
}

// Serve runs the session for an upgraded websocket and blocks until the client goes away or
// ctx is cancelled. Every subscription taken is released before it returns.
func (b *Bridge) Serve(ctx context.Context, userID uuid.UUID, ws *websocket.Conn) {
	conn := NewConnection(userID, ws)
	conn.Start()

	ctx, cancel := context.WithCancel(ctx)
	session := newSession(b, conn)
	defer func() {
		session.Close()
		conn.Close(websocket.CloseNormalClosure, "session closed")
		cancel()
	}()

	if err := session.subscribeInbox(ctx); err != nil {
		log.Printf("ws %s: inbox subscription for %s failed: %v", conn.ID, userID, err)
		session.replyError("unavailable", "realtime channel unavailable")
		return
	}
	session.send(ackFrame{Type: "connected"})

	go func() {
		select {
		case <-ctx.Done():
			conn.Close(websocket.CloseGoingAway, "server shutting down")
		case <-conn.Done():
		}
	}()

	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				log.Printf("ws %s: read: %v", conn.ID, err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			session.replyError("bad_request", "invalid payload")
			continue
		}

		switch frame.Type {
		case frameOpenThread:
			if frame.ConversationID == uuid.Nil {
				session.replyError("bad_request", "conversation_id is required")
				continue
			}
			if err := session.OpenThread(ctx, frame.ConversationID); err != nil {
				session.replyError("forbidden", err.Error())
				continue
			}
			id := frame.ConversationID
			session.send(ackFrame{Type: "thread_opened", ConversationID: &id})
		case frameCloseThread:
			ack := ackFrame{Type: "thread_closed"}
			if id := session.ActiveThread(); id != uuid.Nil {
				ack.ConversationID = &id
			}
			session.CloseThread()
			session.send(ack)
		default:
			session.replyError("unsupported_type", "unknown frame type")
		}
	}
}

// Session holds one inbox subscription for its lifetime and at most one thread subscription
// at a time.
type Session struct {
	bridge *Bridge
	conn   *Connection

	mu       sync.Mutex
	inbox    Subscription
	thread   Subscription
	threadID uuid.UUID
	closed   bool
	wg       sync.WaitGroup
}

func newSession(bridge *Bridge, conn *Connection) *Session {
	return &Session{bridge: bridge, conn: conn}
}

func (s *Session) subscribeInbox(ctx context.Context) error {
	sub, err := s.bridge.channel.Subscribe(ctx, UserTopic(s.conn.UserID))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = sub.Close()
		return ErrConnectionClosed
	}
	s.inbox = sub
	s.forward(sub, ScopeInbox, nil)
	return nil
}

// OpenThread switches the thread subscription to conversationID, releasing the previous one.
func (s *Session) OpenThread(ctx context.Context, conversationID uuid.UUID) error {
	if err := s.bridge.auth.CanOpenThread(ctx, s.conn.UserID, conversationID); err != nil {
		return err
	}
	sub, err := s.bridge.channel.Subscribe(ctx, ConversationTopic(conversationID))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = sub.Close()
		return ErrConnectionClosed
	}
	if s.thread != nil {
		_ = s.thread.Close()
	}
	s.thread = sub
	s.threadID = conversationID
	id := conversationID
	s.forward(sub, ScopeThread, &id)
	return nil
}

// ActiveThread returns the conversation currently watched, or uuid.Nil.
func (s *Session) ActiveThread() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

func (s *Session) CloseThread() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseThread()
}

// Close releases every subscription and waits for the forwarders to drain.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.releaseThread()
	if s.inbox != nil {
		_ = s.inbox.Close()
		s.inbox = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Session) releaseThread() {
	if s.thread != nil {
		_ = s.thread.Close()
		s.thread = nil
		s.threadID = uuid.Nil
	}
}

func (s *Session) forward(sub Subscription, scope string, conversationID *uuid.UUID) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for event := range sub.Events() {
			s.send(Invalidation{
				Type:           "invalidate",
				Scope:          scope,
				ConversationID: conversationID,
				Reason:         event.Reason,
			})
		}
	}()
}

func (s *Session) send(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("ws %s: encode frame: %v", s.conn.ID, err)
		return
	}
	_ = s.conn.Send(payload)
}

func (s *Session) replyError(code, message string) {
	s.send(errorFrame{Type: "error", Code: code, Error: message})
}
