package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/techagentng/spotchat/config"
	"github.com/techagentng/spotchat/db"
	"github.com/techagentng/spotchat/realtime"
	"github.com/techagentng/spotchat/services"
)

// Server holds the dependencies of the http api
type Server struct {
	Config              *config.Config
	DB                  *db.GormDB
	UserRepository      db.UserRepository
	ConversationService services.ConversationService
	ParticipantService  services.ParticipantService
	ThreadService       services.ThreadService
	InboxService        services.InboxService
	NotificationService services.NotificationService
	Bridge              *realtime.Bridge

	// sessions ends with the server; websocket sessions outlive their request otherwise
	sessions     context.Context
	liveSessions sync.WaitGroup
}

// Start serves the api until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRouter()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.Config.Port),
		Handler: router,
	}
	sessions, closeSessions := context.WithCancel(context.Background())
	defer closeSessions()
	s.sessions = sessions
	srv.RegisterOnShutdown(closeSessions)

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("Server started on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.waitForSessions(shutdownCtx)
	log.Println("Server exiting")
	return nil
}

// sessionContext derives a websocket session's context from its request and from the server
// lifetime, so shutdown reaches hijacked connections too.
func (s *Server) sessionContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if s.sessions == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(s.sessions, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// waitForSessions blocks until every websocket session has released its subscriptions or ctx expires.
func (s *Server) waitForSessions(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.liveSessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Println("websocket sessions did not close before the deadline")
	}
}
