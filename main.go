package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/techagentng/spotchat/config"
	"github.com/techagentng/spotchat/db"
	"github.com/techagentng/spotchat/queue"
	"github.com/techagentng/spotchat/realtime"
	"github.com/techagentng/spotchat/server"
	"github.com/techagentng/spotchat/services"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gormDB := db.GetDB(conf)
	conversationRepo := db.NewConversationRepo(gormDB)
	participantRepo := db.NewParticipantRepo(gormDB)
	messageRepo := db.NewMessageRepo(gormDB)
	userRepo := db.NewUserRepo(gormDB)

	channel := newEventChannel(conf)
	defer channel.Close()
	notifier := realtime.NewNotifier(channel)

	var sender services.PushSender = services.LogSender{}
	if conf.FirebaseCredentials != "" {
		fcm, err := services.NewFCMSender(ctx, conf.FirebaseCredentials)
		if err != nil {
			log.Fatal(err)
		}
		sender = fcm
	} else {
		log.Println("no firebase credentials configured, push notifications are only logged")
	}
	notificationService := services.NewNotificationService(conversationRepo, participantRepo, userRepo, sender)

	var enqueuer queue.Enqueuer = queue.NewInlineEnqueuer(notificationService)
	if conf.RedisURL != "" {
		client, err := queue.NewClient(conf.RedisURL)
		if err != nil {
			log.Fatal(err)
		}
		defer client.Close()
		enqueuer = client

		worker, err := queue.NewWorker(conf.RedisURL, conf.WorkerConcurrency, notificationService)
		if err != nil {
			log.Fatal(err)
		}
		go func() {
			if err := worker.Run(ctx); err != nil {
				log.Printf("worker stopped: %v", err)
			}
		}()
	}

	threadService := services.NewThreadService(conversationRepo, participantRepo, messageRepo, userRepo, notifier, enqueuer)

	s := &server.Server{
		Config:              conf,
		DB:                  gormDB,
		UserRepository:      userRepo,
		ConversationService: services.NewConversationService(conversationRepo, notifier),
		ParticipantService:  services.NewParticipantService(conversationRepo, participantRepo, notifier),
		ThreadService:       threadService,
		InboxService:        services.NewInboxService(conversationRepo, participantRepo, messageRepo, userRepo),
		NotificationService: notificationService,
		Bridge:              realtime.NewBridge(channel, threadService),
	}

	if err := s.Start(ctx); err != nil {
		log.Fatal(err)
	}
}

func newEventChannel(conf *config.Config) realtime.Channel {
	if !conf.UseRedisEvents() {
		log.Println("using in-process event channel")
		return realtime.NewMemoryChannel()
	}
	channel, err := realtime.NewRedisChannel(conf.RedisURL)
	if err != nil {
		log.Fatal(err)
	}
	log.Println("using redis event channel")
	return channel
}
