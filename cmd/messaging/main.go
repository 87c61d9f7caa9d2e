package main

import (
	messaginghandler "hirewheel/internal/messaging/handler"
	"hirewheel/internal/messaging/hub"
	messagingrepo "hirewheel/internal/messaging/repository"
	messagingservice "hirewheel/internal/messaging/service"
	"hirewheel/internal/messaging/stream"
	"hirewheel/pkg/app"
	"hirewheel/pkg/config"
)

const ServiceName = "messaging"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Messaging service")

	deliveryHub := hub.New()
	conversationRepo := messagingrepo.NewMongoConversationRepository(cfg)
	messageRepo := messagingrepo.NewMongoMessageRepository(cfg)

	messagingService := messagingservice.NewMessagingService(
		conversationRepo,
		messageRepo,
		deliveryHub,
		cfg,
	)

	streamHandler := stream.NewStreamHandler(
		messagingService,
		deliveryHub,
		messageRepo,
		cfg.StreamKeepAlive,
		cfg.ChangeFeedEnabled,
		cfg.Log,
	)

	cfg.Log.Info("Messaging services initialized", "database", cfg.MongoDatabaseName)

	serverApp := app.NewApplication()
	serverApp.ExemptFromTimeout(stream.TimeoutExempt)
	serverApp.SetApp(cfg,
		messaginghandler.NewMessagingHandler(messagingService, cfg.Log),
		streamHandler,
	)
	serverApp.Run()
}
