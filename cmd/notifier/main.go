// The notifier worker drains the notifications topic and hands booking
// events to the external email dispatcher. Dispatch here is represented by
// structured logging; the transport adapter slots in behind deliver.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"hirewheel/internal/notifications"
	"hirewheel/pkg/config"
	"hirewheel/pkg/kafka"
	kafkaconfig "hirewheel/pkg/kafka/config"
	kafkamiddleware "hirewheel/pkg/kafka/middleware"
	"hirewheel/pkg/logger"
)

const (
	ServiceName     = "notifier"
	consumerGroupID = "hirewheel-notifier"
)

func main() {
	log := logger.New(logger.Config{
		Level:   getEnv("LOG_LEVEL", "info"),
		Format:  logger.FormatJSON,
		Service: ServiceName,
	})

	kafkaCfg, err := kafkaconfig.Load()
	if err != nil {
		log.Fatal("Invalid Kafka configuration", "error", err)
	}

	topic := getEnv(config.EnvNotificationsTopic, config.DefaultNotificationsTopic)
	dlqTopic := getEnv(config.EnvNotificationsDLQTopic, config.DefaultNotificationsDLQTopic)

	consumer, err := kafka.NewConsumer(kafkaCfg, topic, consumerGroupID, dlqTopic, deliver(log))
	if err != nil {
		log.Fatal("Failed to create consumer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		consumer.Use(kafkamiddleware.LoggingConsumerMiddleware(log))
		consumer.Use(kafkamiddleware.MetricsConsumerMiddleware())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		sig := <-shutdown
		log.Info("Shutdown signal received", "signal", sig)
		cancel()
	}()

	log.Info("Notifier started", "topic", topic, "group_id", consumerGroupID)
	if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
		log.Error("Consumer stopped with error", "error", err)
	}

	if err := consumer.Close(); err != nil {
		log.Error("Failed to close consumer", "error", err)
	}
	log.Info("Notifier stopped")
}

func deliver(log *logger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		var event notifications.BookingEvent
		if err := msg.DecodeValue(&event); err != nil {
			return err
		}

		switch event.EventType {
		case notifications.EventBookingRequested:
			log.Info("Dispatching booking request email",
				"booking_id", event.BookingID,
				"driver_email", event.DriverEmail,
				"booking_type", event.BookingType,
			)
		case notifications.EventBookingDecided:
			accepted := event.Accepted != nil && *event.Accepted
			log.Info("Dispatching booking decision email",
				"booking_id", event.BookingID,
				"owner_id", event.OwnerID,
				"accepted", accepted,
			)
		default:
			log.Warn("Unknown notification event type",
				"event_type", event.EventType,
				"event_id", msg.GetEventID(),
			)
		}
		return nil
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
