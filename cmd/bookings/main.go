package main

import (
	bookingshandler "hirewheel/internal/bookings/handler"
	bookingsrepo "hirewheel/internal/bookings/repository"
	bookingsservice "hirewheel/internal/bookings/service"
	bookingsvalidator "hirewheel/internal/bookings/validator"
	drivershandler "hirewheel/internal/drivers/handler"
	driversrepo "hirewheel/internal/drivers/repository"
	driversservice "hirewheel/internal/drivers/service"
	driversvalidator "hirewheel/internal/drivers/validator"
	"hirewheel/internal/notifications"
	"hirewheel/pkg/app"
	"hirewheel/pkg/config"
	"hirewheel/pkg/kafka"
	kafkaconfig "hirewheel/pkg/kafka/config"
	kafkamiddleware "hirewheel/pkg/kafka/middleware"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Bookings service")

	notifier, closeNotifier := initNotifier(cfg)

	driverRepo := driversrepo.NewMongoDriverRepository(cfg)
	lockRepo := driversrepo.NewDriverLockRepository(cfg)

	driverService := driversservice.NewDriverService(
		driverRepo,
		lockRepo,
		driversvalidator.NewDriverValidator(cfg.Log),
		cfg,
	)

	bookingService := bookingsservice.NewBookingService(
		bookingsrepo.NewMongoBookingRepository(cfg),
		driverRepo,
		lockRepo,
		bookingsvalidator.NewBookingValidator(cfg.Log, cfg.MaxSelectedDates),
		notifier,
		cfg,
	)

	cfg.Log.Info("Booking services initialized", "database", cfg.MongoDatabaseName)

	serverApp := app.NewApplication()
	serverApp.OnShutdown(closeNotifier)
	serverApp.SetApp(cfg,
		bookingshandler.NewBookingHandler(bookingService, cfg.Log),
		drivershandler.NewDriverHandler(driverService, cfg.Log),
	)
	serverApp.Run()
}

func initNotifier(cfg *config.Config) (notifications.Notifier, func()) {
	if !cfg.NotificationsEnabled {
		cfg.Log.Info("Notifications disabled, events are logged only")
		return notifications.NewLogNotifier(cfg.Log), func() {}
	}

	kafkaCfg, err := kafkaconfig.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}

	producer, err := kafka.NewProducer(kafkaCfg, cfg.NotificationsTopic, cfg.NotificationsDLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create notifications producer", "error", err)
	}
	if kafkaCfg.EnableMiddleware {
		producer.Use(kafkamiddleware.LoggingProducerMiddleware(cfg.Log))
		producer.Use(kafkamiddleware.MetricsProducerMiddleware())
	}

	notifier := notifications.NewKafkaNotifier(producer, cfg.Log)
	return notifier, func() {
		if err := notifier.Close(); err != nil {
			cfg.Log.Error("Failed to close notifications producer", "error", err)
		}
	}
}
