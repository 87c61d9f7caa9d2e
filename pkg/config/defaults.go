package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "hirewheel"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Keepalive must stay under common intermediary idle timeouts (~30s).
	DefaultStreamKeepAlive   = 25 * time.Second
	DefaultChangeFeedEnabled = true

	DefaultNotificationsTopic    = "booking-notifications"
	DefaultNotificationsDLQTopic = "booking-notifications-dlq"
	DefaultNotificationsEnabled  = true

	DefaultDriverLockTTL    = 10 * time.Second
	DefaultMaxSelectedDates = 62

	DefaultPaginationLimit = 100
)
