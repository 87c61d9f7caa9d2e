package notifications

import (
	"context"

	"hirewheel/pkg/kafka"
	"hirewheel/pkg/logger"
	"hirewheel/pkg/model"
)

// KafkaNotifier publishes booking events to the notifications topic. The
// notifier worker turns them into outbound email through the external
// dispatcher.
type KafkaNotifier struct {
	producer *kafka.Producer
	log      *logger.Logger
}

func NewKafkaNotifier(producer *kafka.Producer, log *logger.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		log:      log,
	}
}

func (n *KafkaNotifier) NotifyNewBookingRequest(ctx context.Context, driver *model.Driver, booking *model.Booking) error {
	return n.publish(ctx, requestEvent(driver, booking))
}

func (n *KafkaNotifier) NotifyBookingDecision(ctx context.Context, driver *model.Driver, booking *model.Booking, accepted bool) error {
	return n.publish(ctx, decisionEvent(driver, booking, accepted))
}

func (n *KafkaNotifier) publish(ctx context.Context, event BookingEvent) error {
	msg := kafka.NewMessage().
		WithKey(event.BookingID).
		WithValue(event).
		WithEventType(event.EventType).
		WithSource("bookings").
		Build()

	return n.producer.Publish(ctx, msg)
}

func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}
