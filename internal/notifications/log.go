package notifications

import (
	"context"

	"hirewheel/pkg/logger"
	"hirewheel/pkg/model"
)

// LogNotifier records booking events without dispatching them. Used when
// notifications are disabled or no broker is reachable.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) NotifyNewBookingRequest(_ context.Context, driver *model.Driver, booking *model.Booking) error {
	n.log.Info("Booking request notification (dispatch disabled)",
		"booking_id", booking.ID,
		"driver_id", booking.DriverID,
		"driver_email", driver.Email,
	)
	return nil
}

func (n *LogNotifier) NotifyBookingDecision(_ context.Context, driver *model.Driver, booking *model.Booking, accepted bool) error {
	n.log.Info("Booking decision notification (dispatch disabled)",
		"booking_id", booking.ID,
		"owner_id", booking.OwnerID,
		"accepted", accepted,
	)
	return nil
}
