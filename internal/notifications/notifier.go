// Package notifications is the outbound notification port. Core services
// call it after their state transition commits; delivery is best-effort and
// failures are logged, never propagated into the booking flow.
package notifications

import (
	"context"

	"hirewheel/pkg/model"
)

const (
	EventBookingRequested = "booking.requested"
	EventBookingDecided   = "booking.decided"
)

// BookingEvent is the wire payload for booking notifications.
type BookingEvent struct {
	EventType    string   `json:"event_type"`
	BookingID    string   `json:"booking_id"`
	DriverID     string   `json:"driver_id"`
	DriverUserID string   `json:"driver_user_id,omitempty"`
	DriverEmail  string   `json:"driver_email,omitempty"`
	OwnerID      string   `json:"owner_id"`
	BookingType  string   `json:"booking_type"`
	Dates        []string `json:"dates,omitempty"`
	StartDate    string   `json:"start_date,omitempty"`
	EndDate      string   `json:"end_date,omitempty"`
	Accepted     *bool    `json:"accepted,omitempty"`
}

type Notifier interface {
	NotifyNewBookingRequest(ctx context.Context, driver *model.Driver, booking *model.Booking) error
	NotifyBookingDecision(ctx context.Context, driver *model.Driver, booking *model.Booking, accepted bool) error
}

func requestEvent(driver *model.Driver, booking *model.Booking) BookingEvent {
	return BookingEvent{
		EventType:    EventBookingRequested,
		BookingID:    booking.ID,
		DriverID:     booking.DriverID,
		DriverUserID: driver.UserID,
		DriverEmail:  driver.Email,
		OwnerID:      booking.OwnerID,
		BookingType:  booking.BookingType,
		Dates:        booking.SelectedDates,
		StartDate:    booking.StartDate,
		EndDate:      booking.EndDate,
	}
}

func decisionEvent(driver *model.Driver, booking *model.Booking, accepted bool) BookingEvent {
	event := requestEvent(driver, booking)
	event.EventType = EventBookingDecided
	event.Accepted = &accepted
	return event
}
