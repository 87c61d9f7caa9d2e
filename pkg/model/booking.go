package model

import "time"

const (
	BookingTypeDaily   = "daily"
	BookingTypeMonthly = "monthly"

	BookingStatusPending   = "pending"
	BookingStatusAccepted  = "accepted"
	BookingStatusRejected  = "rejected"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"

	DecisionAccept = "accept"
	DecisionReject = "reject"

	// DateLayout is the wire format for calendar dates throughout the API.
	DateLayout = "2006-01-02"
)

type Booking struct {
	ID             string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	DriverID       string    `json:"driver_id" bson:"driver_id" validate:"required,mongodb"`
	OwnerID        string    `json:"owner_id" bson:"owner_id" validate:"required,min=1,max=100"`
	BookingType    string    `json:"booking_type" bson:"booking_type" validate:"required,oneof=daily monthly"`
	SelectedDates  []string  `json:"selected_dates,omitempty" bson:"selected_dates,omitempty" validate:"omitempty"`
	StartDate      string    `json:"start_date,omitempty" bson:"start_date,omitempty" validate:"omitempty"`
	EndDate        string    `json:"end_date,omitempty" bson:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	NumberOfMonths int       `json:"number_of_months,omitempty" bson:"number_of_months,omitempty" validate:"omitempty,min=1,max=36"`
	PickupLocation string    `json:"pickup_location" bson:"pickup_location" validate:"required,min=2,max=200"`
	Notes          string    `json:"notes,omitempty" bson:"notes,omitempty" validate:"omitempty,max=1000"`
	TotalCost      float64   `json:"total_cost" bson:"total_cost" validate:"min=0"`
	Status         string    `json:"status" bson:"status" validate:"required,oneof=pending accepted rejected cancelled completed"`
	Review         *Review   `json:"review,omitempty" bson:"review,omitempty"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// IsDaily reports whether the booking reserves a discrete date set rather
// than a continuous monthly range.
func (b *Booking) IsDaily() bool {
	return b.BookingType == BookingTypeDaily
}

type Review struct {
	Rating    int       `json:"rating" bson:"rating" validate:"required,min=1,max=5"`
	Comment   string    `json:"comment,omitempty" bson:"comment,omitempty" validate:"omitempty,max=1000"`
	CreatedAt time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

type BookingDecision struct {
	Action string `json:"action" validate:"required,oneof=accept reject"`
}

type BookingClosure struct {
	Status string `json:"status" validate:"required,oneof=completed cancelled"`
}
