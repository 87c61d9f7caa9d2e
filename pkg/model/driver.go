package model

import "time"

const (
	AvailabilityUnavailable = "unavailable"
	AvailabilityBooked      = "booked"
)

// Driver is the full driver record. Optional profile fields carry explicit
// zero defaults instead of living in untyped document extensions.
type Driver struct {
	ID              string             `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	UserID          string             `json:"user_id" bson:"user_id" validate:"required,min=1,max=100"`
	Name            string             `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Phone           string             `json:"phone" bson:"phone" validate:"omitempty,e164"`
	Email           string             `json:"email" bson:"email" validate:"required,email"`
	City            string             `json:"city" bson:"city" validate:"required,min=2,max=50"`
	PricePerDay     float64            `json:"price_per_day" bson:"price_per_day" validate:"min=0"`
	PricePerMonth   float64            `json:"price_per_month" bson:"price_per_month" validate:"min=0"`
	ExperienceYears int                `json:"experience_years" bson:"experience_years" validate:"min=0,max=80"`
	Languages       []string           `json:"languages,omitempty" bson:"languages,omitempty" validate:"omitempty,max=10,dive,min=2,max=30"`
	Bio             string             `json:"bio,omitempty" bson:"bio,omitempty" validate:"omitempty,max=2000"`
	Availability    []AvailabilityEntry `json:"availability" bson:"availability" validate:"omitempty,dive"`
	CreatedAt       time.Time          `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// AvailabilityEntry blocks a single calendar date. The date string is the
// natural key within a driver's availability set.
type AvailabilityEntry struct {
	Date   string `json:"date" bson:"date" validate:"required,datetime=2006-01-02"`
	Status string `json:"status" bson:"status" validate:"required,oneof=unavailable booked"`
}

type AvailabilityUpdate struct {
	Dates []string `json:"dates" validate:"omitempty,max=366,dive,datetime=2006-01-02"`
}
