package validator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"hirewheel/pkg/logger"
	"hirewheel/pkg/model"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type BookingValidator struct {
	validate         *validator.Validate
	logger           *logger.Logger
	maxSelectedDates int
}

func NewBookingValidator(log *logger.Logger, maxSelectedDates int) *BookingValidator {
	return &BookingValidator{
		validate:         validator.New(),
		logger:           log,
		maxSelectedDates: maxSelectedDates,
	}
}

// Validate checks the booking's shape: struct fields plus type-specific
// presence rules. Date values themselves are checked separately by
// ValidateDates.
func (v *BookingValidator) Validate(booking *model.Booking) error {
	if err := v.validate.Struct(booking); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}

	switch booking.BookingType {
	case model.BookingTypeDaily:
		return v.validateDaily(booking)
	case model.BookingTypeMonthly:
		return v.validateMonthly(booking)
	}
	return nil
}

func (v *BookingValidator) validateDaily(booking *model.Booking) error {
	if len(booking.SelectedDates) == 0 {
		return fieldError("SelectedDates", "daily bookings require at least one date")
	}
	if v.maxSelectedDates > 0 && len(booking.SelectedDates) > v.maxSelectedDates {
		return fieldError("SelectedDates", fmt.Sprintf("daily bookings allow at most %d dates", v.maxSelectedDates))
	}
	if booking.StartDate != "" || booking.NumberOfMonths != 0 {
		return fieldError("StartDate", "daily bookings must not carry monthly fields")
	}
	return nil
}

// ValidateDates checks the booking's date values: daily dates must be real
// calendar dates no earlier than today, a monthly start date must parse.
// Comparison is date-only; the caller supplies today so tests can pin the
// clock.
func (v *BookingValidator) ValidateDates(booking *model.Booking, today time.Time) error {
	if booking.BookingType == model.BookingTypeMonthly {
		if _, err := time.Parse(model.DateLayout, booking.StartDate); err != nil {
			return fieldError("StartDate", fmt.Sprintf("%q is not a valid calendar date", booking.StartDate))
		}
		return nil
	}

	todayDate := truncateToDate(today)
	for _, raw := range booking.SelectedDates {
		date, err := time.Parse(model.DateLayout, raw)
		if err != nil {
			return fieldError("SelectedDates", fmt.Sprintf("%q is not a valid calendar date", raw))
		}
		if date.Before(todayDate) {
			return fieldError("SelectedDates", fmt.Sprintf("%s is in the past", raw))
		}
	}
	return nil
}

func (v *BookingValidator) validateMonthly(booking *model.Booking) error {
	if booking.StartDate == "" {
		return fieldError("StartDate", "monthly bookings require a start date")
	}
	if booking.NumberOfMonths < 1 {
		return fieldError("NumberOfMonths", "monthly bookings require at least one month")
	}
	if len(booking.SelectedDates) != 0 {
		return fieldError("SelectedDates", "monthly bookings must not carry selected dates")
	}
	return nil
}

func (v *BookingValidator) ValidateDecision(decision *model.BookingDecision) error {
	return v.validateStruct(decision)
}

func (v *BookingValidator) ValidateClosure(closure *model.BookingClosure) error {
	return v.validateStruct(closure)
}

func (v *BookingValidator) ValidateReview(review *model.Review) error {
	return v.validateStruct(review)
}

func (v *BookingValidator) validateStruct(value any) error {
	if err := v.validate.Struct(value); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func fieldError(field, message string) ValidationErrors {
	return ValidationErrors{ValidationError{Field: field, Message: message}}
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid MongoDB ObjectID", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "datetime":
			message = fmt.Sprintf("%s must be a calendar date in YYYY-MM-DD format", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
