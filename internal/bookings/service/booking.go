package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	bookingserrors "hirewheel/internal/bookings/errors"
	"hirewheel/internal/bookings/repository"
	"hirewheel/internal/bookings/validator"
	driverserrors "hirewheel/internal/drivers/errors"
	driversrepo "hirewheel/internal/drivers/repository"
	"hirewheel/internal/notifications"
	"hirewheel/pkg/config"
	apperrors "hirewheel/pkg/errors"
	"hirewheel/pkg/middleware"
	"hirewheel/pkg/model"
	"hirewheel/pkg/sanitizer"
)

type BookingService interface {
	Create(ctx context.Context, caller middleware.Caller, booking *model.Booking) error
	GetByID(ctx context.Context, caller middleware.Caller, id string) (*model.Booking, error)
	List(ctx context.Context, caller middleware.Caller, status string, limit int, offset int64) ([]*model.Booking, int64, error)
	Decide(ctx context.Context, caller middleware.Caller, id string, decision *model.BookingDecision) (*model.Booking, error)
	Close(ctx context.Context, caller middleware.Caller, id string, closure *model.BookingClosure) (*model.Booking, error)
	AttachReview(ctx context.Context, caller middleware.Caller, id string, review *model.Review) (*model.Booking, error)
}

type bookingService struct {
	repo       repository.BookingRepository
	driverRepo driversrepo.DriverRepository
	lockRepo   driversrepo.DriverLockRepository
	validator  *validator.BookingValidator
	notifier   notifications.Notifier
	cfg        *config.Config

	// now is the service clock, replaceable in tests.
	now func() time.Time
}

func NewBookingService(
	repo repository.BookingRepository,
	driverRepo driversrepo.DriverRepository,
	lockRepo driversrepo.DriverLockRepository,
	validator *validator.BookingValidator,
	notifier notifications.Notifier,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:       repo,
		driverRepo: driverRepo,
		lockRepo:   lockRepo,
		validator:  validator,
		notifier:   notifier,
		cfg:        cfg,
		now:        time.Now,
	}
}

func (s *bookingService) Create(ctx context.Context, caller middleware.Caller, booking *model.Booking) error {
	if caller.Role == middleware.RoleDriver {
		return apperrors.Forbidden("Drivers cannot create bookings")
	}
	if booking.OwnerID == "" {
		booking.OwnerID = caller.UserID
	}
	if caller.Role == middleware.RoleOwner && booking.OwnerID != caller.UserID {
		return apperrors.Forbidden("Owners can only create their own bookings")
	}

	s.sanitize(booking)
	s.applyDefaults(booking)

	// First violation wins: a malformed request fails on its own shape, a
	// missing driver beats a bad date, and only then are the dates judged.
	if err := s.validate(booking); err != nil {
		return err
	}

	driver, err := s.driverRepo.FindByID(ctx, booking.DriverID)
	if err != nil {
		if errors.Is(err, driverserrors.ErrNotFound) || errors.Is(err, driverserrors.ErrInvalidID) {
			return apperrors.NotFoundWithID("Driver", booking.DriverID)
		}
		return apperrors.Internal("Failed to resolve driver", err)
	}

	if err := s.validateDates(booking); err != nil {
		return err
	}

	if booking.IsDaily() {
		if err := s.verifyDatesFree(booking.SelectedDates, driver.Availability); err != nil {
			return err
		}
	} else {
		s.deriveMonthlyEndDate(booking)
	}

	s.settleCost(booking, driver)

	if err := s.repo.Create(ctx, booking); err != nil {
		s.cfg.Log.Error("Failed to create booking", "driver_id", booking.DriverID, "error", err)
		return apperrors.Internal("Failed to create booking", err)
	}

	// Best-effort: a failed notification never rolls back the booking.
	if err := s.notifier.NotifyNewBookingRequest(ctx, driver, booking); err != nil {
		s.cfg.Log.Warn("Failed to dispatch booking request notification",
			"booking_id", booking.ID,
			"driver_id", booking.DriverID,
			"error", err,
		)
	}

	s.cfg.Log.Info("Booking created successfully",
		"id", booking.ID,
		"driver_id", booking.DriverID,
		"owner_id", booking.OwnerID,
		"booking_type", booking.BookingType,
	)
	return nil
}

func (s *bookingService) GetByID(ctx context.Context, caller middleware.Caller, id string) (*model.Booking, error) {
	booking, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeParticipant(ctx, caller, booking); err != nil {
		return nil, err
	}

	return booking, nil
}

func (s *bookingService) List(ctx context.Context, caller middleware.Caller, status string, limit int, offset int64) ([]*model.Booking, int64, error) {
	if status != "" && !validStatus(status) {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("Invalid status filter: %s", status))
	}

	filter := repository.BookingFilter{Status: status}
	switch caller.Role {
	case middleware.RoleOwner:
		filter.OwnerID = caller.UserID
	case middleware.RoleDriver:
		driver, err := s.driverRepo.FindByUserID(ctx, caller.UserID)
		if err != nil {
			if errors.Is(err, driverserrors.ErrNotFound) {
				return []*model.Booking{}, 0, nil
			}
			return nil, 0, apperrors.Internal("Failed to resolve driver profile", err)
		}
		filter.DriverID = driver.ID
	}

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.CountFiltered(ctx, filter)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.FindFiltered(ctx, filter, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

func (s *bookingService) Decide(ctx context.Context, caller middleware.Caller, id string, decision *model.BookingDecision) (*model.Booking, error) {
	if err := s.validator.ValidateDecision(decision); err != nil {
		return nil, apperrors.Validation("Invalid booking decision", map[string]any{"error": err.Error()})
	}

	booking, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	driver, err := s.driverRepo.FindByID(ctx, booking.DriverID)
	if err != nil {
		if errors.Is(err, driverserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Driver", booking.DriverID)
		}
		return nil, apperrors.Internal("Failed to resolve driver", err)
	}
	if caller.Role != middleware.RoleAdmin && driver.UserID != caller.UserID {
		return nil, apperrors.Forbidden("Only the booking's driver can decide it")
	}

	if booking.Status != model.BookingStatusPending {
		return nil, apperrors.Conflict(fmt.Sprintf("Booking has already been decided (status: %s)", booking.Status))
	}

	accepted := decision.Action == model.DecisionAccept
	if accepted && booking.IsDaily() {
		if err := s.acceptDaily(ctx, booking); err != nil {
			return nil, err
		}
	} else {
		status := model.BookingStatusRejected
		if accepted {
			status = model.BookingStatusAccepted
		}
		if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
			s.cfg.Log.Error("Failed to update booking status", "id", id, "error", err)
			return nil, apperrors.Internal("Failed to update booking", err)
		}
		booking.Status = status
	}

	if err := s.notifier.NotifyBookingDecision(ctx, driver, booking, accepted); err != nil {
		s.cfg.Log.Warn("Failed to dispatch booking decision notification",
			"booking_id", booking.ID,
			"owner_id", booking.OwnerID,
			"error", err,
		)
	}

	s.cfg.Log.Info("Booking decided",
		"id", booking.ID,
		"driver_id", booking.DriverID,
		"status", booking.Status,
	)
	return booking, nil
}

// acceptDaily transitions the booking to accepted and folds its dates into
// the driver's availability as booked, atomically, under the driver's
// advisory lock. Last write wins per date key.
func (s *bookingService) acceptDaily(ctx context.Context, booking *model.Booking) error {
	lockID, err := s.acquireDriverLock(ctx, booking.DriverID)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := s.releaseDriverLock(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release driver lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.repo.UpdateStatus(sessCtx, booking.ID, model.BookingStatusAccepted); err != nil {
			return apperrors.Internal("Failed to update booking", err)
		}
		if err := s.driverRepo.MergeBookedDates(sessCtx, booking.DriverID, booking.SelectedDates); err != nil {
			return apperrors.Internal("Failed to merge booked dates", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to accept booking", "id", booking.ID, "error", err)
		return err
	}

	booking.Status = model.BookingStatusAccepted
	return nil
}

func (s *bookingService) Close(ctx context.Context, caller middleware.Caller, id string, closure *model.BookingClosure) (*model.Booking, error) {
	if err := s.validator.ValidateClosure(closure); err != nil {
		return nil, apperrors.Validation("Invalid booking closure", map[string]any{"error": err.Error()})
	}

	booking, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(ctx, caller, booking); err != nil {
		return nil, err
	}

	if booking.Status != model.BookingStatusAccepted {
		return nil, apperrors.Conflict(fmt.Sprintf("Only accepted bookings can be closed (status: %s)", booking.Status))
	}

	// Cancelling an accepted daily booking gives its dates back to the
	// driver's calendar.
	if closure.Status == model.BookingStatusCancelled && booking.IsDaily() {
		if err := s.cancelDaily(ctx, booking); err != nil {
			return nil, err
		}
	} else {
		if err := s.repo.UpdateStatus(ctx, id, closure.Status); err != nil {
			s.cfg.Log.Error("Failed to close booking", "id", id, "error", err)
			return nil, apperrors.Internal("Failed to close booking", err)
		}
		booking.Status = closure.Status
	}

	s.cfg.Log.Info("Booking closed", "id", booking.ID, "status", booking.Status)
	return booking, nil
}

func (s *bookingService) cancelDaily(ctx context.Context, booking *model.Booking) error {
	lockID, err := s.acquireDriverLock(ctx, booking.DriverID)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := s.releaseDriverLock(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release driver lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.repo.UpdateStatus(sessCtx, booking.ID, model.BookingStatusCancelled); err != nil {
			return apperrors.Internal("Failed to cancel booking", err)
		}
		if err := s.driverRepo.ReleaseBookedDates(sessCtx, booking.DriverID, booking.SelectedDates); err != nil {
			return apperrors.Internal("Failed to release booked dates", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to cancel booking", "id", booking.ID, "error", err)
		return err
	}

	booking.Status = model.BookingStatusCancelled
	return nil
}

func (s *bookingService) AttachReview(ctx context.Context, caller middleware.Caller, id string, review *model.Review) (*model.Booking, error) {
	if err := s.validator.ValidateReview(review); err != nil {
		return nil, apperrors.Validation("Invalid review", map[string]any{"error": err.Error()})
	}

	booking, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Role != middleware.RoleAdmin && booking.OwnerID != caller.UserID {
		return nil, apperrors.Forbidden("Only the booking's owner can leave a review")
	}

	if booking.Status != model.BookingStatusAccepted && booking.Status != model.BookingStatusCompleted {
		return nil, apperrors.Conflict(fmt.Sprintf("Bookings can only be reviewed once accepted or completed (status: %s)", booking.Status))
	}
	if booking.Review != nil {
		return nil, apperrors.Conflict("Booking has already been reviewed")
	}

	review.Comment = sanitizer.TrimAndNormalize(review.Comment)
	review.CreatedAt = s.now().UTC().Truncate(time.Millisecond)

	if err := s.repo.SetReview(ctx, id, review); err != nil {
		s.cfg.Log.Error("Failed to attach review", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to attach review", err)
	}

	booking.Review = review
	s.cfg.Log.Info("Review attached", "id", booking.ID, "rating", review.Rating)
	return booking, nil
}

// --- Helpers ---

func (s *bookingService) fetch(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}

	return booking, nil
}

func (s *bookingService) authorizeParticipant(ctx context.Context, caller middleware.Caller, booking *model.Booking) error {
	switch caller.Role {
	case middleware.RoleAdmin:
		return nil
	case middleware.RoleOwner:
		if booking.OwnerID == caller.UserID {
			return nil
		}
	case middleware.RoleDriver:
		driver, err := s.driverRepo.FindByID(ctx, booking.DriverID)
		if err == nil && driver.UserID == caller.UserID {
			return nil
		}
	}
	return apperrors.Forbidden("Caller is not a participant of this booking")
}

func (s *bookingService) sanitize(b *model.Booking) {
	b.PickupLocation = sanitizer.NormalizeLocation(b.PickupLocation)
	b.Notes = sanitizer.TrimAndNormalize(b.Notes)
}

func (s *bookingService) applyDefaults(b *model.Booking) {
	b.Status = model.BookingStatusPending
	b.Review = nil
	if b.IsDaily() {
		b.SelectedDates = dedupeSorted(b.SelectedDates)
	}
}

func (s *bookingService) validate(booking *model.Booking) error {
	if err := s.validator.Validate(booking); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "error", err)
		return apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}

func (s *bookingService) validateDates(booking *model.Booking) error {
	if err := s.validator.ValidateDates(booking, s.now()); err != nil {
		s.cfg.Log.Warn("Booking date validation failed", "error", err)
		return apperrors.Validation("Booking validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}

// verifyDatesFree rejects the booking when any selected date is already
// blocked in the driver's availability, reporting the first offending date.
func (s *bookingService) verifyDatesFree(dates []string, availability []model.AvailabilityEntry) error {
	blocked := make(map[string]string, len(availability))
	for _, entry := range availability {
		blocked[entry.Date] = entry.Status
	}

	for _, date := range dates {
		if status, ok := blocked[date]; ok {
			return apperrors.Conflict(fmt.Sprintf("Date %s is not available", date)).WithDetails(map[string]any{
				"date":   date,
				"status": status,
			})
		}
	}
	return nil
}

func (s *bookingService) deriveMonthlyEndDate(b *model.Booking) {
	start, err := time.Parse(model.DateLayout, b.StartDate)
	if err != nil {
		return
	}
	b.EndDate = start.AddDate(0, b.NumberOfMonths, 0).Format(model.DateLayout)
}

// settleCost recomputes the total from the driver's rates when the driver
// carries one; a client-asserted amount is only trusted when no rate exists.
func (s *bookingService) settleCost(b *model.Booking, driver *model.Driver) {
	if b.IsDaily() {
		if driver.PricePerDay > 0 {
			b.TotalCost = driver.PricePerDay * float64(len(b.SelectedDates))
		}
		return
	}
	if driver.PricePerMonth > 0 {
		b.TotalCost = driver.PricePerMonth * float64(b.NumberOfMonths)
	}
}

// acquireDriverLock creates an advisory lock serializing availability
// mutations for one driver. Returns conflict if another request holds it.
func (s *bookingService) acquireDriverLock(ctx context.Context, driverID string) (string, error) {
	lockID := fmt.Sprintf("driver_lock_%s", driverID)

	lock := &model.DriverLock{
		ID:        lockID,
		ExpiresAt: time.Now().Add(s.cfg.DriverLockTTL),
	}

	_, err := s.lockRepo.Create(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", apperrors.Conflict("This driver's availability is currently being updated by another request. Please try again.")
		}
		return "", apperrors.Internal("Failed to acquire driver lock", err)
	}

	return lockID, nil
}

func (s *bookingService) releaseDriverLock(ctx context.Context, lockID string) error {
	return s.lockRepo.Delete(ctx, lockID)
}

func validStatus(status string) bool {
	switch status {
	case model.BookingStatusPending, model.BookingStatusAccepted, model.BookingStatusRejected,
		model.BookingStatusCancelled, model.BookingStatusCompleted:
		return true
	}
	return false
}

func dedupeSorted(dates []string) []string {
	seen := make(map[string]struct{}, len(dates))
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
