package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	bookingserrors "hirewheel/internal/bookings/errors"
	"hirewheel/internal/bookings/repository"
	"hirewheel/internal/bookings/validator"
	driverserrors "hirewheel/internal/drivers/errors"
	"hirewheel/pkg/config"
	mongotx "hirewheel/pkg/db/mongo"
	apperrors "hirewheel/pkg/errors"
	"hirewheel/pkg/logger"
	"hirewheel/pkg/middleware"
	"hirewheel/pkg/model"
)

const (
	testDriverID  = "507f1f77bcf86cd799439011"
	testBookingID = "507f1f77bcf86cd799439022"
)

// ────────────────────────────────────────────────
// Mocks
// ────────────────────────────────────────────────

type mockBookingRepository struct {
	createFunc        func(ctx context.Context, booking *model.Booking) error
	findByIDFunc      func(ctx context.Context, id string) (*model.Booking, error)
	updateStatusFunc  func(ctx context.Context, id string, status string) error
	setReviewFunc     func(ctx context.Context, id string, review *model.Review) error
	findFilteredFunc  func(ctx context.Context, filter repository.BookingFilter, limit int, offset int64) ([]*model.Booking, error)
	countFilteredFunc func(ctx context.Context, filter repository.BookingFilter) (int64, error)
}

func (m *mockBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, booking)
	}
	return nil
}

func (m *mockBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, bookingserrors.ErrNotFound
}

func (m *mockBookingRepository) FindFiltered(ctx context.Context, filter repository.BookingFilter, limit int, offset int64) ([]*model.Booking, error) {
	if m.findFilteredFunc != nil {
		return m.findFilteredFunc(ctx, filter, limit, offset)
	}
	return []*model.Booking{}, nil
}

func (m *mockBookingRepository) CountFiltered(ctx context.Context, filter repository.BookingFilter) (int64, error) {
	if m.countFilteredFunc != nil {
		return m.countFilteredFunc(ctx, filter)
	}
	return 0, nil
}

func (m *mockBookingRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	if m.updateStatusFunc != nil {
		return m.updateStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *mockBookingRepository) SetReview(ctx context.Context, id string, review *model.Review) error {
	if m.setReviewFunc != nil {
		return m.setReviewFunc(ctx, id, review)
	}
	return nil
}

func (m *mockBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

type mockDriverRepository struct {
	findByIDFunc           func(ctx context.Context, id string) (*model.Driver, error)
	findByUserIDFunc       func(ctx context.Context, userID string) (*model.Driver, error)
	mergeBookedDatesFunc   func(ctx context.Context, id string, dates []string) error
	releaseBookedDatesFunc func(ctx context.Context, id string, dates []string) error
}

func (m *mockDriverRepository) Create(ctx context.Context, driver *model.Driver) error {
	return nil
}

func (m *mockDriverRepository) FindByID(ctx context.Context, id string) (*model.Driver, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, driverserrors.ErrNotFound
}

func (m *mockDriverRepository) FindByUserID(ctx context.Context, userID string) (*model.Driver, error) {
	if m.findByUserIDFunc != nil {
		return m.findByUserIDFunc(ctx, userID)
	}
	return nil, driverserrors.ErrNotFound
}

func (m *mockDriverRepository) FindAll(ctx context.Context, city string, limit int, offset int64) ([]*model.Driver, error) {
	return []*model.Driver{}, nil
}

func (m *mockDriverRepository) Count(ctx context.Context, city string) (int64, error) {
	return 0, nil
}

func (m *mockDriverRepository) GetAvailability(ctx context.Context, id string) ([]model.AvailabilityEntry, error) {
	return nil, nil
}

func (m *mockDriverRepository) MergeBookedDates(ctx context.Context, id string, dates []string) error {
	if m.mergeBookedDatesFunc != nil {
		return m.mergeBookedDatesFunc(ctx, id, dates)
	}
	return nil
}

func (m *mockDriverRepository) ReleaseBookedDates(ctx context.Context, id string, dates []string) error {
	if m.releaseBookedDatesFunc != nil {
		return m.releaseBookedDatesFunc(ctx, id, dates)
	}
	return nil
}

func (m *mockDriverRepository) ReplaceUnavailableDates(ctx context.Context, id string, dates []string) ([]model.AvailabilityEntry, error) {
	return nil, nil
}

func (m *mockDriverRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(nil)
}

type mockDriverLockRepository struct {
	createFunc func(ctx context.Context, lock *model.DriverLock) (*model.DriverLock, error)
	deleteFunc func(ctx context.Context, lockID string) error
}

func (m *mockDriverLockRepository) Create(ctx context.Context, lock *model.DriverLock) (*model.DriverLock, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, lock)
	}
	return lock, nil
}

func (m *mockDriverLockRepository) Delete(ctx context.Context, lockID string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, lockID)
	}
	return nil
}

type mockNotifier struct {
	requestCalls  int
	decisionCalls int
	lastAccepted  bool
	requestErr    error
}

func (m *mockNotifier) NotifyNewBookingRequest(ctx context.Context, driver *model.Driver, booking *model.Booking) error {
	m.requestCalls++
	return m.requestErr
}

func (m *mockNotifier) NotifyBookingDecision(ctx context.Context, driver *model.Driver, booking *model.Booking, accepted bool) error {
	m.decisionCalls++
	m.lastAccepted = accepted
	return nil
}

// ────────────────────────────────────────────────
// Fixtures
// ────────────────────────────────────────────────

func testConfig() *config.Config {
	return &config.Config{
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.FormatJSON,
			Service: "test",
		}),
		DriverLockTTL:    10 * time.Second,
		MaxSelectedDates: 30,
	}
}

func testDriver() *model.Driver {
	return &model.Driver{
		ID:            testDriverID,
		UserID:        "driver-user-1",
		Name:          "Ravi Kumar",
		Email:         "ravi@example.com",
		City:          "Mumbai",
		PricePerDay:   1500,
		PricePerMonth: 30000,
	}
}

func pendingDailyBooking() *model.Booking {
	return &model.Booking{
		ID:             testBookingID,
		DriverID:       testDriverID,
		OwnerID:        "owner-1",
		BookingType:    model.BookingTypeDaily,
		SelectedDates:  []string{"2026-09-10", "2026-09-11"},
		PickupLocation: "Mumbai Central",
		Status:         model.BookingStatusPending,
	}
}

type fixture struct {
	repo       *mockBookingRepository
	driverRepo *mockDriverRepository
	lockRepo   *mockDriverLockRepository
	notifier   *mockNotifier
	service    *bookingService
}

func newFixture() *fixture {
	cfg := testConfig()
	f := &fixture{
		repo:       &mockBookingRepository{},
		driverRepo: &mockDriverRepository{},
		lockRepo:   &mockDriverLockRepository{},
		notifier:   &mockNotifier{},
	}
	svc := NewBookingService(
		f.repo,
		f.driverRepo,
		f.lockRepo,
		validator.NewBookingValidator(cfg.Log, cfg.MaxSelectedDates),
		f.notifier,
		cfg,
	)
	f.service = svc.(*bookingService)
	// Pin the clock so date comparisons are deterministic.
	f.service.now = func() time.Time {
		return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	}
	f.driverRepo.findByIDFunc = func(ctx context.Context, id string) (*model.Driver, error) {
		if id == testDriverID {
			return testDriver(), nil
		}
		return nil, driverserrors.ErrNotFound
	}
	return f
}

func appErrorCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	return appErr.Code
}

// ────────────────────────────────────────────────
// Create
// ────────────────────────────────────────────────

func TestCreate_DailyBooking(t *testing.T) {
	f := newFixture()

	var created *model.Booking
	f.repo.createFunc = func(ctx context.Context, booking *model.Booking) error {
		created = booking
		return nil
	}

	booking := pendingDailyBooking()
	booking.ID = ""
	booking.Status = ""
	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}

	if err := f.service.Create(context.Background(), caller, booking); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created == nil {
		t.Fatal("expected booking to be persisted")
	}
	if created.Status != model.BookingStatusPending {
		t.Errorf("expected status pending, got %s", created.Status)
	}
	if f.notifier.requestCalls != 1 {
		t.Errorf("expected 1 request notification, got %d", f.notifier.requestCalls)
	}
}

func TestCreate_DatesDedupedAndSorted(t *testing.T) {
	f := newFixture()

	var created *model.Booking
	f.repo.createFunc = func(ctx context.Context, booking *model.Booking) error {
		created = booking
		return nil
	}

	booking := pendingDailyBooking()
	booking.ID = ""
	booking.SelectedDates = []string{"2026-09-12", "2026-09-10", "2026-09-12", "2026-09-11"}
	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}

	if err := f.service.Create(context.Background(), caller, booking); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"2026-09-10", "2026-09-11", "2026-09-12"}
	if len(created.SelectedDates) != len(want) {
		t.Fatalf("expected %d dates, got %d", len(want), len(created.SelectedDates))
	}
	for i, date := range want {
		if created.SelectedDates[i] != date {
			t.Errorf("date %d: expected %s, got %s", i, date, created.SelectedDates[i])
		}
	}
}

func TestCreate_PastDateRejected(t *testing.T) {
	f := newFixture()
	f.repo.createFunc = func(ctx context.Context, booking *model.Booking) error {
		t.Error("booking must not be persisted when validation fails")
		return nil
	}

	booking := pendingDailyBooking()
	booking.ID = ""
	booking.SelectedDates = []string{"2026-08-31"}
	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}

	err := f.service.Create(context.Background(), caller, booking)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeValidation {
		t.Errorf("expected %s, got %s", apperrors.CodeValidation, code)
	}
}

func TestCreate_TodayAccepted(t *testing.T) {
	f := newFixture()

	booking := pendingDailyBooking()
	booking.ID = ""
	booking.SelectedDates = []string{"2026-09-01"}
	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}

	if err := f.service.Create(context.Background(), caller, booking); err != nil {
		t.Fatalf("expected booking for today to pass, got: %v", err)
	}
}

func TestCreate_BlockedDateConflict(t *testing.T) {
	f := newFixture()
	f.driverRepo.findByIDFunc = func(ctx context.Context, id string) (*model.Driver, error) {
		driver := testDriver()
		driver.Availability = []model.AvailabilityEntry{
			{Date: "2026-09-11", Status: model.AvailabilityBooked},
		}
		return driver, nil
	}
	f.repo.createFunc = func(ctx context.Context, booking *model.Booking) error {
		t.Error("booking must not be persisted on a date conflict")
		return nil
	}

	booking := pendingDailyBooking()
	booking.ID = ""
	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}

	err := f.service.Create(context.Background(), caller, booking)
	if err == nil {
		t.Fatal("expected conflict error")
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != apperrors.CodeConflict {
		t.Errorf("expected %s, got %s", apperrors.CodeConflict, appErr.Code)
	}
	if appErr.Details["date"] != "2026-09-11" {
		t.Errorf("expected conflicting date in details, got %v", appErr.Details)
	}
	if f.notifier.requestCalls != 0 {
		t.Errorf("expected no notification on conflict, got %d", f.notifier.requestCalls)
	}
}

func TestCreate_CostRecomputedFromDriverRates(t *testing.T) {
	f := newFixture()

	var created *model.Booking
	f.repo.createFunc = func(ctx context.Context, booking *model.Booking) error {
		created = booking
		return nil
	}

	booking := pendingDailyBooking()
	booking.ID = ""
	booking.TotalCost = 1 // client-asserted, must be overridden
	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}

	if err := f.service.Create(context.Background(), caller, booking); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.TotalCost != 3000 {
		t.Errorf("expected total cost 3000 (1500 x 2 days), got %v", created.TotalCost)
	}
}

func TestCreate_MonthlyDerivesEndDateAndCost(t *testing.T) {
	f := newFixture()

	var created *model.Booking
	f.repo.createFunc = func(ctx context.Context, booking *model.Booking) error {
		created = booking
		return nil
	}

	booking := &model.Booking{
		DriverID:       testDriverID,
		OwnerID:        "owner-1",
		BookingType:    model.BookingTypeMonthly,
		StartDate:      "2026-10-01",
		NumberOfMonths: 3,
		PickupLocation: "Mumbai Central",
	}
	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}

	if err := f.service.Create(context.Background(), caller, booking); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.EndDate != "2027-01-01" {
		t.Errorf("expected end date 2027-01-01, got %s", created.EndDate)
	}
	if created.TotalCost != 90000 {
		t.Errorf("expected total cost 90000 (30000 x 3 months), got %v", created.TotalCost)
	}
}

func TestCreate_DriverRoleForbidden(t *testing.T) {
	f := newFixture()

	booking := pendingDailyBooking()
	booking.ID = ""
	caller := middleware.Caller{UserID: "driver-user-1", Role: middleware.RoleDriver}

	err := f.service.Create(context.Background(), caller, booking)
	if err == nil {
		t.Fatal("expected forbidden error")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeForbidden {
		t.Errorf("expected %s, got %s", apperrors.CodeForbidden, code)
	}
}

func TestCreate_OwnerCannotBookForAnotherOwner(t *testing.T) {
	f := newFixture()

	booking := pendingDailyBooking()
	booking.ID = ""
	booking.OwnerID = "owner-2"
	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}

	err := f.service.Create(context.Background(), caller, booking)
	if err == nil {
		t.Fatal("expected forbidden error")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeForbidden {
		t.Errorf("expected %s, got %s", apperrors.CodeForbidden, code)
	}
}

// A malformed request fails on its own shape even when the driver does not
// exist; the lookup must not turn a bad payload into a not-found.
func TestCreate_ValidationPrecedesDriverLookup(t *testing.T) {
	f := newFixture()
	f.driverRepo.findByIDFunc = func(ctx context.Context, id string) (*model.Driver, error) {
		t.Error("driver lookup must not run before validation passes")
		return nil, driverserrors.ErrNotFound
	}

	booking := pendingDailyBooking()
	booking.ID = ""
	booking.DriverID = "507f1f77bcf86cd799439099" // unknown driver
	booking.PickupLocation = ""
	booking.SelectedDates = nil
	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}

	err := f.service.Create(context.Background(), caller, booking)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeValidation {
		t.Errorf("expected %s, got %s", apperrors.CodeValidation, code)
	}
}

// A missing driver wins over a bad date: date values are judged only after
// the driver resolves.
func TestCreate_UnknownDriverBeatsPastDate(t *testing.T) {
	f := newFixture()
	f.driverRepo.findByIDFunc = func(ctx context.Context, id string) (*model.Driver, error) {
		return nil, driverserrors.ErrNotFound
	}

	booking := pendingDailyBooking()
	booking.ID = ""
	booking.SelectedDates = []string{"2026-08-31"} // past relative to the pinned clock
	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}

	err := f.service.Create(context.Background(), caller, booking)
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeNotFound {
		t.Errorf("expected %s, got %s", apperrors.CodeNotFound, code)
	}
}

func TestCreate_UnknownDriverNotFound(t *testing.T) {
	f := newFixture()
	f.driverRepo.findByIDFunc = func(ctx context.Context, id string) (*model.Driver, error) {
		return nil, driverserrors.ErrNotFound
	}

	booking := pendingDailyBooking()
	booking.ID = ""
	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}

	err := f.service.Create(context.Background(), caller, booking)
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeNotFound {
		t.Errorf("expected %s, got %s", apperrors.CodeNotFound, code)
	}
}

func TestCreate_NotificationFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture()
	f.notifier.requestErr = errors.New("broker unavailable")

	booking := pendingDailyBooking()
	booking.ID = ""
	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}

	if err := f.service.Create(context.Background(), caller, booking); err != nil {
		t.Fatalf("notification failure must not fail the booking, got: %v", err)
	}
}

// ────────────────────────────────────────────────
// Decide
// ────────────────────────────────────────────────

func TestDecide_AcceptMergesBookedDates(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		return pendingDailyBooking(), nil
	}

	var statusUpdates []string
	f.repo.updateStatusFunc = func(ctx context.Context, id string, status string) error {
		statusUpdates = append(statusUpdates, status)
		return nil
	}

	var mergedDates []string
	f.driverRepo.mergeBookedDatesFunc = func(ctx context.Context, id string, dates []string) error {
		mergedDates = dates
		return nil
	}

	var lockCreated, lockDeleted bool
	f.lockRepo.createFunc = func(ctx context.Context, lock *model.DriverLock) (*model.DriverLock, error) {
		lockCreated = true
		return lock, nil
	}
	f.lockRepo.deleteFunc = func(ctx context.Context, lockID string) error {
		lockDeleted = true
		return nil
	}

	caller := middleware.Caller{UserID: "driver-user-1", Role: middleware.RoleDriver}
	booking, err := f.service.Decide(context.Background(), caller, testBookingID, &model.BookingDecision{Action: model.DecisionAccept})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != model.BookingStatusAccepted {
		t.Errorf("expected status accepted, got %s", booking.Status)
	}
	if len(statusUpdates) != 1 || statusUpdates[0] != model.BookingStatusAccepted {
		t.Errorf("expected one accepted status update, got %v", statusUpdates)
	}
	if len(mergedDates) != 2 {
		t.Errorf("expected 2 dates merged into availability, got %v", mergedDates)
	}
	if !lockCreated || !lockDeleted {
		t.Errorf("expected driver lock acquire and release, got acquire=%v release=%v", lockCreated, lockDeleted)
	}
	if f.notifier.decisionCalls != 1 || !f.notifier.lastAccepted {
		t.Errorf("expected one accepted decision notification, got calls=%d accepted=%v", f.notifier.decisionCalls, f.notifier.lastAccepted)
	}
}

func TestDecide_RejectLeavesAvailabilityUntouched(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		return pendingDailyBooking(), nil
	}
	f.driverRepo.mergeBookedDatesFunc = func(ctx context.Context, id string, dates []string) error {
		t.Error("rejecting must not touch driver availability")
		return nil
	}
	f.lockRepo.createFunc = func(ctx context.Context, lock *model.DriverLock) (*model.DriverLock, error) {
		t.Error("rejecting must not take the driver lock")
		return lock, nil
	}

	caller := middleware.Caller{UserID: "driver-user-1", Role: middleware.RoleDriver}
	booking, err := f.service.Decide(context.Background(), caller, testBookingID, &model.BookingDecision{Action: model.DecisionReject})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != model.BookingStatusRejected {
		t.Errorf("expected status rejected, got %s", booking.Status)
	}
	if f.notifier.decisionCalls != 1 || f.notifier.lastAccepted {
		t.Errorf("expected one rejected decision notification, got calls=%d accepted=%v", f.notifier.decisionCalls, f.notifier.lastAccepted)
	}
}

func TestDecide_AlreadyDecidedConflict(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		booking := pendingDailyBooking()
		booking.Status = model.BookingStatusAccepted
		return booking, nil
	}

	caller := middleware.Caller{UserID: "driver-user-1", Role: middleware.RoleDriver}
	_, err := f.service.Decide(context.Background(), caller, testBookingID, &model.BookingDecision{Action: model.DecisionAccept})
	if err == nil {
		t.Fatal("expected conflict error")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeConflict {
		t.Errorf("expected %s, got %s", apperrors.CodeConflict, code)
	}
}

func TestDecide_OnlyDriverOrAdmin(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		return pendingDailyBooking(), nil
	}

	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}
	_, err := f.service.Decide(context.Background(), caller, testBookingID, &model.BookingDecision{Action: model.DecisionAccept})
	if err == nil {
		t.Fatal("expected forbidden error for the owner deciding")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeForbidden {
		t.Errorf("expected %s, got %s", apperrors.CodeForbidden, code)
	}

	admin := middleware.Caller{UserID: "admin-1", Role: middleware.RoleAdmin}
	if _, err := f.service.Decide(context.Background(), admin, testBookingID, &model.BookingDecision{Action: model.DecisionAccept}); err != nil {
		t.Fatalf("expected admin to be allowed, got: %v", err)
	}
}

func TestDecide_HeldLockConflicts(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		return pendingDailyBooking(), nil
	}
	f.lockRepo.createFunc = func(ctx context.Context, lock *model.DriverLock) (*model.DriverLock, error) {
		return nil, mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000}}}
	}

	caller := middleware.Caller{UserID: "driver-user-1", Role: middleware.RoleDriver}
	_, err := f.service.Decide(context.Background(), caller, testBookingID, &model.BookingDecision{Action: model.DecisionAccept})
	if err == nil {
		t.Fatal("expected conflict error while the lock is held")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeConflict {
		t.Errorf("expected %s, got %s", apperrors.CodeConflict, code)
	}
}

func TestDecide_MonthlyAcceptSkipsAvailability(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		return &model.Booking{
			ID:             testBookingID,
			DriverID:       testDriverID,
			OwnerID:        "owner-1",
			BookingType:    model.BookingTypeMonthly,
			StartDate:      "2026-10-01",
			NumberOfMonths: 2,
			Status:         model.BookingStatusPending,
		}, nil
	}
	f.driverRepo.mergeBookedDatesFunc = func(ctx context.Context, id string, dates []string) error {
		t.Error("monthly accept must not merge booked dates")
		return nil
	}

	caller := middleware.Caller{UserID: "driver-user-1", Role: middleware.RoleDriver}
	booking, err := f.service.Decide(context.Background(), caller, testBookingID, &model.BookingDecision{Action: model.DecisionAccept})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != model.BookingStatusAccepted {
		t.Errorf("expected status accepted, got %s", booking.Status)
	}
}

// ────────────────────────────────────────────────
// Close
// ────────────────────────────────────────────────

func TestClose_CancelReleasesBookedDates(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		booking := pendingDailyBooking()
		booking.Status = model.BookingStatusAccepted
		return booking, nil
	}

	var releasedDates []string
	f.driverRepo.releaseBookedDatesFunc = func(ctx context.Context, id string, dates []string) error {
		releasedDates = dates
		return nil
	}

	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}
	booking, err := f.service.Close(context.Background(), caller, testBookingID, &model.BookingClosure{Status: model.BookingStatusCancelled})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != model.BookingStatusCancelled {
		t.Errorf("expected status cancelled, got %s", booking.Status)
	}
	if len(releasedDates) != 2 {
		t.Errorf("expected 2 dates released, got %v", releasedDates)
	}
}

func TestClose_CompleteKeepsBookedDates(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		booking := pendingDailyBooking()
		booking.Status = model.BookingStatusAccepted
		return booking, nil
	}
	f.driverRepo.releaseBookedDatesFunc = func(ctx context.Context, id string, dates []string) error {
		t.Error("completion must not release booked dates")
		return nil
	}

	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}
	booking, err := f.service.Close(context.Background(), caller, testBookingID, &model.BookingClosure{Status: model.BookingStatusCompleted})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != model.BookingStatusCompleted {
		t.Errorf("expected status completed, got %s", booking.Status)
	}
}

func TestClose_PendingBookingConflicts(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		return pendingDailyBooking(), nil
	}

	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}
	_, err := f.service.Close(context.Background(), caller, testBookingID, &model.BookingClosure{Status: model.BookingStatusCancelled})
	if err == nil {
		t.Fatal("expected conflict error for closing a pending booking")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeConflict {
		t.Errorf("expected %s, got %s", apperrors.CodeConflict, code)
	}
}

func TestClose_StrangerForbidden(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		booking := pendingDailyBooking()
		booking.Status = model.BookingStatusAccepted
		return booking, nil
	}

	caller := middleware.Caller{UserID: "owner-2", Role: middleware.RoleOwner}
	_, err := f.service.Close(context.Background(), caller, testBookingID, &model.BookingClosure{Status: model.BookingStatusCancelled})
	if err == nil {
		t.Fatal("expected forbidden error")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeForbidden {
		t.Errorf("expected %s, got %s", apperrors.CodeForbidden, code)
	}
}

// ────────────────────────────────────────────────
// AttachReview
// ────────────────────────────────────────────────

func TestAttachReview_CompletedBooking(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		booking := pendingDailyBooking()
		booking.Status = model.BookingStatusCompleted
		return booking, nil
	}

	var savedReview *model.Review
	f.repo.setReviewFunc = func(ctx context.Context, id string, review *model.Review) error {
		savedReview = review
		return nil
	}

	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}
	booking, err := f.service.AttachReview(context.Background(), caller, testBookingID, &model.Review{Rating: 5, Comment: "  smooth ride  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if savedReview == nil {
		t.Fatal("expected review to be persisted")
	}
	if savedReview.Comment != "smooth ride" {
		t.Errorf("expected trimmed comment, got %q", savedReview.Comment)
	}
	if savedReview.CreatedAt.IsZero() {
		t.Error("expected review timestamp to be set")
	}
	if booking.Review == nil {
		t.Error("expected review attached to returned booking")
	}
}

func TestAttachReview_SecondReviewConflicts(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		booking := pendingDailyBooking()
		booking.Status = model.BookingStatusCompleted
		booking.Review = &model.Review{Rating: 4}
		return booking, nil
	}

	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}
	_, err := f.service.AttachReview(context.Background(), caller, testBookingID, &model.Review{Rating: 5})
	if err == nil {
		t.Fatal("expected conflict error for second review")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeConflict {
		t.Errorf("expected %s, got %s", apperrors.CodeConflict, code)
	}
}

func TestAttachReview_PendingBookingConflicts(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		return pendingDailyBooking(), nil
	}

	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}
	_, err := f.service.AttachReview(context.Background(), caller, testBookingID, &model.Review{Rating: 5})
	if err == nil {
		t.Fatal("expected conflict error for reviewing a pending booking")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeConflict {
		t.Errorf("expected %s, got %s", apperrors.CodeConflict, code)
	}
}

func TestAttachReview_OnlyOwner(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		booking := pendingDailyBooking()
		booking.Status = model.BookingStatusCompleted
		return booking, nil
	}

	caller := middleware.Caller{UserID: "driver-user-1", Role: middleware.RoleDriver}
	_, err := f.service.AttachReview(context.Background(), caller, testBookingID, &model.Review{Rating: 5})
	if err == nil {
		t.Fatal("expected forbidden error for driver reviewing")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeForbidden {
		t.Errorf("expected %s, got %s", apperrors.CodeForbidden, code)
	}
}

// ────────────────────────────────────────────────
// List / GetByID
// ────────────────────────────────────────────────

func TestList_OwnerScopedToOwnBookings(t *testing.T) {
	f := newFixture()

	var capturedFilter repository.BookingFilter
	f.repo.findFilteredFunc = func(ctx context.Context, filter repository.BookingFilter, limit int, offset int64) ([]*model.Booking, error) {
		capturedFilter = filter
		return []*model.Booking{pendingDailyBooking()}, nil
	}
	f.repo.countFilteredFunc = func(ctx context.Context, filter repository.BookingFilter) (int64, error) {
		return 1, nil
	}

	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}
	bookings, count, err := f.service.List(context.Background(), caller, "", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedFilter.OwnerID != "owner-1" {
		t.Errorf("expected filter scoped to owner-1, got %q", capturedFilter.OwnerID)
	}
	if count != 1 || len(bookings) != 1 {
		t.Errorf("expected 1 booking, got count=%d len=%d", count, len(bookings))
	}
}

func TestList_DriverScopedThroughProfile(t *testing.T) {
	f := newFixture()
	f.driverRepo.findByUserIDFunc = func(ctx context.Context, userID string) (*model.Driver, error) {
		return testDriver(), nil
	}

	var capturedFilter repository.BookingFilter
	f.repo.findFilteredFunc = func(ctx context.Context, filter repository.BookingFilter, limit int, offset int64) ([]*model.Booking, error) {
		capturedFilter = filter
		return []*model.Booking{}, nil
	}

	caller := middleware.Caller{UserID: "driver-user-1", Role: middleware.RoleDriver}
	if _, _, err := f.service.List(context.Background(), caller, "", 10, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedFilter.DriverID != testDriverID {
		t.Errorf("expected filter scoped to driver %s, got %q", testDriverID, capturedFilter.DriverID)
	}
}

func TestList_DriverWithoutProfileGetsEmptyResult(t *testing.T) {
	f := newFixture()
	f.driverRepo.findByUserIDFunc = func(ctx context.Context, userID string) (*model.Driver, error) {
		return nil, driverserrors.ErrNotFound
	}

	caller := middleware.Caller{UserID: "driver-user-9", Role: middleware.RoleDriver}
	bookings, count, err := f.service.List(context.Background(), caller, "", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 || len(bookings) != 0 {
		t.Errorf("expected empty result, got count=%d len=%d", count, len(bookings))
	}
}

func TestList_InvalidStatusRejected(t *testing.T) {
	f := newFixture()

	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}
	_, _, err := f.service.List(context.Background(), caller, "archived", 10, 0)
	if err == nil {
		t.Fatal("expected invalid input error")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeInvalidInput {
		t.Errorf("expected %s, got %s", apperrors.CodeInvalidInput, code)
	}
}

func TestGetByID_ParticipantsOnly(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		return pendingDailyBooking(), nil
	}

	owner := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}
	if _, err := f.service.GetByID(context.Background(), owner, testBookingID); err != nil {
		t.Errorf("expected owner access, got: %v", err)
	}

	driver := middleware.Caller{UserID: "driver-user-1", Role: middleware.RoleDriver}
	if _, err := f.service.GetByID(context.Background(), driver, testBookingID); err != nil {
		t.Errorf("expected driver access, got: %v", err)
	}

	stranger := middleware.Caller{UserID: "owner-2", Role: middleware.RoleOwner}
	_, err := f.service.GetByID(context.Background(), stranger, testBookingID)
	if err == nil {
		t.Fatal("expected forbidden error for a stranger")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeForbidden {
		t.Errorf("expected %s, got %s", apperrors.CodeForbidden, code)
	}
}

func TestGetByID_UnknownBookingNotFound(t *testing.T) {
	f := newFixture()
	f.repo.findByIDFunc = func(ctx context.Context, id string) (*model.Booking, error) {
		return nil, bookingserrors.ErrNotFound
	}

	caller := middleware.Caller{UserID: "owner-1", Role: middleware.RoleOwner}
	_, err := f.service.GetByID(context.Background(), caller, testBookingID)
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if code := appErrorCode(t, err); code != apperrors.CodeNotFound {
		t.Errorf("expected %s, got %s", apperrors.CodeNotFound, code)
	}
}
