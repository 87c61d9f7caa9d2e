package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	driverserrors "hirewheel/internal/drivers/errors"
	"hirewheel/internal/drivers/repository"
	"hirewheel/internal/drivers/validator"
	"hirewheel/pkg/config"
	apperrors "hirewheel/pkg/errors"
	"hirewheel/pkg/middleware"
	"hirewheel/pkg/model"
	"hirewheel/pkg/sanitizer"
)

type DriverService interface {
	Create(ctx context.Context, caller middleware.Caller, driver *model.Driver) error
	GetByID(ctx context.Context, id string) (*model.Driver, error)
	GetAll(ctx context.Context, city string, limit int, offset int64) ([]*model.Driver, int64, error)
	GetAvailability(ctx context.Context, driverID string) ([]model.AvailabilityEntry, error)
	ReplaceUnavailableDates(ctx context.Context, caller middleware.Caller, driverID string, update *model.AvailabilityUpdate) ([]model.AvailabilityEntry, error)
}

type driverService struct {
	repo      repository.DriverRepository
	lockRepo  repository.DriverLockRepository
	validator *validator.DriverValidator
	cfg       *config.Config
}

func NewDriverService(
	repo repository.DriverRepository,
	lockRepo repository.DriverLockRepository,
	validator *validator.DriverValidator,
	cfg *config.Config,
) DriverService {
	return &driverService{
		repo:      repo,
		lockRepo:  lockRepo,
		validator: validator,
		cfg:       cfg,
	}
}

func (s *driverService) Create(ctx context.Context, caller middleware.Caller, driver *model.Driver) error {
	if caller.Role == middleware.RoleOwner {
		return apperrors.Forbidden("Only drivers can create a driver profile")
	}
	if driver.UserID == "" {
		driver.UserID = caller.UserID
	}
	if caller.Role == middleware.RoleDriver && driver.UserID != caller.UserID {
		return apperrors.Forbidden("Drivers can only create their own profile")
	}

	s.sanitize(driver)
	if err := s.validator.Validate(driver); err != nil {
		s.cfg.Log.Warn("Driver validation failed", "user_id", driver.UserID, "error", err)
		return apperrors.Validation("Driver validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	if err := s.repo.Create(ctx, driver); err != nil {
		s.cfg.Log.Error("Failed to create driver", "user_id", driver.UserID, "error", err)
		return apperrors.Internal("Failed to create driver", err)
	}

	s.cfg.Log.Info("Driver created successfully", "id", driver.ID, "user_id", driver.UserID, "city", driver.City)
	return nil
}

func (s *driverService) GetByID(ctx context.Context, id string) (*model.Driver, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Driver ID cannot be empty")
	}

	driver, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateRepoError(err, id)
	}

	return driver, nil
}

func (s *driverService) GetAll(ctx context.Context, city string, limit int, offset int64) ([]*model.Driver, int64, error) {
	var count int64
	var drivers []*model.Driver
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx, city)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count drivers", "error", errCount)
			errCount = apperrors.Internal("Failed to count drivers", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		drivers, errFind = s.repo.FindAll(ctx, city, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list drivers", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve drivers", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return drivers, count, nil
}

func (s *driverService) GetAvailability(ctx context.Context, driverID string) ([]model.AvailabilityEntry, error) {
	if driverID == "" {
		return nil, apperrors.InvalidInput("Driver ID cannot be empty")
	}

	availability, err := s.repo.GetAvailability(ctx, driverID)
	if err != nil {
		return nil, translateRepoError(err, driverID)
	}

	return availability, nil
}

func (s *driverService) ReplaceUnavailableDates(ctx context.Context, caller middleware.Caller, driverID string, update *model.AvailabilityUpdate) ([]model.AvailabilityEntry, error) {
	if driverID == "" {
		return nil, apperrors.InvalidInput("Driver ID cannot be empty")
	}
	if err := s.validator.ValidateAvailabilityUpdate(update); err != nil {
		s.cfg.Log.Warn("Availability update validation failed", "driver_id", driverID, "error", err)
		return nil, apperrors.Validation("Availability update validation failed", map[string]any{
			"error": err.Error(),
		})
	}

	driver, err := s.repo.FindByID(ctx, driverID)
	if err != nil {
		return nil, translateRepoError(err, driverID)
	}
	if caller.Role != middleware.RoleAdmin && driver.UserID != caller.UserID {
		return nil, apperrors.Forbidden("Only the driver can update their availability")
	}

	dates := dedupeSorted(update.Dates)

	lockID, err := s.acquireDriverLock(ctx, driverID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := s.releaseDriverLock(ctx, lockID); releaseErr != nil {
			s.cfg.Log.Warn("Failed to release driver lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	availability, err := s.repo.ReplaceUnavailableDates(ctx, driverID, dates)
	if err != nil {
		s.cfg.Log.Error("Failed to replace unavailable dates", "driver_id", driverID, "error", err)
		return nil, translateRepoError(err, driverID)
	}

	s.cfg.Log.Info("Driver availability replaced",
		"driver_id", driverID,
		"unavailable_count", len(dates),
		"total_entries", len(availability),
	)
	return availability, nil
}

// --- Helpers ---

func (s *driverService) sanitize(d *model.Driver) {
	d.Name = sanitizer.TrimAndNormalize(d.Name)
	d.City = sanitizer.NormalizeLocation(d.City)
	d.Bio = sanitizer.TrimAndNormalize(d.Bio)
	d.Phone = sanitizer.NormalizePhone(d.Phone)
	d.Languages = sanitizer.SanitizeSlice(d.Languages, sanitizer.NormalizeLanguage)
}

// acquireDriverLock creates an advisory lock serializing availability
// mutations for one driver. Returns conflict if another request holds it.
func (s *driverService) acquireDriverLock(ctx context.Context, driverID string) (string, error) {
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

func (s *driverService) releaseDriverLock(ctx context.Context, lockID string) error {
	return s.lockRepo.Delete(ctx, lockID)
}

func translateRepoError(err error, id string) error {
	if errors.Is(err, driverserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Driver", id)
	}
	if errors.Is(err, driverserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid driver ID format")
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Internal("Failed to access driver record", err)
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
