package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	driverserrors "hirewheel/internal/drivers/errors"
	"hirewheel/pkg/config"
	mongotx "hirewheel/pkg/db/mongo"
	"hirewheel/pkg/model"
)

const (
	CollectionName = "Drivers"
)

type mongoDriverRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

type DriverRepository interface {
	Create(ctx context.Context, driver *model.Driver) error
	FindByID(ctx context.Context, id string) (*model.Driver, error)
	FindByUserID(ctx context.Context, userID string) (*model.Driver, error)
	FindAll(ctx context.Context, city string, limit int, offset int64) ([]*model.Driver, error)
	Count(ctx context.Context, city string) (int64, error)
	GetAvailability(ctx context.Context, id string) ([]model.AvailabilityEntry, error)
	MergeBookedDates(ctx context.Context, id string, dates []string) error
	ReleaseBookedDates(ctx context.Context, id string, dates []string) error
	ReplaceUnavailableDates(ctx context.Context, id string, dates []string) ([]model.AvailabilityEntry, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoDriverRepository(cfg *config.Config) DriverRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoDriverRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo.Client),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// When inside a transaction (SessionContext), returns the original context
// unchanged with a no-op cancel function, as wrapping a SessionContext breaks
// transaction semantics.
func (r *mongoDriverRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoDriverRepository) Create(ctx context.Context, driver *model.Driver) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	driver.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if driver.Availability == nil {
		driver.Availability = []model.AvailabilityEntry{}
	}

	result, err := r.collection.InsertOne(ctx, driver)
	if err != nil {
		return fmt.Errorf("failed to create driver: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		driver.ID = oid.Hex()
	}
	return nil
}

func (r *mongoDriverRepository) FindByID(ctx context.Context, id string) (*model.Driver, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", driverserrors.ErrInvalidID, id)
	}

	var driver model.Driver
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&driver)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, driverserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find driver: %w", err)
	}

	return &driver, nil
}

func (r *mongoDriverRepository) FindByUserID(ctx context.Context, userID string) (*model.Driver, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	var driver model.Driver
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&driver)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, driverserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find driver by user: %w", err)
	}

	return &driver, nil
}

func (r *mongoDriverRepository) FindAll(ctx context.Context, city string, limit int, offset int64) ([]*model.Driver, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	filter := bson.M{}
	if city != "" {
		filter["city"] = city
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find drivers: %w", err)
	}
	defer cursor.Close(ctx)

	var drivers []*model.Driver
	if err = cursor.All(ctx, &drivers); err != nil {
		return nil, fmt.Errorf("failed to decode drivers: %w", err)
	}

	return drivers, nil
}

func (r *mongoDriverRepository) Count(ctx context.Context, city string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	filter := bson.M{}
	if city != "" {
		filter["city"] = city
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count drivers: %w", err)
	}

	return count, nil
}

func (r *mongoDriverRepository) GetAvailability(ctx context.Context, id string) ([]model.AvailabilityEntry, error) {
	driver, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return driver.Availability, nil
}

// MergeBookedDates upserts every date into the driver's availability with
// status booked, last write wins per date key. Callers must hold the driver
// advisory lock.
func (r *mongoDriverRepository) MergeBookedDates(ctx context.Context, id string, dates []string) error {
	driver, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	merged := availabilityByDate(driver.Availability)
	for _, date := range dates {
		merged[date] = model.AvailabilityEntry{Date: date, Status: model.AvailabilityBooked}
	}

	return r.setAvailability(ctx, id, sortedAvailability(merged))
}

// ReleaseBookedDates removes booked entries for the given dates, leaving
// unavailable entries untouched. Callers must hold the driver advisory lock.
func (r *mongoDriverRepository) ReleaseBookedDates(ctx context.Context, id string, dates []string) error {
	driver, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	release := make(map[string]struct{}, len(dates))
	for _, date := range dates {
		release[date] = struct{}{}
	}

	remaining := make([]model.AvailabilityEntry, 0, len(driver.Availability))
	for _, entry := range driver.Availability {
		if _, ok := release[entry.Date]; ok && entry.Status == model.AvailabilityBooked {
			continue
		}
		remaining = append(remaining, entry)
	}

	return r.setAvailability(ctx, id, remaining)
}

// ReplaceUnavailableDates swaps the entire unavailable subset for the given
// dates while preserving booked entries. Callers must hold the driver
// advisory lock.
func (r *mongoDriverRepository) ReplaceUnavailableDates(ctx context.Context, id string, dates []string) ([]model.AvailabilityEntry, error) {
	driver, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	replaced := map[string]model.AvailabilityEntry{}
	for _, entry := range driver.Availability {
		if entry.Status == model.AvailabilityBooked {
			replaced[entry.Date] = entry
		}
	}
	for _, date := range dates {
		// Booked entries win over a driver-submitted block on the same date.
		if _, ok := replaced[date]; !ok {
			replaced[date] = model.AvailabilityEntry{Date: date, Status: model.AvailabilityUnavailable}
		}
	}

	availability := sortedAvailability(replaced)
	if err := r.setAvailability(ctx, id, availability); err != nil {
		return nil, err
	}

	return availability, nil
}

func (r *mongoDriverRepository) setAvailability(ctx context.Context, id string, availability []model.AvailabilityEntry) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.RequestTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", driverserrors.ErrInvalidID, id)
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"availability": availability}},
	)
	if err != nil {
		return fmt.Errorf("failed to update driver availability: %w", err)
	}
	if result.MatchedCount == 0 {
		return driverserrors.ErrNotFound
	}

	return nil
}

func (r *mongoDriverRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func availabilityByDate(entries []model.AvailabilityEntry) map[string]model.AvailabilityEntry {
	byDate := make(map[string]model.AvailabilityEntry, len(entries))
	for _, entry := range entries {
		byDate[entry.Date] = entry
	}
	return byDate
}

func sortedAvailability(byDate map[string]model.AvailabilityEntry) []model.AvailabilityEntry {
	entries := make([]model.AvailabilityEntry, 0, len(byDate))
	for _, entry := range byDate {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Date < entries[j].Date })
	return entries
}
