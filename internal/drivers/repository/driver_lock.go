package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"hirewheel/pkg/config"
	"hirewheel/pkg/model"
)

// DriverLockRepository provides operations for per-driver advisory locks
type DriverLockRepository interface {
	Create(ctx context.Context, lock *model.DriverLock) (*model.DriverLock, error)
	Delete(ctx context.Context, lockID string) error
}

type mongoDriverLockRepository struct {
	collection *mongo.Collection
}

func NewDriverLockRepository(cfg *config.Config) DriverLockRepository {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoDriverLockRepository{
		collection: db.Collection("Driver_locks"),
	}
}

// Returns duplicate key error if lock already exists
func (r *mongoDriverLockRepository) Create(ctx context.Context, lock *model.DriverLock) (*model.DriverLock, error) {
	lock.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, lock)
	if err != nil {
		return nil, err
	}

	return lock, nil
}

// Delete removes an advisory lock
func (r *mongoDriverLockRepository) Delete(ctx context.Context, lockID string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID})
	return err
}
