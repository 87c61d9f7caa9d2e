package mongo

import (
	"context"
	"hirewheel/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// InsertEvent describes one document inserted into a watched collection.
type InsertEvent struct {
	DocumentID string
}

// ChangeFeed tails a collection's change stream, filtered to insert
// operations. Change streams require a replica set; callers must treat a
// watch error as a soft failure and keep serving from in-process state.
type ChangeFeed struct {
	collection *mongo.Collection
	log        *logger.Logger
}

func NewChangeFeed(collection *mongo.Collection, log *logger.Logger) *ChangeFeed {
	return &ChangeFeed{
		collection: collection,
		log:        log,
	}
}

// WatchInserts opens a change stream over inserts whose full document
// matches the filter, and pumps the inserted ids into the returned channel
// until the context is cancelled or the stream breaks. The returned stop
// function is idempotent.
func (f *ChangeFeed) WatchInserts(ctx context.Context, filter bson.M) (<-chan InsertEvent, func(), error) {
	match := bson.M{"operationType": "insert"}
	for field, value := range filter {
		match["fullDocument."+field] = value
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
	}

	watchCtx, cancel := context.WithCancel(ctx)
	stream, err := f.collection.Watch(watchCtx, pipeline)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	events := make(chan InsertEvent)
	go f.pump(watchCtx, stream, events)

	return events, cancel, nil
}

func (f *ChangeFeed) pump(ctx context.Context, stream *mongo.ChangeStream, events chan<- InsertEvent) {
	defer close(events)
	defer func() {
		closeCtx := context.WithoutCancel(ctx)
		if err := stream.Close(closeCtx); err != nil {
			f.log.Warn("Failed to close change stream", "error", err)
		}
	}()

	for stream.Next(ctx) {
		var doc struct {
			FullDocument struct {
				ID primitive.ObjectID `bson:"_id"`
			} `bson:"fullDocument"`
		}
		if err := stream.Decode(&doc); err != nil {
			f.log.Warn("Failed to decode change stream event", "error", err)
			continue
		}

		select {
		case events <- InsertEvent{DocumentID: doc.FullDocument.ID.Hex()}:
		case <-ctx.Done():
			return
		}
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		f.log.Warn("Change stream terminated", "error", err)
	}
}
