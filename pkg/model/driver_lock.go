package model

import "time"

// DriverLock is an advisory lock serializing availability mutations for one
// driver. The unique _id doubles as the lock key; expires_at backs a TTL
// index so abandoned locks clear themselves.
type DriverLock struct {
	ID        string    `bson:"_id" json:"id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
