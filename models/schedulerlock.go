package models

import "time"

// SchedulerLock is a lease on a background job held by one API instance
type SchedulerLock struct {
	ID        string    `bson:"_id"`
	Owner     string    `bson:"owner"`
	ExpiresAt time.Time `bson:"expiresAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}
