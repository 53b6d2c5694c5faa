package model

import "time"

// UserBuildStats aggregates build outcomes per hashed user id.
type UserBuildStats struct {
	UserIDHash           string
	LastBuildDate        time.Time
	SuccessfulBuildCount int
	FailedBuildCount     int
}

// ErrorLog is an entry of the diagnostic sink.
type ErrorLog struct {
	ID            int64
	RecordCreated time.Time
	Text          string
}
