package dto

import (
	"time"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

// ErrorResponse carries a business error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse carries an authentication error.
type MessageResponse struct {
	Msg string `json:"msg"`
}

// FailureReport is the optional body of POST /order-failed.
type FailureReport struct {
	ErrorText *string `json:"error_text"`
}

// ErrorLogResponse is one popped diagnostic entry.
type ErrorLogResponse struct {
	ID            int64     `json:"id"`
	RecordCreated time.Time `json:"record_created"`
	Text          string    `json:"text"`
}

// UserStatsResponse summarises builds of one user.
type UserStatsResponse struct {
	LastBuildDate        time.Time `json:"last_build_date"`
	SuccessfulBuildCount int       `json:"successful_build_count"`
	FailedBuildCount     int       `json:"failed_build_count"`
}

func NewUserStatsResponse(s *model.UserBuildStats) UserStatsResponse {
	return UserStatsResponse{
		LastBuildDate:        s.LastBuildDate,
		SuccessfulBuildCount: s.SuccessfulBuildCount,
		FailedBuildCount:     s.FailedBuildCount,
	}
}
