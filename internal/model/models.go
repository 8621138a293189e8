// Package model defines domain structs shared across the event and persistence layers.
package model

import "time"

// Event is a prediction event as delivered on the predictions topic.
// ChannelID stays a string because that is how the platform encodes it;
// callers parse it where a numeric id is required.
type Event struct {
	ID                      string     `json:"id"`
	ChannelID               string     `json:"channel_id"`
	CreatedAt               time.Time  `json:"created_at"`
	Title                   string     `json:"title"`
	PredictionWindowSeconds int64      `json:"prediction_window_seconds"`
	Status                  string     `json:"status"`
	LockedAt                *time.Time `json:"locked_at"`
	EndedAt                 *time.Time `json:"ended_at"`
	Outcomes                []Outcome  `json:"outcomes"`
	WinningOutcomeID        *string    `json:"winning_outcome_id"`
}

// Outcome is one possible resolution of a prediction event.
type Outcome struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	TotalPoints int64  `json:"total_points"`
	TotalUsers  int64  `json:"total_users"`
}

// TotalStaked returns the sum of points staked across all outcomes.
func TotalStaked(outcomes []Outcome) int64 {
	var sum int64
	for _, o := range outcomes {
		sum += o.TotalPoints
	}
	return sum
}

// TotalUsers returns the sum of participants across all outcomes.
func TotalUsers(outcomes []Outcome) int64 {
	var sum int64
	for _, o := range outcomes {
		sum += o.TotalUsers
	}
	return sum
}
