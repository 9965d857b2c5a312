package model

import "time"

// Attempt is one recorded submission to an assignment.
// This is a pure domain model with no database-specific tags.
type Attempt struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Assignment  string    `json:"assignment"`
	Solved      bool      `json:"solved"`
	FeedbackKey string    `json:"feedback_key"`
	DelayMs     int64     `json:"delay_ms"`
	ArchiveKey  string    `json:"archive_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Progress summarizes the attempts a user made on an assignment.
type Progress struct {
	UserID        string     `json:"user_id"`
	Assignment    string     `json:"assignment"`
	Attempts      int        `json:"attempts"`
	Solved        bool       `json:"solved"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}
