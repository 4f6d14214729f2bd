package domain

import "time"

// User is an account allowed to submit and manage jobs.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
