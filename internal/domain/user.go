package domain

import "time"

// User is the domain model for customers who submit tickets.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Identity is the authenticated caller, passed explicitly into every
// ticket operation.
type Identity struct {
	UserID    string
	Email     string
	SessionID string
}
