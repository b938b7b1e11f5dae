package auth

import "time"

// User represents an authenticatable account. Its id doubles as the
// subject id used by the authorization gate.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
