package domain

import "time"

type UserRole string

const (
	UserRoleCandidate UserRole = "candidate"
	UserRoleAdmin     UserRole = "admin"
)

type User struct {
	Email        string
	PasswordHash []byte
	Role         UserRole
	CreatedAt    time.Time
	EditedAt     time.Time
}
