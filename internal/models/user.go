package models

import "time"

// UserRole represents the roles that act on the admissions pipeline.
type UserRole string

const (
	RoleAdmin      UserRole = "ADMIN"
	RoleDirector   UserRole = "DIRECTOR"
	RoleDepartment UserRole = "DEPARTMENT"
)

// User represents a portal account stored in the users table. Department users carry the
// faculty and department their working set is scoped to.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Faculty      string     `db:"faculty" json:"faculty"`
	Department   string     `db:"department" json:"department"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
