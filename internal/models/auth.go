package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	FullName   string   `json:"full_name"`
	Role       UserRole `json:"role"`
	Faculty    string   `json:"faculty,omitempty"`
	Department string   `json:"department,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID     string   `json:"user_id"`
	Role       UserRole `json:"role"`
	Email      string   `json:"email"`
	FullName   string   `json:"full_name"`
	Faculty    string   `json:"faculty,omitempty"`
	Department string   `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// Actor identifies who performs a workflow operation and the scope they act within.
type Actor struct {
	UserID     string
	Role       UserRole
	Faculty    string
	Department string
}

// Scoped reports whether the actor is restricted to its matcher working set.
func (a Actor) Scoped() bool {
	return a.Role == RoleDepartment
}

// ActorFromClaims builds an Actor from validated token claims.
func ActorFromClaims(claims *JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role, Faculty: claims.Faculty, Department: claims.Department}
}
