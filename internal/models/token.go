package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims carries the identity embedded in access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Actor converts token claims into the actor threaded through services.
func (c *JWTClaims) Actor() Actor {
	return Actor{ID: c.UserID, Role: c.Role}
}

// LoginRequest captures login credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse is returned on successful authentication.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	User        UserInfo  `json:"user"`
}

// UserInfo is the public identity payload embedded in login responses.
type UserInfo struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}
