package model

import "time"

type LoginRequest struct {
	AdminID  string `json:"adminId" form:"adminId" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// Session is the authentication state of one client.
type Session struct {
	ID            string    `json:"id"`
	Authenticated bool      `json:"authenticated"`
	IssuedAt      time.Time `json:"issuedAt,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
}
