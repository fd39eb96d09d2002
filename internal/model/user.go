package model

import "time"

type User struct {
	Principal    string    `json:"principal"`
	DisplayName  string    `json:"display_name,omitempty"`
	IsAdmin      bool      `json:"is_admin"`
	Suspended    bool      `json:"suspended"`
	PasswordHash string    `json:"-"` // admin accounts only
	TotalEarned  int64     `json:"total_earned"` // lifetime net earnings, micro-units
	CreatedAt    time.Time `json:"created_at"`
}
