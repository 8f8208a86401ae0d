package models

// User mirrors the auth collaborator's account record.
type User struct {
	ID    string `json:"id" gorm:"primaryKey"`
	Email string `json:"email" gorm:"not null"`
}

func (User) TableName() string { return "users" }

// RoleAssignment maps a user to a role in the roles table.
type RoleAssignment struct {
	UserID string `json:"user_id" gorm:"primaryKey"`
	Role   string `json:"role" gorm:"not null"`
}

func (RoleAssignment) TableName() string { return "roles" }

// Session is an authenticated user context.
type Session struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"expires_at"`
}

// IsAdmin reports whether the session carries the admin role.
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}
