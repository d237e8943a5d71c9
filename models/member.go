package models

import "time"

// Platform identifies where a member's external id comes from.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformDiscord  Platform = "discord"
	PlatformWeb      Platform = "web"
)

// UserRole приходит в claim "role" токена платформенного адаптера.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)

// Member is unique across the system by (platform, external_id).
type Member struct {
	ID              int       `json:"id" db:"id"`
	Platform        Platform  `json:"platform" db:"platform"`
	ExternalID      string    `json:"external_id" db:"external_id"`
	Username        *string   `json:"username,omitempty" db:"username"`
	DisplayName     string    `json:"display_name" db:"display_name"`
	ActiveFractalID *int      `json:"active_fractal_id,omitempty" db:"active_fractal_id"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// MemberInfo is what a platform adapter knows about a joining participant.
type MemberInfo struct {
	Platform    Platform `json:"platform"`
	ExternalID  string   `json:"external_id"`
	Username    *string  `json:"username,omitempty"`
	DisplayName string   `json:"display_name"`
}

type FractalMembership struct {
	ID        int        `json:"id" db:"id"`
	FractalID int        `json:"fractal_id" db:"fractal_id"`
	MemberID  int        `json:"member_id" db:"member_id"`
	JoinedAt  time.Time  `json:"joined_at" db:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty" db:"left_at"`
}

// Active reports whether the membership has not been soft-removed.
func (m FractalMembership) Active() bool {
	return m.LeftAt == nil
}
