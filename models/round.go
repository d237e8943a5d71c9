package models

import "time"

type RoundStatus string

const (
	RoundStatusOpen   RoundStatus = "open"
	RoundStatusClosed RoundStatus = "closed"
)

type Round struct {
	ID               int         `json:"id" db:"id"`
	FractalID        int         `json:"fractal_id" db:"fractal_id"`
	Level            int         `json:"level" db:"level"`
	Status           RoundStatus `json:"status" db:"status"`
	StartedAt        time.Time   `json:"started_at" db:"started_at"`
	Deadline         *time.Time  `json:"deadline,omitempty" db:"deadline"`
	EndedAt          *time.Time  `json:"ended_at,omitempty" db:"ended_at"`
	HalfTimeNotified bool        `json:"-" db:"half_time_notified"`
}

func (r Round) IsOpen() bool {
	return r.Status == RoundStatusOpen
}

// HalfTime returns the midpoint between start and deadline.
func (r Round) HalfTime() (time.Time, bool) {
	if r.Deadline == nil {
		return time.Time{}, false
	}
	return r.StartedAt.Add(r.Deadline.Sub(r.StartedAt) / 2), true
}

type Group struct {
	ID        int       `json:"id" db:"id"`
	RoundID   int       `json:"round_id" db:"round_id"`
	FractalID int       `json:"fractal_id" db:"fractal_id"`
	Level     int       `json:"level" db:"level"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Members []Member `json:"members,omitempty" db:"-"`
}

type GroupMembership struct {
	ID         int        `json:"id" db:"id"`
	GroupID    int        `json:"group_id" db:"group_id"`
	MemberID   int        `json:"member_id" db:"member_id"`
	JoinedAt   time.Time  `json:"joined_at" db:"joined_at"`
	LeftAt     *time.Time `json:"left_at,omitempty" db:"left_at"`
	ReplacedBy *int       `json:"replaced_by,omitempty" db:"replaced_by"`
}
