package events

import (
	"time"

	"github.com/Dosada05/fractal-system/models"
)

const (
	FractalStarted        EventType = "fractal.started"
	RoundStarted          EventType = "round.started"
	RoundHalfTime         EventType = "round.half_time"
	RoundClosed           EventType = "round.closed"
	RepresentativeElected EventType = "representative.elected"
	ProposalScored        EventType = "proposal.scored"
	FractalClosed         EventType = "fractal.closed"
)

// AllTypes lists every event the engine publishes.
var AllTypes = []EventType{
	FractalStarted, RoundStarted, RoundHalfTime, RoundClosed,
	RepresentativeElected, ProposalScored, FractalClosed,
}

type GroupAssignment struct {
	GroupID   int   `json:"group_id"`
	MemberIDs []int `json:"member_ids"`
}

type FractalStartedEvent struct {
	Fractal     models.Fractal `json:"fractal"`
	MemberCount int            `json:"member_count"`
}

type RoundStartedEvent struct {
	RoundID  int               `json:"round_id"`
	Level    int               `json:"level"`
	Deadline *time.Time        `json:"deadline,omitempty"`
	Groups   []GroupAssignment `json:"groups"`
}

type RoundHalfTimeEvent struct {
	RoundID   int        `json:"round_id"`
	Level     int        `json:"level"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	MemberIDs []int      `json:"member_ids"`
}

type RoundClosedEvent struct {
	RoundID    int `json:"round_id"`
	Level      int `json:"level"`
	GroupCount int `json:"group_count"`
}

type RepresentativeElectedEvent struct {
	RoundID   int                           `json:"round_id"`
	GroupID   int                           `json:"group_id"`
	Level     int                           `json:"level"`
	Ranked    []models.RankedRepresentative `json:"ranked"`
	Delegates []int                         `json:"delegates"`

	// Promoted ложно, если закрытие раунда завершило фрактал
	Promoted bool `json:"promoted"`
}

type ProposalScoredEvent struct {
	ProposalID int     `json:"proposal_id"`
	GroupID    int     `json:"group_id"`
	Level      int     `json:"level"`
	Raw        int     `json:"raw"`
	Total      float64 `json:"total"`
}

type FractalClosedEvent struct {
	FinalRoundID int    `json:"final_round_id"`
	FinalLevel   int    `json:"final_level"`
	GroupCount   int    `json:"group_count"`
	Reason       string `json:"reason"`
}
