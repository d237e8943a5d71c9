package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

type ProposalKind string

const (
	ProposalKindBase       ProposalKind = "base"
	ProposalKindPropagated ProposalKind = "propagated"
	ProposalKindMerged     ProposalKind = "merged"
)

// RoundScores maps a round level to the raw score recorded when that round
// closed. A level that is absent was never scored.
type RoundScores map[int]int

func (s RoundScores) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[int]int(s))
}

func (s *RoundScores) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*s = RoundScores{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("round scores: unsupported source type")
	}
	m := map[int]int{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*s = m
	return nil
}

type Proposal struct {
	ID         int          `json:"id" db:"id"`
	FractalID  int          `json:"fractal_id" db:"fractal_id"`
	RoundID    int          `json:"round_id" db:"round_id"`
	GroupID    int          `json:"group_id" db:"group_id"`
	CreatorID  int          `json:"creator_id" db:"creator_id"`
	Title      string       `json:"title" db:"title"`
	Body       string       `json:"body" db:"body"`
	Kind       ProposalKind `json:"kind" db:"kind"`
	Scores     RoundScores  `json:"round_scores" db:"round_scores"`
	TotalScore float64      `json:"total_score" db:"total_score"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}

type Comment struct {
	ID         int         `json:"id" db:"id"`
	ProposalID int         `json:"proposal_id" db:"proposal_id"`
	ParentID   *int        `json:"parent_id,omitempty" db:"parent_id"`
	GroupID    int         `json:"group_id" db:"group_id"`
	CreatorID  int         `json:"creator_id" db:"creator_id"`
	Body       string      `json:"body" db:"body"`
	Scores     RoundScores `json:"round_scores" db:"round_scores"`
	TotalScore float64     `json:"total_score" db:"total_score"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
}
