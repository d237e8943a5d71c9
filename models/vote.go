package models

import "time"

const (
	MinProposalScore = 1
	MaxProposalScore = 10
)

// RepresentativePoints is the tier of a ranked ballot.
type RepresentativePoints int

const (
	PointsBronze RepresentativePoints = 1
	PointsSilver RepresentativePoints = 2
	PointsGold   RepresentativePoints = 3
)

func (p RepresentativePoints) Valid() bool {
	return p >= PointsBronze && p <= PointsGold
}

type ProposalVote struct {
	ID         int       `json:"id" db:"id"`
	ProposalID int       `json:"proposal_id" db:"proposal_id"`
	VoterID    int       `json:"voter_id" db:"voter_id"`
	RoundID    int       `json:"round_id" db:"round_id"`
	Score      int       `json:"score" db:"score"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type CommentVote struct {
	ID        int       `json:"id" db:"id"`
	CommentID int       `json:"comment_id" db:"comment_id"`
	VoterID   int       `json:"voter_id" db:"voter_id"`
	RoundID   int       `json:"round_id" db:"round_id"`
	Upvote    bool      `json:"upvote" db:"upvote"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type RepresentativeVote struct {
	ID          int                  `json:"id" db:"id"`
	GroupID     int                  `json:"group_id" db:"group_id"`
	RoundID     int                  `json:"round_id" db:"round_id"`
	VoterID     int                  `json:"voter_id" db:"voter_id"`
	CandidateID int                  `json:"candidate_id" db:"candidate_id"`
	Points      RepresentativePoints `json:"points" db:"points"`
	CreatedAt   time.Time            `json:"created_at" db:"created_at"`
}

// RankedRepresentative is one place in a group's election result.
type RankedRepresentative struct {
	Rank        int `json:"rank"`
	CandidateID int `json:"candidate_id"`
	Points      int `json:"points"`
	Ballots     int `json:"ballots"`
}
