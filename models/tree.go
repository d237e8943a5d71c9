package models

import "time"

// FractalTree is the read projection returned by the tree endpoint.
type FractalTree struct {
	Fractal Fractal     `json:"fractal"`
	Rounds  []RoundTree `json:"rounds"`
}

type RoundTree struct {
	Round      Round       `json:"round"`
	Groups     []GroupTree `json:"groups"`
	ArchiveURL *string     `json:"archive_url,omitempty"`
	BuiltAt    time.Time   `json:"built_at"`
}

type GroupTree struct {
	Group           Group                  `json:"group"`
	Members         []Member               `json:"members"`
	Representatives []RankedRepresentative `json:"representatives,omitempty"`
	Proposals       []ProposalNode         `json:"proposals"`
}

type ProposalNode struct {
	Proposal Proposal       `json:"proposal"`
	Votes    []ProposalVote `json:"votes"`
	Comments []*CommentNode `json:"comments"`
}

type CommentNode struct {
	Comment Comment        `json:"comment"`
	Votes   []CommentVote  `json:"votes"`
	Replies []*CommentNode `json:"replies"`
}

// GroupStatus is the group view used by bots and the web client.
type GroupStatus struct {
	Round Round     `json:"round"`
	Group GroupTree `json:"group"`
}
