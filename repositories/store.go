package repositories

import (
	"database/sql"
	"log/slog"
)

// Store bundles the repositories the engine works with so services can be
// constructed from one value and tests can swap in fakes.
type Store struct {
	Tx        TxRunner
	Fractals  FractalRepository
	Members   MemberRepository
	Rounds    RoundRepository
	Groups    GroupRepository
	Proposals ProposalRepository
	Comments  CommentRepository
	Votes     VoteRepository
	Snapshots SnapshotRepository
}

func NewPostgresStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		Tx:        NewTxRunner(db, logger),
		Fractals:  NewPostgresFractalRepository(db),
		Members:   NewPostgresMemberRepository(db),
		Rounds:    NewPostgresRoundRepository(db),
		Groups:    NewPostgresGroupRepository(db),
		Proposals: NewPostgresProposalRepository(db),
		Comments:  NewPostgresCommentRepository(db),
		Votes:     NewPostgresVoteRepository(db),
		Snapshots: NewPostgresSnapshotRepository(db),
	}
}
