package election

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/fractal-system/models"
)

func ballot(voter, candidate int, points models.RepresentativePoints) models.RepresentativeVote {
	return models.RepresentativeVote{GroupID: 1, RoundID: 1, VoterID: voter, CandidateID: candidate, Points: points}
}

func TestTally_NoBallots(t *testing.T) {
	assert.Empty(t, Tally(nil, 3))
}

func TestTally_UnanimousGold(t *testing.T) {
	var ballots []models.RepresentativeVote
	for voter := 1; voter <= 5; voter++ {
		ballots = append(ballots, ballot(voter, 3, models.PointsGold))
	}

	ranked := Tally(ballots, 3)
	require.Len(t, ranked, 1)
	assert.Equal(t, models.RankedRepresentative{Rank: 1, CandidateID: 3, Points: 15, Ballots: 5}, ranked[0])
}

func TestTally_RanksThreePlaces(t *testing.T) {
	ballots := []models.RepresentativeVote{
		ballot(1, 10, models.PointsGold), ballot(1, 11, models.PointsSilver), ballot(1, 12, models.PointsBronze),
		ballot(2, 10, models.PointsGold), ballot(2, 12, models.PointsSilver), ballot(2, 13, models.PointsBronze),
		ballot(3, 11, models.PointsGold), ballot(3, 10, models.PointsSilver), ballot(3, 13, models.PointsBronze),
	}

	ranked := Tally(ballots, 3)
	require.Len(t, ranked, 3)
	assert.Equal(t, 10, ranked[0].CandidateID) // 3+3+2
	assert.Equal(t, 8, ranked[0].Points)
	assert.Equal(t, 11, ranked[1].CandidateID) // 2+3
	assert.Equal(t, 12, ranked[2].CandidateID) // 1+2
	assert.Equal(t, []int{1, 2, 3}, []int{ranked[0].Rank, ranked[1].Rank, ranked[2].Rank})
}

func TestTally_TieOnPointsBrokenByBallotCount(t *testing.T) {
	ballots := []models.RepresentativeVote{
		ballot(1, 20, models.PointsGold),
		ballot(2, 21, models.PointsSilver),
		ballot(3, 21, models.PointsBronze),
	}
	ranked := Tally(ballots, 3)
	require.Len(t, ranked, 2)
	assert.Equal(t, 21, ranked[0].CandidateID)
	assert.Equal(t, 20, ranked[1].CandidateID)
}

func TestTally_FullTieBrokenByHigherID(t *testing.T) {
	ballots := []models.RepresentativeVote{
		ballot(1, 30, models.PointsGold),
		ballot(2, 31, models.PointsGold),
	}
	for range 20 {
		ranked := Tally(ballots, 3)
		require.Len(t, ranked, 2)
		assert.Equal(t, 31, ranked[0].CandidateID)
		assert.Equal(t, 30, ranked[1].CandidateID)
	}
}

func TestTally_SelfVoteCounts(t *testing.T) {
	ballots := []models.RepresentativeVote{
		ballot(4, 4, models.PointsGold),
		ballot(5, 6, models.PointsSilver),
	}
	ranked := Tally(ballots, 3)
	require.Len(t, ranked, 2)
	assert.Equal(t, 4, ranked[0].CandidateID)
}

func TestTally_LimitAndInvalidPoints(t *testing.T) {
	ballots := []models.RepresentativeVote{
		ballot(1, 1, models.PointsGold),
		ballot(1, 2, models.PointsSilver),
		ballot(1, 3, models.PointsBronze),
		ballot(2, 4, models.RepresentativePoints(7)),
	}
	ranked := Tally(ballots, 1)
	require.Len(t, ranked, 1)
	assert.Equal(t, 1, ranked[0].CandidateID)

	ranked = Tally(ballots, 10)
	assert.Len(t, ranked, 3)
}

func TestDelegates(t *testing.T) {
	ranked := []models.RankedRepresentative{{Rank: 1, CandidateID: 5}, {Rank: 2, CandidateID: 9}}
	assert.Equal(t, []int{5}, Delegates(ranked, 1))
	assert.Equal(t, []int{5, 9}, Delegates(ranked, 3))
	assert.Empty(t, Delegates(nil, 1))
	assert.NotPanics(t, func() {
		assert.Empty(t, Delegates(ranked, -1))
	})
	assert.Empty(t, Delegates(ranked, 0))
}
