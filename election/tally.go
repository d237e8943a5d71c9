package election

import (
	"sort"

	"github.com/Dosada05/fractal-system/models"
)

// MaxRepresentatives is the number of ranked places (gold, silver, bronze).
const MaxRepresentatives = 3

type candidateTally struct {
	candidateID int
	points      int
	ballots     int
}

// Tally ranks candidates by summed points, then by ballots received, then by
// the higher candidate id. Only candidates with a positive total are ranked,
// and at most limit places are returned (capped at MaxRepresentatives).
// Self-votes count like any other ballot.
func Tally(ballots []models.RepresentativeVote, limit int) []models.RankedRepresentative {
	if limit <= 0 || limit > MaxRepresentatives {
		limit = MaxRepresentatives
	}

	byCandidate := make(map[int]*candidateTally)
	for _, b := range ballots {
		if !b.Points.Valid() {
			continue
		}
		t, ok := byCandidate[b.CandidateID]
		if !ok {
			t = &candidateTally{candidateID: b.CandidateID}
			byCandidate[b.CandidateID] = t
		}
		t.points += int(b.Points)
		t.ballots++
	}

	tallies := make([]*candidateTally, 0, len(byCandidate))
	for _, t := range byCandidate {
		if t.points > 0 {
			tallies = append(tallies, t)
		}
	}
	sort.Slice(tallies, func(i, j int) bool {
		a, b := tallies[i], tallies[j]
		if a.points != b.points {
			return a.points > b.points
		}
		if a.ballots != b.ballots {
			return a.ballots > b.ballots
		}
		return a.candidateID > b.candidateID
	})

	if len(tallies) > limit {
		tallies = tallies[:limit]
	}
	ranked := make([]models.RankedRepresentative, 0, len(tallies))
	for i, t := range tallies {
		ranked = append(ranked, models.RankedRepresentative{
			Rank:        i + 1,
			CandidateID: t.candidateID,
			Points:      t.points,
			Ballots:     t.ballots,
		})
	}
	return ranked
}

// Delegates returns the candidate ids of the first n places.
func Delegates(ranked []models.RankedRepresentative, n int) []int {
	if n > len(ranked) {
		n = len(ranked)
	}
	if n < 0 {
		n = 0
	}
	ids := make([]int, 0, n)
	for _, r := range ranked[:n] {
		ids = append(ids, r.CandidateID)
	}
	return ids
}
