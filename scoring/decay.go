package scoring

import (
	"errors"
	"maps"

	"github.com/Dosada05/fractal-system/models"
)

// Window is how many of the most recent levels contribute to a total.
// Weights fall by 1/Window per level: 1.0, 0.8, 0.6, 0.4, 0.2.
const Window = 5

var ErrNegativeLevel = errors.New("round level must not be negative")

// Weight returns the multiplier for a score recorded age levels before the
// latest scored level. Ages outside the window weigh 0.
func Weight(age int) float64 {
	if age < 0 || age >= Window {
		return 0
	}
	return float64(Window-age) / Window
}

// LatestLevel returns the highest scored level, or -1 for an empty map.
func LatestLevel(scores models.RoundScores) int {
	latest := -1
	for level := range scores {
		if level > latest {
			latest = level
		}
	}
	return latest
}

// WeightedTotal computes the decayed sum over the most recent levels.
// Levels inside the window that were never scored contribute 0.
func WeightedTotal(scores models.RoundScores) float64 {
	latest := LatestLevel(scores)
	if latest < 0 {
		return 0
	}
	var total float64
	for age := 0; age < Window && latest-age >= 0; age++ {
		raw, ok := scores[latest-age]
		if !ok {
			continue
		}
		total += float64(raw) * Weight(age)
	}
	return total
}

// RecordScore stores raw at level and returns the updated map together with
// the recomputed total. The input map is not modified.
func RecordScore(scores models.RoundScores, level, raw int) (models.RoundScores, float64, error) {
	if level < 0 {
		return scores, WeightedTotal(scores), ErrNegativeLevel
	}
	next := make(models.RoundScores, len(scores)+1)
	maps.Copy(next, scores)
	next[level] = raw
	return next, WeightedTotal(next), nil
}

// ProposalRaw sums the 1..10 scores cast on a proposal.
func ProposalRaw(votes []models.ProposalVote) int {
	sum := 0
	for _, v := range votes {
		sum += v.Score
	}
	return sum
}

// CommentRaw is upvotes minus downvotes.
func CommentRaw(votes []models.CommentVote) int {
	raw := 0
	for _, v := range votes {
		if v.Upvote {
			raw++
		} else {
			raw--
		}
	}
	return raw
}
