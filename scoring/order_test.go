package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Dosada05/fractal-system/models"
)

func commentIDs(comments []models.Comment) []int {
	ids := make([]int, len(comments))
	for i, c := range comments {
		ids[i] = c.ID
	}
	return ids
}

func TestOrderComments_LevelZeroByCreation(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	comments := []models.Comment{
		{ID: 1, GroupID: 9, TotalScore: 100, CreatedAt: base.Add(3 * time.Minute)},
		{ID: 2, GroupID: 1, TotalScore: 0, CreatedAt: base.Add(1 * time.Minute)},
		{ID: 3, GroupID: 1, TotalScore: 50, CreatedAt: base.Add(2 * time.Minute)},
	}
	viewer := 9

	OrderComments(comments, 0, &viewer)
	assert.Equal(t, []int{2, 3, 1}, commentIDs(comments))
}

func TestOrderComments_ViewerGroupFirst(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	comments := []models.Comment{
		{ID: 1, GroupID: 1, TotalScore: 90, CreatedAt: base},
		{ID: 2, GroupID: 7, TotalScore: 1, CreatedAt: base.Add(time.Minute)},
		{ID: 3, GroupID: 2, TotalScore: 40, CreatedAt: base.Add(2 * time.Minute)},
		{ID: 4, GroupID: 7, TotalScore: 5, CreatedAt: base.Add(3 * time.Minute)},
	}
	viewer := 7

	OrderComments(comments, 1, &viewer)
	assert.Equal(t, []int{4, 2, 1, 3}, commentIDs(comments))
}

func TestOrderComments_TieBreakByCreation(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	comments := []models.Comment{
		{ID: 5, GroupID: 1, TotalScore: 10, CreatedAt: base.Add(time.Hour)},
		{ID: 6, GroupID: 1, TotalScore: 10, CreatedAt: base},
		{ID: 7, GroupID: 1, TotalScore: 12, CreatedAt: base.Add(2 * time.Hour)},
	}

	OrderComments(comments, 2, nil)
	assert.Equal(t, []int{7, 6, 5}, commentIDs(comments))
}

func TestRankProposals(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	proposals := []models.Proposal{
		{ID: 1, TotalScore: 20, CreatedAt: base},
		{ID: 2, TotalScore: 45, CreatedAt: base},
		{ID: 3, TotalScore: 20, CreatedAt: base.Add(-time.Minute)},
	}
	RankProposals(proposals)
	assert.Equal(t, 2, proposals[0].ID)
	assert.Equal(t, 3, proposals[1].ID)
	assert.Equal(t, 1, proposals[2].ID)
}
