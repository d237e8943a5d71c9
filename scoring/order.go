package scoring

import (
	"sort"

	"github.com/Dosada05/fractal-system/models"
)

// OrderComments sorts sibling comments for display.
//
// At level 0 there is no score history, so comments read in creation order.
// Later levels show the viewer's own group first, then the rest by total
// score, oldest first on ties.
func OrderComments(comments []models.Comment, level int, viewerGroupID *int) {
	sort.SliceStable(comments, func(i, j int) bool {
		return commentLess(comments[i], comments[j], level, viewerGroupID)
	})
}

// OrderCommentNodes applies the same rule to tree nodes.
func OrderCommentNodes(nodes []*models.CommentNode, level int, viewerGroupID *int) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return commentLess(nodes[i].Comment, nodes[j].Comment, level, viewerGroupID)
	})
}

func commentLess(a, b models.Comment, level int, viewerGroupID *int) bool {
	if level > 0 {
		if viewerGroupID != nil {
			aOwn, bOwn := a.GroupID == *viewerGroupID, b.GroupID == *viewerGroupID
			if aOwn != bOwn {
				return aOwn
			}
		}
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// RankProposals orders proposals by total score, oldest first on ties.
func RankProposals(proposals []models.Proposal) {
	sort.SliceStable(proposals, func(i, j int) bool {
		a, b := proposals[i], proposals[j]
		if a.TotalScore != b.TotalScore {
			return a.TotalScore > b.TotalScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
