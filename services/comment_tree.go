package services

import (
	"github.com/Dosada05/fractal-system/models"
	"github.com/Dosada05/fractal-system/scoring"
)

// buildCommentForest links a proposal's flat comment list into reply trees.
// Nodes live in an arena keyed by id and are wired through a child-list map
// with an iterative walk, so a corrupted parent chain can never loop.
// Comments whose parent is unknown become roots; comments that sit on a
// parent cycle are unreachable from any root and are left out.
func buildCommentForest(
	comments []models.Comment,
	votes map[int][]models.CommentVote,
	level int,
	viewerGroupID *int,
) []*models.CommentNode {
	arena := make(map[int]*models.CommentNode, len(comments))
	for _, c := range comments {
		v := votes[c.ID]
		if v == nil {
			v = []models.CommentVote{}
		}
		arena[c.ID] = &models.CommentNode{Comment: c, Votes: v, Replies: []*models.CommentNode{}}
	}

	children := make(map[int][]int, len(comments))
	roots := make([]*models.CommentNode, 0)
	for _, c := range comments {
		if c.ParentID != nil && *c.ParentID != c.ID {
			if _, ok := arena[*c.ParentID]; ok {
				children[*c.ParentID] = append(children[*c.ParentID], c.ID)
				continue
			}
		}
		roots = append(roots, arena[c.ID])
	}

	visited := make(map[int]bool, len(comments))
	queue := make([]*models.CommentNode, 0, len(roots))
	queue = append(queue, roots...)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if visited[node.Comment.ID] {
			continue
		}
		visited[node.Comment.ID] = true

		for _, childID := range children[node.Comment.ID] {
			if visited[childID] {
				continue
			}
			child := arena[childID]
			node.Replies = append(node.Replies, child)
			queue = append(queue, child)
		}
		scoring.OrderCommentNodes(node.Replies, level, viewerGroupID)
	}

	scoring.OrderCommentNodes(roots, level, viewerGroupID)
	return roots
}

// reorderComments re-sorts an already built forest for another viewer.
func reorderComments(roots []*models.CommentNode, level int, viewerGroupID *int) {
	scoring.OrderCommentNodes(roots, level, viewerGroupID)
	stack := append([]*models.CommentNode(nil), roots...)
	seen := make(map[*models.CommentNode]bool)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		scoring.OrderCommentNodes(n.Replies, level, viewerGroupID)
		stack = append(stack, n.Replies...)
	}
}
