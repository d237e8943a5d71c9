package circles

import "context"

type GenerateGroupsParams struct {
	MemberIDs []int
	GroupSize int
}

// GroupGenerator splits a member pool into the groups of one round.
type GroupGenerator interface {
	GenerateGroups(ctx context.Context, params GenerateGroupsParams) ([][]int, error)

	GetName() string
}
