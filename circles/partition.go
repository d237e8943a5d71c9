package circles

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
)

var ErrInvalidGroupSize = errors.New("group size must be positive")

// GroupCount returns ceil(n/size), or 0 for an empty pool.
func GroupCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// GroupSizes returns the size of every group for n members at the given
// target size. The first n mod count groups carry one extra member.
func GroupSizes(n, size int) []int {
	count := GroupCount(n, size)
	if count == 0 {
		return nil
	}
	base, extra := n/count, n%count
	sizes := make([]int, count)
	for i := range sizes {
		sizes[i] = base
		if i < extra {
			sizes[i]++
		}
	}
	return sizes
}

// Partition splits members into balanced groups of the target size.
// With a nil rng members keep their input order; otherwise they are shuffled
// first. The size distribution depends only on len(members) and size.
func Partition(members []int, size int, rng *rand.Rand) ([][]int, error) {
	if size <= 0 {
		return nil, ErrInvalidGroupSize
	}
	if len(members) == 0 {
		return [][]int{}, nil
	}

	pool := make([]int, len(members))
	copy(pool, members)
	if rng != nil {
		rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	}

	sizes := GroupSizes(len(pool), size)
	groups := make([][]int, 0, len(sizes))
	offset := 0
	for _, n := range sizes {
		group := make([]int, n)
		copy(group, pool[offset:offset+n])
		groups = append(groups, group)
		offset += n
	}
	return groups, nil
}

// BalancedGenerator shuffles members before splitting them. It is used when a
// fractal starts.
type BalancedGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewBalancedGenerator uses the given source, or a randomly seeded one when
// rng is nil.
func NewBalancedGenerator(rng *rand.Rand) GroupGenerator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &BalancedGenerator{rng: rng}
}

// NewSeededGenerator is deterministic for a given seed.
func NewSeededGenerator(seed uint64) GroupGenerator {
	return &BalancedGenerator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (g *BalancedGenerator) GetName() string {
	return "Balanced"
}

func (g *BalancedGenerator) GenerateGroups(ctx context.Context, params GenerateGroupsParams) ([][]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return Partition(params.MemberIDs, params.GroupSize, g.rng)
}

// SequentialGenerator keeps the pool order, so delegates promoted from the
// same group end up seated together. It is used for promotion.
type SequentialGenerator struct{}

func NewSequentialGenerator() GroupGenerator {
	return &SequentialGenerator{}
}

func (g *SequentialGenerator) GetName() string {
	return "Sequential"
}

func (g *SequentialGenerator) GenerateGroups(ctx context.Context, params GenerateGroupsParams) ([][]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Partition(params.MemberIDs, params.GroupSize, nil)
}
