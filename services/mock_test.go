package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/fractal-system/events"
	"github.com/Dosada05/fractal-system/models"
	"github.com/Dosada05/fractal-system/repositories"
)

// memState is the whole fake database. Every table is a slice or map of
// values so a transaction can snapshot it by copying.
type memState struct {
	seq         int
	fractals    map[int]models.Fractal
	members     map[int]models.Member
	memberships []models.FractalMembership
	rounds      map[int]models.Round
	groups      map[int]models.Group
	seats       []models.GroupMembership
	proposals   map[int]models.Proposal
	comments    map[int]models.Comment
	pvotes      []models.ProposalVote
	cvotes      []models.CommentVote
	rvotes      []models.RepresentativeVote
	snapshots   map[int]memSnapshot
}

type memSnapshot struct {
	payload    []byte
	archiveURL *string
}

func cloneScores(s models.RoundScores) models.RoundScores {
	out := make(models.RoundScores, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:         s.seq,
		fractals:    make(map[int]models.Fractal, len(s.fractals)),
		members:     make(map[int]models.Member, len(s.members)),
		memberships: append([]models.FractalMembership(nil), s.memberships...),
		rounds:      make(map[int]models.Round, len(s.rounds)),
		groups:      make(map[int]models.Group, len(s.groups)),
		seats:       append([]models.GroupMembership(nil), s.seats...),
		proposals:   make(map[int]models.Proposal, len(s.proposals)),
		comments:    make(map[int]models.Comment, len(s.comments)),
		pvotes:      append([]models.ProposalVote(nil), s.pvotes...),
		cvotes:      append([]models.CommentVote(nil), s.cvotes...),
		rvotes:      append([]models.RepresentativeVote(nil), s.rvotes...),
		snapshots:   make(map[int]memSnapshot, len(s.snapshots)),
	}
	for k, v := range s.fractals {
		c.fractals[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.rounds {
		c.rounds[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.proposals {
		v.Scores = cloneScores(v.Scores)
		c.proposals[k] = v
	}
	for k, v := range s.comments {
		v.Scores = cloneScores(v.Scores)
		c.comments[k] = v
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = v
	}
	return c
}

// memDB serializes transactions with txMu and guards single calls with mu.
type memDB struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state *memState
	clock time.Time
}

func newMemDB() *memDB {
	return &memDB{
		state: &memState{
			fractals:  map[int]models.Fractal{},
			members:   map[int]models.Member{},
			rounds:    map[int]models.Round{},
			groups:    map[int]models.Group{},
			proposals: map[int]models.Proposal{},
			comments:  map[int]models.Comment{},
			snapshots: map[int]memSnapshot{},
		},
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// next returns a fresh id and a strictly increasing timestamp. Callers hold mu.
func (db *memDB) next() (int, time.Time) {
	db.state.seq++
	return db.state.seq, db.clock.Add(time.Duration(db.state.seq) * time.Second)
}

func (db *memDB) store() *repositories.Store {
	return &repositories.Store{
		Tx:        memTx{db},
		Fractals:  memFractals{db},
		Members:   memMembers{db},
		Rounds:    memRounds{db},
		Groups:    memGroups{db},
		Proposals: memProposals{db},
		Comments:  memComments{db},
		Votes:     memVotes{db},
		Snapshots: memSnapshots{db},
	}
}

type memTx struct{ db *memDB }

func (t memTx) RunInTx(ctx context.Context, fn func(tx repositories.SQLExecutor) error) (err error) {
	t.db.txMu.Lock()
	defer t.db.txMu.Unlock()

	t.db.mu.Lock()
	saved := t.db.state.clone()
	t.db.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			t.db.mu.Lock()
			t.db.state = saved
			t.db.mu.Unlock()
			panic(p)
		}
		if err != nil {
			t.db.mu.Lock()
			t.db.state = saved
			t.db.mu.Unlock()
		}
	}()
	return fn(nil)
}

// --- fractals ---

type memFractals struct{ db *memDB }

func (r memFractals) Create(_ context.Context, _ repositories.SQLExecutor, f *models.Fractal) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.state.fractals {
		if existing.Name == f.Name {
			return repositories.ErrFractalNameConflict
		}
	}
	f.ID, f.CreatedAt = r.db.next()
	r.db.state.fractals[f.ID] = *f
	return nil
}

func (r memFractals) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Fractal, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.state.fractals[id]
	if !ok {
		return nil, repositories.ErrFractalNotFound
	}
	return &f, nil
}

func (r memFractals) List(_ context.Context, filter repositories.ListFractalsFilter) ([]models.Fractal, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Fractal, 0)
	for _, f := range r.db.state.fractals {
		if filter.Status != nil && f.Status != *filter.Status {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []models.Fractal{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r memFractals) setStatus(id int, from, to models.FractalStatus, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.state.fractals[id]
	if !ok {
		return repositories.ErrFractalNotFound
	}
	if f.Status != from {
		return repositories.ErrFractalStatusConflict
	}
	f.Status = to
	if to == models.FractalStatusInProgress {
		f.StartedAt = &at
	} else {
		f.ClosedAt = &at
	}
	r.db.state.fractals[id] = f
	return nil
}

func (r memFractals) MarkStarted(_ context.Context, _ repositories.SQLExecutor, id int, at time.Time) error {
	return r.setStatus(id, models.FractalStatusWaiting, models.FractalStatusInProgress, at)
}

func (r memFractals) MarkClosed(_ context.Context, _ repositories.SQLExecutor, id int, at time.Time) error {
	return r.setStatus(id, models.FractalStatusInProgress, models.FractalStatusClosed, at)
}

func (r memFractals) Lock(context.Context, repositories.SQLExecutor, int) error { return nil }

// --- members ---

type memMembers struct{ db *memDB }

func (r memMembers) Upsert(_ context.Context, _ repositories.SQLExecutor, info models.MemberInfo) (*models.Member, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, m := range r.db.state.members {
		if m.Platform == info.Platform && m.ExternalID == info.ExternalID {
			m.Username = info.Username
			m.DisplayName = info.DisplayName
			r.db.state.members[id] = m
			return &m, nil
		}
	}
	m := models.Member{
		Platform:    info.Platform,
		ExternalID:  info.ExternalID,
		Username:    info.Username,
		DisplayName: info.DisplayName,
	}
	m.ID, m.CreatedAt = r.db.next()
	r.db.state.members[m.ID] = m
	return &m, nil
}

func (r memMembers) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Member, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.state.members[id]
	if !ok {
		return nil, repositories.ErrMemberNotFound
	}
	return &m, nil
}

func (r memMembers) ListByIDs(_ context.Context, _ repositories.SQLExecutor, ids []int) ([]models.Member, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Member, 0, len(ids))
	for _, id := range ids {
		if m, ok := r.db.state.members[id]; ok {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memMembers) SetActiveFractal(_ context.Context, _ repositories.SQLExecutor, memberIDs []int, fractalID *int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, id := range memberIDs {
		m, ok := r.db.state.members[id]
		if !ok {
			continue
		}
		if fractalID == nil {
			m.ActiveFractalID = nil
		} else {
			fid := *fractalID
			m.ActiveFractalID = &fid
		}
		r.db.state.members[id] = m
	}
	return nil
}

func (r memMembers) ReleaseFractal(_ context.Context, _ repositories.SQLExecutor, fractalID int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for id, m := range r.db.state.members {
		if m.ActiveFractalID != nil && *m.ActiveFractalID == fractalID {
			m.ActiveFractalID = nil
			r.db.state.members[id] = m
		}
	}
	return nil
}

func (r memMembers) AddToFractal(_ context.Context, _ repositories.SQLExecutor, fractalID, memberID int) (*models.FractalMembership, bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.state.fractals[fractalID]; !ok {
		return nil, false, repositories.ErrMemberInvalidRef
	}
	if _, ok := r.db.state.members[memberID]; !ok {
		return nil, false, repositories.ErrMemberInvalidRef
	}
	for i, fm := range r.db.state.memberships {
		if fm.FractalID == fractalID && fm.MemberID == memberID {
			if fm.Active() {
				return &fm, true, nil
			}
			_, now := r.db.next()
			fm.LeftAt = nil
			fm.JoinedAt = now
			r.db.state.memberships[i] = fm
			return &fm, false, nil
		}
	}
	fm := models.FractalMembership{FractalID: fractalID, MemberID: memberID}
	fm.ID, fm.JoinedAt = r.db.next()
	r.db.state.memberships = append(r.db.state.memberships, fm)
	return &fm, false, nil
}

func (r memMembers) RemoveFromFractal(_ context.Context, _ repositories.SQLExecutor, fractalID, memberID int, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, fm := range r.db.state.memberships {
		if fm.FractalID == fractalID && fm.MemberID == memberID && fm.Active() {
			fm.LeftAt = &at
			r.db.state.memberships[i] = fm
			return nil
		}
	}
	return repositories.ErrMembershipNotFound
}

func (r memMembers) ListFractalMembers(_ context.Context, _ repositories.SQLExecutor, fractalID int) ([]models.Member, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	active := make([]models.FractalMembership, 0)
	for _, fm := range r.db.state.memberships {
		if fm.FractalID == fractalID && fm.Active() {
			active = append(active, fm)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].JoinedAt.Before(active[j].JoinedAt) })
	out := make([]models.Member, 0, len(active))
	for _, fm := range active {
		out = append(out, r.db.state.members[fm.MemberID])
	}
	return out, nil
}

// --- rounds ---

type memRounds struct{ db *memDB }

func (r memRounds) Create(_ context.Context, _ repositories.SQLExecutor, round *models.Round) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.state.rounds {
		if existing.FractalID == round.FractalID && existing.Level == round.Level {
			return repositories.ErrRoundLevelConflict
		}
	}
	round.ID, _ = r.db.next()
	r.db.state.rounds[round.ID] = *round
	return nil
}

func (r memRounds) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Round, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	round, ok := r.db.state.rounds[id]
	if !ok {
		return nil, repositories.ErrRoundNotFound
	}
	return &round, nil
}

func (r memRounds) GetByIDForShare(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Round, error) {
	return r.GetByID(ctx, exec, id)
}

func (r memRounds) sorted(fractalID int, keep func(models.Round) bool) []models.Round {
	out := make([]models.Round, 0)
	for _, round := range r.db.state.rounds {
		if round.FractalID == fractalID && keep(round) {
			out = append(out, round)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

func (r memRounds) GetLatestOpenForUpdate(_ context.Context, _ repositories.SQLExecutor, fractalID int) (*models.Round, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	open := r.sorted(fractalID, models.Round.IsOpen)
	if len(open) == 0 {
		return nil, repositories.ErrRoundNotFound
	}
	return &open[len(open)-1], nil
}

func (r memRounds) ListByFractal(_ context.Context, _ repositories.SQLExecutor, fractalID int) ([]models.Round, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.sorted(fractalID, func(models.Round) bool { return true }), nil
}

func (r memRounds) Close(_ context.Context, _ repositories.SQLExecutor, id int, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	round, ok := r.db.state.rounds[id]
	if !ok {
		return repositories.ErrRoundNotFound
	}
	if !round.IsOpen() {
		return repositories.ErrRoundAlreadyClosed
	}
	round.Status = models.RoundStatusClosed
	round.EndedAt = &at
	r.db.state.rounds[id] = round
	return nil
}

func (r memRounds) list(keep func(models.Round) bool) []models.Round {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Round, 0)
	for _, round := range r.db.state.rounds {
		if keep(round) {
			out = append(out, round)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memRounds) ListExpired(_ context.Context, _ repositories.SQLExecutor, now time.Time) ([]models.Round, error) {
	return r.list(func(round models.Round) bool {
		return round.IsOpen() && round.Deadline != nil && !round.Deadline.After(now)
	}), nil
}

func (r memRounds) ListHalfTimeDue(_ context.Context, _ repositories.SQLExecutor, now time.Time) ([]models.Round, error) {
	return r.list(func(round models.Round) bool {
		half, ok := round.HalfTime()
		return round.IsOpen() && !round.HalfTimeNotified && ok && !half.After(now)
	}), nil
}

func (r memRounds) MarkHalfTimeNotified(_ context.Context, _ repositories.SQLExecutor, id int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	round, ok := r.db.state.rounds[id]
	if !ok || round.HalfTimeNotified {
		return false, nil
	}
	round.HalfTimeNotified = true
	r.db.state.rounds[id] = round
	return true, nil
}

// --- groups ---

type memGroups struct{ db *memDB }

func (r memGroups) Create(_ context.Context, _ repositories.SQLExecutor, g *models.Group) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	g.ID, g.CreatedAt = r.db.next()
	r.db.state.groups[g.ID] = *g
	return nil
}

func (r memGroups) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Group, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	g, ok := r.db.state.groups[id]
	if !ok {
		return nil, repositories.ErrGroupNotFound
	}
	return &g, nil
}

func (r memGroups) ListByRound(_ context.Context, _ repositories.SQLExecutor, roundID int) ([]models.Group, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Group, 0)
	for _, g := range r.db.state.groups {
		if g.RoundID == roundID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memGroups) AddMembers(_ context.Context, _ repositories.SQLExecutor, groupID int, memberIDs []int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, memberID := range memberIDs {
		seat := models.GroupMembership{GroupID: groupID, MemberID: memberID}
		seat.ID, seat.JoinedAt = r.db.next()
		r.db.state.seats = append(r.db.state.seats, seat)
	}
	return nil
}

func (r memGroups) ListMembers(_ context.Context, _ repositories.SQLExecutor, groupID int) ([]models.Member, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.Member, 0)
	for _, seat := range r.db.state.seats {
		if seat.GroupID == groupID && seat.LeftAt == nil {
			out = append(out, r.db.state.members[seat.MemberID])
		}
	}
	return out, nil
}

func (r memGroups) IsActiveMember(_ context.Context, _ repositories.SQLExecutor, groupID, memberID int) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, seat := range r.db.state.seats {
		if seat.GroupID == groupID && seat.MemberID == memberID && seat.LeftAt == nil {
			return true, nil
		}
	}
	return false, nil
}

func (r memGroups) FindMemberGroup(_ context.Context, _ repositories.SQLExecutor, roundID, memberID int) (*models.Group, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, seat := range r.db.state.seats {
		g := r.db.state.groups[seat.GroupID]
		if g.RoundID == roundID && seat.MemberID == memberID && seat.LeftAt == nil {
			return &g, nil
		}
	}
	return nil, repositories.ErrGroupNotFound
}

func (r memGroups) ReplaceMember(_ context.Context, _ repositories.SQLExecutor, groupID, oldMemberID, newMemberID int, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, seat := range r.db.state.seats {
		if seat.GroupID == groupID && seat.MemberID == oldMemberID && seat.LeftAt == nil {
			seat.LeftAt = &at
			replacement := newMemberID
			seat.ReplacedBy = &replacement
			r.db.state.seats[i] = seat

			fresh := models.GroupMembership{GroupID: groupID, MemberID: newMemberID}
			fresh.ID, fresh.JoinedAt = r.db.next()
			r.db.state.seats = append(r.db.state.seats, fresh)
			return nil
		}
	}
	return repositories.ErrGroupMembershipNotFound
}

// --- proposals ---

type memProposals struct{ db *memDB }

func (r memProposals) Create(_ context.Context, _ repositories.SQLExecutor, p *models.Proposal) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p.ID, p.CreatedAt = r.db.next()
	if p.Scores == nil {
		p.Scores = models.RoundScores{}
	}
	stored := *p
	stored.Scores = cloneScores(p.Scores)
	r.db.state.proposals[p.ID] = stored
	return nil
}

func (r memProposals) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Proposal, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.state.proposals[id]
	if !ok {
		return nil, repositories.ErrProposalNotFound
	}
	p.Scores = cloneScores(p.Scores)
	return &p, nil
}

func (r memProposals) byGroup(groupID int) []models.Proposal {
	out := make([]models.Proposal, 0)
	for _, p := range r.db.state.proposals {
		if p.GroupID == groupID {
			p.Scores = cloneScores(p.Scores)
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r memProposals) ListByGroup(_ context.Context, _ repositories.SQLExecutor, groupID int) ([]models.Proposal, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.byGroup(groupID), nil
}

func (r memProposals) CountByCreatorInRound(_ context.Context, _ repositories.SQLExecutor, roundID, creatorID int) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, p := range r.db.state.proposals {
		if p.RoundID == roundID && p.CreatorID == creatorID && p.Kind == models.ProposalKindBase {
			n++
		}
	}
	return n, nil
}

func (r memProposals) UpdateScores(_ context.Context, _ repositories.SQLExecutor, id int, scores models.RoundScores, total float64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.state.proposals[id]
	if !ok {
		return repositories.ErrProposalNotFound
	}
	p.Scores = cloneScores(scores)
	p.TotalScore = total
	r.db.state.proposals[id] = p
	return nil
}

func (r memProposals) TopByGroup(_ context.Context, _ repositories.SQLExecutor, groupID, limit int) ([]models.Proposal, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := r.byGroup(groupID)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memProposals) MoveToGroup(_ context.Context, _ repositories.SQLExecutor, ids []int, roundID, groupID int, kind models.ProposalKind) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, id := range ids {
		p, ok := r.db.state.proposals[id]
		if !ok {
			return repositories.ErrProposalNotFound
		}
		p.RoundID, p.GroupID, p.Kind = roundID, groupID, kind
		r.db.state.proposals[id] = p
	}
	return nil
}

// --- comments ---

type memComments struct{ db *memDB }

func (r memComments) Create(_ context.Context, _ repositories.SQLExecutor, c *models.Comment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c.ID, c.CreatedAt = r.db.next()
	if c.Scores == nil {
		c.Scores = models.RoundScores{}
	}
	stored := *c
	stored.Scores = cloneScores(c.Scores)
	r.db.state.comments[c.ID] = stored
	return nil
}

func (r memComments) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Comment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.state.comments[id]
	if !ok {
		return nil, repositories.ErrCommentNotFound
	}
	c.Scores = cloneScores(c.Scores)
	return &c, nil
}

func (r memComments) ListByProposals(_ context.Context, _ repositories.SQLExecutor, proposalIDs []int) ([]models.Comment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	want := make(map[int]bool, len(proposalIDs))
	for _, id := range proposalIDs {
		want[id] = true
	}
	out := make([]models.Comment, 0)
	for _, c := range r.db.state.comments {
		if want[c.ProposalID] {
			c.Scores = cloneScores(c.Scores)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memComments) UpdateScores(_ context.Context, _ repositories.SQLExecutor, id int, scores models.RoundScores, total float64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.state.comments[id]
	if !ok {
		return repositories.ErrCommentNotFound
	}
	c.Scores = cloneScores(scores)
	c.TotalScore = total
	r.db.state.comments[id] = c
	return nil
}

// --- votes ---

type memVotes struct{ db *memDB }

func (r memVotes) UpsertProposalVote(_ context.Context, _ repositories.SQLExecutor, v *models.ProposalVote) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	_, now := r.db.next()
	for i, existing := range r.db.state.pvotes {
		if existing.ProposalID == v.ProposalID && existing.VoterID == v.VoterID {
			existing.Score, existing.RoundID, existing.UpdatedAt = v.Score, v.RoundID, now
			r.db.state.pvotes[i] = existing
			*v = existing
			return nil
		}
	}
	v.ID, v.CreatedAt, v.UpdatedAt = r.db.state.seq, now, now
	r.db.state.pvotes = append(r.db.state.pvotes, *v)
	return nil
}

func (r memVotes) ListProposalVotes(_ context.Context, _ repositories.SQLExecutor, proposalIDs []int) ([]models.ProposalVote, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	want := make(map[int]bool, len(proposalIDs))
	for _, id := range proposalIDs {
		want[id] = true
	}
	out := make([]models.ProposalVote, 0)
	for _, v := range r.db.state.pvotes {
		if want[v.ProposalID] {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r memVotes) UpsertCommentVote(_ context.Context, _ repositories.SQLExecutor, v *models.CommentVote) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	_, now := r.db.next()
	for i, existing := range r.db.state.cvotes {
		if existing.CommentID == v.CommentID && existing.VoterID == v.VoterID {
			existing.Upvote, existing.RoundID, existing.UpdatedAt = v.Upvote, v.RoundID, now
			r.db.state.cvotes[i] = existing
			*v = existing
			return nil
		}
	}
	v.ID, v.CreatedAt, v.UpdatedAt = r.db.state.seq, now, now
	r.db.state.cvotes = append(r.db.state.cvotes, *v)
	return nil
}

func (r memVotes) ListCommentVotes(_ context.Context, _ repositories.SQLExecutor, commentIDs []int) ([]models.CommentVote, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	want := make(map[int]bool, len(commentIDs))
	for _, id := range commentIDs {
		want[id] = true
	}
	out := make([]models.CommentVote, 0)
	for _, v := range r.db.state.cvotes {
		if want[v.CommentID] {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r memVotes) CastRepresentativeVote(_ context.Context, _ repositories.SQLExecutor, v *models.RepresentativeVote) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	kept := r.db.state.rvotes[:0:0]
	for _, existing := range r.db.state.rvotes {
		sameBallot := existing.GroupID == v.GroupID && existing.RoundID == v.RoundID && existing.VoterID == v.VoterID
		if sameBallot && (existing.Points == v.Points || existing.CandidateID == v.CandidateID) {
			continue
		}
		kept = append(kept, existing)
	}
	v.ID, v.CreatedAt = r.db.next()
	r.db.state.rvotes = append(kept, *v)
	return nil
}

func (r memVotes) ListRepresentativeVotes(_ context.Context, _ repositories.SQLExecutor, groupID, roundID int) ([]models.RepresentativeVote, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]models.RepresentativeVote, 0)
	for _, v := range r.db.state.rvotes {
		if v.GroupID == groupID && v.RoundID == roundID {
			out = append(out, v)
		}
	}
	return out, nil
}

// --- snapshots ---

type memSnapshots struct{ db *memDB }

func (r memSnapshots) Save(_ context.Context, _ repositories.SQLExecutor, roundID int, payload []byte) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	prev := r.db.state.snapshots[roundID]
	r.db.state.snapshots[roundID] = memSnapshot{payload: append([]byte(nil), payload...), archiveURL: prev.archiveURL}
	return nil
}

func (r memSnapshots) Get(_ context.Context, _ repositories.SQLExecutor, roundID int) ([]byte, *string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.state.snapshots[roundID]
	if !ok {
		return nil, nil, repositories.ErrSnapshotNotFound
	}
	return s.payload, s.archiveURL, nil
}

func (r memSnapshots) SetArchiveURL(_ context.Context, _ repositories.SQLExecutor, roundID int, url string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.state.snapshots[roundID]
	if !ok {
		return repositories.ErrSnapshotNotFound
	}
	s.archiveURL = &url
	r.db.state.snapshots[roundID] = s
	return nil
}

// recordingPublisher captures events instead of delivering them.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) PublishAsync(_ events.EventType, evt events.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return true
}

func (p *recordingPublisher) ofType(t events.EventType) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Event, 0)
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
