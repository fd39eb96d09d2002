package repository

import (
	"context"
	"sync"
	"time"

	"escrow-service/internal/escrow"
	"escrow-service/internal/model"
)

// MemoryStore is an in-memory escrow.Store used in tests and local
// development. One mutex stands in for the per-project row lock; a
// bounded acquire mirrors the database's lock_timeout behaviour. State
// is snapshotted at transaction start and restored when fn fails.
type MemoryStore struct {
	mu          sync.Mutex
	projects    map[int64]*model.Project
	disputes    map[int64]*model.Dispute
	submissions map[int64]*model.Submission
	users       map[string]*model.User
	config      model.PlatformConfig

	nextProject    int64
	nextDispute    int64
	nextSubmission int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:    make(map[int64]*model.Project),
		disputes:    make(map[int64]*model.Dispute),
		submissions: make(map[int64]*model.Submission),
		users:       make(map[string]*model.User),
		config: model.PlatformConfig{
			FeeBps: 250,
		},
		nextProject:    1,
		nextDispute:    1,
		nextSubmission: 1,
	}
}

// SeedConfig replaces the platform configuration.
func (s *MemoryStore) SeedConfig(cfg model.PlatformConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
}

// SeedUser inserts or replaces a user row.
func (s *MemoryStore) SeedUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Principal] = cloneUser(&u)
}

func (s *MemoryStore) acquire(ctx context.Context) error {
	deadline := time.Now().Add(3 * time.Second)
	for {
		if s.mu.TryLock() {
			return nil
		}
		if time.Now().After(deadline) {
			return escrow.Errf(escrow.KindContention, "repository", "lock wait exceeded")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx escrow.Tx) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	projects    map[int64]*model.Project
	disputes    map[int64]*model.Dispute
	submissions map[int64]*model.Submission
	users       map[string]*model.User
	config      model.PlatformConfig

	nextProject    int64
	nextDispute    int64
	nextSubmission int64
}

func (s *MemoryStore) snapshot() memSnapshot {
	snap := memSnapshot{
		projects:       make(map[int64]*model.Project, len(s.projects)),
		disputes:       make(map[int64]*model.Dispute, len(s.disputes)),
		submissions:    make(map[int64]*model.Submission, len(s.submissions)),
		users:          make(map[string]*model.User, len(s.users)),
		config:         s.config,
		nextProject:    s.nextProject,
		nextDispute:    s.nextDispute,
		nextSubmission: s.nextSubmission,
	}
	for id, p := range s.projects {
		snap.projects[id] = cloneProject(p)
	}
	for id, d := range s.disputes {
		snap.disputes[id] = cloneDispute(d)
	}
	for id, sub := range s.submissions {
		snap.submissions[id] = cloneSubmission(sub)
	}
	for principal, u := range s.users {
		snap.users[principal] = cloneUser(u)
	}
	return snap
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.projects = snap.projects
	s.disputes = snap.disputes
	s.submissions = snap.submissions
	s.users = snap.users
	s.config = snap.config
	s.nextProject = snap.nextProject
	s.nextDispute = snap.nextDispute
	s.nextSubmission = snap.nextSubmission
}

func (s *MemoryStore) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, escrow.Errf(escrow.KindNotFound, "repository.GetProject", "project %d not found", id)
	}
	return cloneProject(p), nil
}

func (s *MemoryStore) GetDispute(ctx context.Context, id int64) (*model.Dispute, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	d, ok := s.disputes[id]
	if !ok {
		return nil, escrow.Errf(escrow.KindNotFound, "repository.GetDispute", "dispute %d not found", id)
	}
	return cloneDispute(d), nil
}

func (s *MemoryStore) GetSubmission(ctx context.Context, id int64) (*model.Submission, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	sub, ok := s.submissions[id]
	if !ok {
		return nil, escrow.Errf(escrow.KindNotFound, "repository.GetSubmission", "submission %d not found", id)
	}
	return cloneSubmission(sub), nil
}

func (s *MemoryStore) GetConfig(ctx context.Context) (*model.PlatformConfig, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	cfg := s.config
	return &cfg, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, principal string) (*model.User, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	u, ok := s.users[principal]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

// EnsureUser creates the user row for a principal on first login.
func (s *MemoryStore) EnsureUser(ctx context.Context, principal string) (*model.User, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	u, ok := s.users[principal]
	if !ok {
		u = &model.User{Principal: principal, CreatedAt: time.Now()}
		s.users[principal] = u
	}
	return cloneUser(u), nil
}

func (s *MemoryStore) ListProjectsByParticipant(ctx context.Context, principal string) ([]*model.Project, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	var out []*model.Project
	for _, p := range s.projects {
		if p.Client == principal || p.Freelancer == principal {
			out = append(out, cloneProject(p))
		}
	}
	return out, nil
}

// memTx mutates the store's maps directly; the store mutex is held for
// the whole transaction. Reads hand out clones and updates store clones
// so callers never alias live state.
type memTx struct {
	s *MemoryStore
}

func (t *memTx) InsertProject(ctx context.Context, p *model.Project) (int64, error) {
	id := t.s.nextProject
	t.s.nextProject++
	cp := cloneProject(p)
	cp.ID = id
	t.s.projects[id] = cp
	return id, nil
}

func (t *memTx) ProjectForUpdate(ctx context.Context, id int64) (*model.Project, error) {
	p, ok := t.s.projects[id]
	if !ok {
		return nil, escrow.Errf(escrow.KindNotFound, "repository.GetProject", "project %d not found", id)
	}
	return cloneProject(p), nil
}

func (t *memTx) UpdateProject(ctx context.Context, p *model.Project) error {
	if _, ok := t.s.projects[p.ID]; !ok {
		return escrow.Errf(escrow.KindNotFound, "repository.UpdateProject", "project %d not found", p.ID)
	}
	t.s.projects[p.ID] = cloneProject(p)
	return nil
}

func (t *memTx) InsertDispute(ctx context.Context, d *model.Dispute) (int64, error) {
	id := t.s.nextDispute
	t.s.nextDispute++
	cd := cloneDispute(d)
	cd.ID = id
	t.s.disputes[id] = cd
	return id, nil
}

func (t *memTx) GetDispute(ctx context.Context, id int64) (*model.Dispute, error) {
	d, ok := t.s.disputes[id]
	if !ok {
		return nil, escrow.Errf(escrow.KindNotFound, "repository.GetDispute", "dispute %d not found", id)
	}
	return cloneDispute(d), nil
}

func (t *memTx) OpenDispute(ctx context.Context, projectID int64, milestoneNum int) (*model.Dispute, error) {
	for _, d := range t.s.disputes {
		if d.ProjectID == projectID && d.MilestoneNum == milestoneNum && d.Status == model.DisputeOpen {
			return cloneDispute(d), nil
		}
	}
	return nil, nil
}

func (t *memTx) OpenDisputes(ctx context.Context, projectID int64) ([]*model.Dispute, error) {
	var out []*model.Dispute
	for _, d := range t.s.disputes {
		if d.ProjectID == projectID && d.Status == model.DisputeOpen {
			out = append(out, cloneDispute(d))
		}
	}
	return out, nil
}

func (t *memTx) UpdateDispute(ctx context.Context, d *model.Dispute) error {
	if _, ok := t.s.disputes[d.ID]; !ok {
		return escrow.Errf(escrow.KindNotFound, "repository.UpdateDispute", "dispute %d not found", d.ID)
	}
	t.s.disputes[d.ID] = cloneDispute(d)
	return nil
}

func (t *memTx) DeleteDisputes(ctx context.Context, projectID int64, milestoneNum int) error {
	for id, d := range t.s.disputes {
		if d.ProjectID == projectID && d.MilestoneNum == milestoneNum {
			delete(t.s.disputes, id)
		}
	}
	return nil
}

func (t *memTx) InsertSubmission(ctx context.Context, sub *model.Submission) (int64, error) {
	id := t.s.nextSubmission
	t.s.nextSubmission++
	cs := cloneSubmission(sub)
	cs.ID = id
	t.s.submissions[id] = cs
	return id, nil
}

func (t *memTx) GetSubmission(ctx context.Context, id int64) (*model.Submission, error) {
	sub, ok := t.s.submissions[id]
	if !ok {
		return nil, escrow.Errf(escrow.KindNotFound, "repository.GetSubmission", "submission %d not found", id)
	}
	return cloneSubmission(sub), nil
}

func (t *memTx) PendingSubmission(ctx context.Context, projectID int64, milestoneNum int) (*model.Submission, error) {
	for _, sub := range t.s.submissions {
		if sub.ProjectID == projectID && sub.MilestoneNum == milestoneNum && sub.Status == model.SubmissionSubmitted {
			return cloneSubmission(sub), nil
		}
	}
	return nil, nil
}

func (t *memTx) UpdateSubmission(ctx context.Context, sub *model.Submission) error {
	if _, ok := t.s.submissions[sub.ID]; !ok {
		return escrow.Errf(escrow.KindNotFound, "repository.UpdateSubmission", "submission %d not found", sub.ID)
	}
	t.s.submissions[sub.ID] = cloneSubmission(sub)
	return nil
}

func (t *memTx) CountApprovedSubmissions(ctx context.Context, projectID int64) (int, error) {
	seen := make(map[int]bool)
	for _, sub := range t.s.submissions {
		if sub.ProjectID == projectID && sub.Status == model.SubmissionApproved {
			seen[sub.MilestoneNum] = true
		}
	}
	return len(seen), nil
}

func (t *memTx) GetUser(ctx context.Context, principal string) (*model.User, error) {
	u, ok := t.s.users[principal]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (t *memTx) AddEarnings(ctx context.Context, principal string, amount int64) error {
	u, ok := t.s.users[principal]
	if !ok {
		u = &model.User{Principal: principal, CreatedAt: time.Now()}
		t.s.users[principal] = u
	}
	u.TotalEarned += amount
	return nil
}

func (t *memTx) SetUserSuspended(ctx context.Context, principal string, suspended bool) error {
	u, ok := t.s.users[principal]
	if !ok {
		return escrow.Errf(escrow.KindNotFound, "repository.SetUserSuspended", "unknown principal %s", principal)
	}
	u.Suspended = suspended
	return nil
}

func (t *memTx) Config(ctx context.Context) (*model.PlatformConfig, error) {
	cfg := t.s.config
	return &cfg, nil
}

func (t *memTx) ConfigForUpdate(ctx context.Context) (*model.PlatformConfig, error) {
	cfg := t.s.config
	return &cfg, nil
}

func (t *memTx) UpdateConfig(ctx context.Context, cfg *model.PlatformConfig) error {
	t.s.config = *cfg
	return nil
}

func cloneProject(p *model.Project) *model.Project {
	cp := *p
	cp.Milestones = make([]model.Milestone, len(p.Milestones))
	copy(cp.Milestones, p.Milestones)
	for i := range cp.Milestones {
		cp.Milestones[i].CompletedAt = cloneTime(p.Milestones[i].CompletedAt)
	}
	return &cp
}

func cloneDispute(d *model.Dispute) *model.Dispute {
	cd := *d
	cd.ResolvedAt = cloneTime(d.ResolvedAt)
	return &cd
}

func cloneSubmission(s *model.Submission) *model.Submission {
	cs := *s
	cs.ReviewedAt = cloneTime(s.ReviewedAt)
	return &cs
}

func cloneUser(u *model.User) *model.User {
	cu := *u
	return &cu
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ct := *t
	return &ct
}
