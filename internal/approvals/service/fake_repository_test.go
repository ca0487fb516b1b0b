package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"itou_backend/internal/approvals/domain"
	"itou_backend/internal/approvals/repository"
	"itou_backend/platform/apperr"

	"github.com/google/uuid"
)

type txScopeKey struct{}

type txScope struct {
	release []func()
}

// fakeRepo keeps rows in memory. The number sequence lock is a real mutex
// held until WithTx returns, like pg_advisory_xact_lock.
type fakeRepo struct {
	mu       sync.Mutex
	seqLocks map[string]*sync.Mutex

	// readDelay widens the window between reading the last number and
	// inserting the next one.
	readDelay time.Duration

	approvals      map[uuid.UUID]domain.Approval
	suspensions    map[uuid.UUID]domain.Suspension
	prolongations  map[uuid.UUID]domain.Prolongation
	jobSeekers     map[uuid.UUID]repository.JobSeeker
	siaes          map[uuid.UUID]repository.Siae
	prescribers    map[uuid.UUID]repository.Prescriber
	jobApps        map[uuid.UUID]repository.JobApplication
	peApprovals    map[uuid.UUID]domain.PoleEmploiApproval
	numberSeqCalls int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		seqLocks:      map[string]*sync.Mutex{},
		approvals:     map[uuid.UUID]domain.Approval{},
		suspensions:   map[uuid.UUID]domain.Suspension{},
		prolongations: map[uuid.UUID]domain.Prolongation{},
		jobSeekers:    map[uuid.UUID]repository.JobSeeker{},
		siaes:         map[uuid.UUID]repository.Siae{},
		prescribers:   map[uuid.UUID]repository.Prescriber{},
		jobApps:       map[uuid.UUID]repository.JobApplication{},
		peApprovals:   map[uuid.UUID]domain.PoleEmploiApproval{},
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txScopeKey{}).(*txScope); ok {
		return fn(ctx)
	}
	scope := &txScope{}
	defer func() {
		for i := len(scope.release) - 1; i >= 0; i-- {
			scope.release[i]()
		}
	}()
	return fn(context.WithValue(ctx, txScopeKey{}, scope))
}

func (f *fakeRepo) LockNumberSequence(ctx context.Context, prefix string) error {
	scope, ok := ctx.Value(txScopeKey{}).(*txScope)
	if !ok {
		return errors.New("no transaction")
	}
	f.mu.Lock()
	lock, ok := f.seqLocks[prefix]
	if !ok {
		lock = &sync.Mutex{}
		f.seqLocks[prefix] = lock
	}
	f.numberSeqCalls++
	f.mu.Unlock()

	lock.Lock()
	scope.release = append(scope.release, lock.Unlock)
	return nil
}

func (f *fakeRepo) LastApprovalNumber(_ context.Context, prefix string) (string, error) {
	f.mu.Lock()
	last := ""
	for _, a := range f.approvals {
		if strings.HasPrefix(a.Number, prefix) && a.Number > last {
			last = a.Number
		}
	}
	f.mu.Unlock()

	if f.readDelay > 0 {
		time.Sleep(f.readDelay)
	}
	return last, nil
}

func (f *fakeRepo) ApprovalNumberExists(_ context.Context, number string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.approvals {
		if a.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) CreateApproval(_ context.Context, a *domain.Approval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.approvals {
		if existing.Number == a.Number {
			return apperr.Conflict("duplicate approval number")
		}
	}
	row := *a
	row.Suspensions, row.Prolongations = nil, nil
	f.approvals[a.ID] = row
	return nil
}

func (f *fakeRepo) SaveApprovalDates(_ context.Context, a *domain.Approval) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.approvals[a.ID]
	if !ok {
		return apperr.NotFound("approval not found")
	}
	row.StartAt, row.EndAt, row.GrantedEndAt = a.StartAt, a.EndAt, a.GrantedEndAt
	f.approvals[a.ID] = row
	return nil
}

func (f *fakeRepo) GetApproval(_ context.Context, id uuid.UUID) (*domain.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked(id)
}

func (f *fakeRepo) GetApprovalByNumber(_ context.Context, number string) (*domain.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, a := range f.approvals {
		if a.Number == number {
			return f.loadLocked(id)
		}
	}
	return nil, apperr.NotFound("approval not found")
}

func (f *fakeRepo) LockApproval(ctx context.Context, id uuid.UUID) (*domain.Approval, error) {
	return f.GetApproval(ctx, id)
}

func (f *fakeRepo) ListApprovalsForJobSeeker(_ context.Context, userID uuid.UUID) ([]domain.Approval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Approval
	for id, a := range f.approvals {
		if a.UserID == userID {
			loaded, _ := f.loadLocked(id)
			out = append(out, *loaded)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.After(out[j].StartAt) })
	return out, nil
}

func (f *fakeRepo) loadLocked(id uuid.UUID) (*domain.Approval, error) {
	row, ok := f.approvals[id]
	if !ok {
		return nil, apperr.NotFound("approval not found")
	}
	a := row
	for _, s := range f.suspensions {
		if s.ApprovalID == id {
			a.Suspensions = append(a.Suspensions, s)
		}
	}
	for _, p := range f.prolongations {
		if p.ApprovalID == id {
			a.Prolongations = append(a.Prolongations, p)
		}
	}
	sort.Slice(a.Suspensions, func(i, j int) bool { return a.Suspensions[i].StartAt.Before(a.Suspensions[j].StartAt) })
	sort.Slice(a.Prolongations, func(i, j int) bool { return a.Prolongations[i].StartAt.Before(a.Prolongations[j].StartAt) })
	return &a, nil
}

func (f *fakeRepo) GetSuspension(_ context.Context, id uuid.UUID) (*domain.Suspension, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.suspensions[id]
	if !ok {
		return nil, apperr.NotFound("suspension not found")
	}
	return &s, nil
}

func (f *fakeRepo) CreateSuspension(_ context.Context, s *domain.Suspension) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suspensions[s.ID] = *s
	return nil
}

func (f *fakeRepo) UpdateSuspension(_ context.Context, s *domain.Suspension) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.suspensions[s.ID]; !ok {
		return apperr.NotFound("suspension not found")
	}
	f.suspensions[s.ID] = *s
	return nil
}

func (f *fakeRepo) DeleteSuspension(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.suspensions, id)
	return nil
}

func (f *fakeRepo) GetProlongation(_ context.Context, id uuid.UUID) (*domain.Prolongation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prolongations[id]
	if !ok {
		return nil, apperr.NotFound("prolongation not found")
	}
	return &p, nil
}

func (f *fakeRepo) CreateProlongation(_ context.Context, p *domain.Prolongation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.prolongations {
		if existing.ApprovalID == p.ApprovalID && existing.StartAt.Before(p.EndAt) && p.StartAt.Before(existing.EndAt) {
			return apperr.Conflict("dates overlap an existing record")
		}
	}
	f.prolongations[p.ID] = *p
	return nil
}

func (f *fakeRepo) UpdateProlongation(_ context.Context, p *domain.Prolongation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prolongations[p.ID] = *p
	return nil
}

func (f *fakeRepo) DeleteProlongation(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.prolongations, id)
	return nil
}

func (f *fakeRepo) GetJobSeeker(_ context.Context, id uuid.UUID) (*repository.JobSeeker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	js, ok := f.jobSeekers[id]
	if !ok {
		return nil, apperr.NotFound("job seeker not found")
	}
	return &js, nil
}

func (f *fakeRepo) FindJobSeekerByEmail(_ context.Context, email string) (*repository.JobSeeker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, js := range f.jobSeekers {
		if js.Email != nil && strings.EqualFold(*js.Email, email) {
			return &js, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) FindJobSeekerByPoleEmploiID(_ context.Context, poleEmploiID string, birthdate time.Time) (*repository.JobSeeker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, js := range f.jobSeekers {
		if js.PoleEmploiID != nil && *js.PoleEmploiID == poleEmploiID && js.Birthdate != nil && js.Birthdate.Equal(birthdate) {
			return &js, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateJobSeeker(_ context.Context, js *repository.JobSeeker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobSeekers[js.ID] = *js
	return nil
}

func (f *fakeRepo) GetSiae(_ context.Context, id uuid.UUID) (*repository.Siae, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.siaes[id]
	if !ok {
		return nil, apperr.NotFound("siae not found")
	}
	return &s, nil
}

func (f *fakeRepo) GetPrescriber(_ context.Context, id uuid.UUID) (*repository.Prescriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prescribers[id]
	if !ok {
		return nil, apperr.NotFound("prescriber not found")
	}
	return &p, nil
}

func (f *fakeRepo) LockJobApplication(_ context.Context, id uuid.UUID) (*repository.JobApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ja, ok := f.jobApps[id]
	if !ok {
		return nil, apperr.NotFound("job application not found")
	}
	return &ja, nil
}

func (f *fakeRepo) CreateJobApplication(_ context.Context, ja *repository.JobApplication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobApps[ja.ID] = *ja
	return nil
}

func (f *fakeRepo) MarkJobApplicationAccepted(_ context.Context, id, approvalID uuid.UUID, hiringStartAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ja, ok := f.jobApps[id]
	if !ok {
		return apperr.NotFound("job application not found")
	}
	ja.State = repository.JobApplicationStateAccepted
	ja.ApprovalID = &approvalID
	ja.HiringStartAt = &hiringStartAt
	f.jobApps[id] = ja
	return nil
}

func (f *fakeRepo) LastHiringSiaeID(_ context.Context, jobSeekerID uuid.UUID) (*uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last *repository.JobApplication
	for _, ja := range f.jobApps {
		if ja.JobSeekerID != jobSeekerID || ja.State != repository.JobApplicationStateAccepted || ja.ToSiaeID == nil {
			continue
		}
		if last == nil || ja.HiringStartAt.After(*last.HiringStartAt) {
			candidate := ja
			last = &candidate
		}
	}
	if last == nil {
		return nil, nil
	}
	return last.ToSiaeID, nil
}

func (f *fakeRepo) GetPoleEmploiApproval(_ context.Context, id uuid.UUID) (*domain.PoleEmploiApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pe, ok := f.peApprovals[id]
	if !ok {
		return nil, apperr.NotFound("pole emploi approval not found")
	}
	return &pe, nil
}

func (f *fakeRepo) SearchPoleEmploiApprovalsByNumber(_ context.Context, number string) ([]domain.PoleEmploiApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PoleEmploiApproval
	for _, pe := range f.peApprovals {
		if strings.HasPrefix(pe.Number, number) {
			out = append(out, pe)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindPoleEmploiApprovalsForJobSeeker(_ context.Context, poleEmploiID string, birthdate time.Time) ([]domain.PoleEmploiApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PoleEmploiApproval
	for _, pe := range f.peApprovals {
		if pe.PoleEmploiID == poleEmploiID && pe.Birthdate.Equal(birthdate) {
			out = append(out, pe)
		}
	}
	return out, nil
}

var _ Repository = (*fakeRepo)(nil)
