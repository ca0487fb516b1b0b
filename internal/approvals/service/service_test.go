package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"itou_backend/internal/adapters/storage"
	"itou_backend/internal/approvals/domain"
	"itou_backend/internal/approvals/repository"
	"itou_backend/internal/approvals/transport"
	"itou_backend/internal/events"
	"itou_backend/platform/apperr"
	"itou_backend/platform/logger"

	"github.com/google/uuid"
)

var testToday = domain.Date(2024, time.June, 15)

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) published() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.events...)
}

type fakeStorage struct {
	bucket, folder, fileName string
	deleted                  []string
}

func (f *fakeStorage) GenerateDownloadURL(_ context.Context, bucket, fileKey string) (*storage.PresignedURL, error) {
	return &storage.PresignedURL{
		URL:       "https://files.example.test/" + bucket + "/" + fileKey,
		FileKey:   fileKey,
		ExpiresAt: testToday.Add(time.Hour),
	}, nil
}

func (f *fakeStorage) DeleteObject(_ context.Context, _, fileKey string) error {
	f.deleted = append(f.deleted, fileKey)
	return nil
}

func (f *fakeStorage) GenerateUploadURL(_ context.Context, bucket, folder, fileName, _ string, _ int64) (*storage.PresignedURL, error) {
	f.bucket, f.folder, f.fileName = bucket, folder, fileName
	return &storage.PresignedURL{
		URL:       "https://files.example.test/" + folder + "/" + fileName,
		FileKey:   folder + "/" + fileName,
		ExpiresAt: testToday.Add(time.Hour),
	}, nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *recordingBus) {
	t.Helper()
	repo := newFakeRepo()
	bus := &recordingBus{}
	svc := New(repo, DefaultRules, logger.Discard())
	svc.SetEventBus(bus)
	svc.SetClock(func() time.Time { return time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC) })
	return svc, repo, bus
}

func seedJobSeeker(repo *fakeRepo) uuid.UUID {
	id := uuid.New()
	repo.jobSeekers[id] = repository.JobSeeker{ID: id, FirstName: "Jeanne", LastName: "Martin"}
	return id
}

func seedSiae(repo *fakeRepo, name string) uuid.UUID {
	id := uuid.New()
	repo.siaes[id] = repository.Siae{ID: id, Kind: "EI", Name: name}
	return id
}

func seedHiring(repo *fakeRepo, jobSeekerID, siaeID uuid.UUID, hiring time.Time) {
	id := uuid.New()
	repo.jobApps[id] = repository.JobApplication{
		ID:            id,
		JobSeekerID:   jobSeekerID,
		ToSiaeID:      &siaeID,
		State:         repository.JobApplicationStateAccepted,
		HiringStartAt: &hiring,
	}
}

var seededNumbers int

func seedApproval(repo *fakeRepo, userID uuid.UUID, start, grantedEnd time.Time) domain.Approval {
	seededNumbers++
	a := domain.Approval{
		ID:           uuid.New(),
		Number:       fmt.Sprintf("99999%07d", seededNumbers),
		StartAt:      start,
		EndAt:        grantedEnd,
		GrantedEndAt: grantedEnd,
		UserID:       userID,
		Origin:       domain.OriginDefault,
	}
	repo.approvals[a.ID] = a
	return a
}

func seedSuspension(repo *fakeRepo, a *domain.Approval, start, end time.Time, reason domain.SuspensionReason) domain.Suspension {
	s := domain.Suspension{ID: uuid.New(), ApprovalID: a.ID, StartAt: start, EndAt: end, Reason: reason}
	repo.suspensions[s.ID] = s
	a.Suspensions = append(a.Suspensions, s)
	domain.RecomputeEndAt(a)
	repo.approvals[a.ID] = domain.Approval{
		ID: a.ID, Number: a.Number, StartAt: a.StartAt, EndAt: a.EndAt, GrantedEndAt: a.GrantedEndAt,
		UserID: a.UserID, Origin: a.Origin,
	}
	return s
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if !apperr.Is(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

// ── Numbering ─────────────────────────────────────────────────────────────────

func TestCreateApprovalConcurrentCallsGetDistinctNumbers(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.readDelay = 10 * time.Millisecond
	userID := seedJobSeeker(repo)

	const workers = 5
	numbers := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := svc.CreateApproval(context.Background(), CreateApprovalParams{UserID: userID, StartAt: testToday})
			errs[i] = err
			if err == nil {
				numbers[i] = a.Number
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d failed: %v", i, err)
		}
	}
	sort.Strings(numbers)
	for i, number := range numbers {
		want := fmt.Sprintf("XXXXX%07d", i+1)
		if number != want {
			t.Fatalf("expected %s at position %d, got %v", want, i, numbers)
		}
	}
	if repo.numberSeqCalls != workers {
		t.Fatalf("expected the sequence to be locked %d times, got %d", workers, repo.numberSeqCalls)
	}
}

func TestCreateApprovalAppliesDefaultDurationAndPublishes(t *testing.T) {
	svc, repo, bus := newTestService(t)
	userID := seedJobSeeker(repo)

	a, err := svc.CreateApproval(context.Background(), CreateApprovalParams{
		UserID:  userID,
		StartAt: domain.Date(2024, time.January, 15),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Number != "XXXXX0000001" {
		t.Fatalf("expected first number, got %s", a.Number)
	}
	if want := domain.Date(2026, time.January, 14); !a.EndAt.Equal(want) || !a.GrantedEndAt.Equal(want) {
		t.Fatalf("expected end %s, got end=%s granted=%s", want, a.EndAt, a.GrantedEndAt)
	}
	if a.Origin != domain.OriginDefault {
		t.Fatalf("expected default origin, got %s", a.Origin)
	}

	published := bus.published()
	if len(published) != 1 {
		t.Fatalf("expected one event, got %d", len(published))
	}
	delivered, ok := published[0].(events.ApprovalDelivered)
	if !ok || delivered.Number != a.Number || delivered.UserID != userID {
		t.Fatalf("unexpected event %#v", published[0])
	}
}

func TestCreateApprovalContinuesAfterLastNumber(t *testing.T) {
	svc, repo, _ := newTestService(t)
	userID := seedJobSeeker(repo)
	repo.approvals[uuid.New()] = domain.Approval{Number: "XXXXX0000041", UserID: userID}
	repo.approvals[uuid.New()] = domain.Approval{Number: "999990000900", UserID: userID}

	a, err := svc.CreateApproval(context.Background(), CreateApprovalParams{UserID: userID, StartAt: testToday})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Number != "XXXXX0000042" {
		t.Fatalf("expected XXXXX0000042, got %s", a.Number)
	}
}

func TestCreateApprovalSequenceOverflowIsInternal(t *testing.T) {
	svc, repo, bus := newTestService(t)
	userID := seedJobSeeker(repo)
	repo.approvals[uuid.New()] = domain.Approval{Number: "XXXXX9999999", UserID: userID}

	_, err := svc.CreateApproval(context.Background(), CreateApprovalParams{UserID: userID, StartAt: testToday})
	assertKind(t, err, apperr.KindInternal)
	if !errors.Is(err, domain.ErrNumberOverflow) {
		t.Fatalf("expected overflow to be wrapped, got %v", err)
	}
	if len(bus.published()) != 0 {
		t.Fatal("expected no event on failure")
	}
}

func TestCreateApprovalUnknownJobSeeker(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateApproval(context.Background(), CreateApprovalParams{UserID: uuid.New(), StartAt: testToday})
	assertKind(t, err, apperr.KindNotFound)
}

func TestDeliverApprovalRequiresAdmin(t *testing.T) {
	svc, repo, _ := newTestService(t)
	userID := seedJobSeeker(repo)
	req := transport.CreateApprovalRequest{UserID: userID, StartAt: "2024-06-15", EndAt: "2025-06-14"}

	_, err := svc.DeliverApproval(context.Background(), Actor{UserID: uuid.New()}, req)
	assertKind(t, err, apperr.KindForbidden)

	view, err := svc.DeliverApproval(context.Background(), Actor{UserID: uuid.New(), IsAdmin: true}, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Origin != string(domain.OriginAdmin) || view.EndAt != "2025-06-14" || view.State != string(domain.StateValid) {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.NumberWithSpaces != "XXXXX 00 00001" {
		t.Fatalf("unexpected display number %q", view.NumberWithSpaces)
	}
}

// ── Suspensions ───────────────────────────────────────────────────────────────

func TestSuspensionLifecycleShiftsEndDate(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	userID := seedJobSeeker(repo)
	siaeID := seedSiae(repo, "Les Jardins")
	seedHiring(repo, userID, siaeID, domain.Date(2024, time.January, 1))
	a := seedApproval(repo, userID, domain.Date(2024, time.January, 1), domain.Date(2025, time.December, 31))
	actor := Actor{UserID: uuid.New(), SiaeID: &siaeID}

	view, err := svc.CreateSuspension(ctx, actor, a.ID, transport.SuspensionRequest{
		StartAt: "2024-06-01",
		EndAt:   "2024-06-30",
		Reason:  "sickness",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if view.EndAt != "2026-01-29" || view.GrantedEndAt != "2025-12-31" {
		t.Fatalf("expected end pushed by 29 days, got %s (granted %s)", view.EndAt, view.GrantedEndAt)
	}
	if view.State != string(domain.StateSuspended) || len(view.Suspensions) != 1 {
		t.Fatalf("expected a suspended approval, got %+v", view)
	}
	suspensionID := view.Suspensions[0].ID

	view, err = svc.UpdateSuspension(ctx, actor, suspensionID, transport.SuspensionRequest{
		StartAt: "2024-06-01",
		EndAt:   "2024-07-10",
		Reason:  "SICKNESS",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if view.EndAt != "2026-02-08" {
		t.Fatalf("expected end pushed by 39 days, got %s", view.EndAt)
	}

	view, err = svc.DeleteSuspension(ctx, actor, suspensionID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if view.EndAt != "2025-12-31" || len(view.Suspensions) != 0 {
		t.Fatalf("expected the original end date, got %+v", view)
	}
	if stored := repo.approvals[a.ID]; !stored.EndAt.Equal(domain.Date(2025, time.December, 31)) {
		t.Fatalf("expected stored end date to be restored, got %s", stored.EndAt)
	}
}

func TestCreateSuspensionPermissions(t *testing.T) {
	svc, repo, _ := newTestService(t)
	userID := seedJobSeeker(repo)
	hiringSiae := seedSiae(repo, "Les Jardins")
	otherSiae := seedSiae(repo, "Recyclerie")
	seedHiring(repo, userID, hiringSiae, domain.Date(2024, time.January, 1))
	a := seedApproval(repo, userID, domain.Date(2024, time.January, 1), domain.Date(2025, time.December, 31))
	req := transport.SuspensionRequest{StartAt: "2024-06-10", EndAt: "2024-06-20", Reason: "SICKNESS"}

	tests := []struct {
		name  string
		actor Actor
		kind  apperr.Kind
	}{
		{name: "other employer", actor: Actor{UserID: uuid.New(), SiaeID: &otherSiae}, kind: apperr.KindForbidden},
		{name: "no employer", actor: Actor{UserID: uuid.New()}, kind: apperr.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSuspension(context.Background(), tt.actor, a.ID, req)
			assertKind(t, err, tt.kind)
		})
	}

	if _, err := svc.CreateSuspension(context.Background(), Actor{UserID: uuid.New(), IsAdmin: true}, a.ID, req); err != nil {
		t.Fatalf("admin should be allowed: %v", err)
	}
}

func TestCreateSuspensionRejectsInvalidDates(t *testing.T) {
	svc, repo, _ := newTestService(t)
	userID := seedJobSeeker(repo)
	a := seedApproval(repo, userID, domain.Date(2024, time.January, 1), domain.Date(2025, time.December, 31))
	admin := Actor{UserID: uuid.New(), IsAdmin: true}

	tests := []struct {
		name string
		req  transport.SuspensionRequest
	}{
		{name: "future start", req: transport.SuspensionRequest{StartAt: "2024-06-16", EndAt: "2024-07-01", Reason: "SICKNESS"}},
		{name: "too retroactive", req: transport.SuspensionRequest{StartAt: "2024-05-01", EndAt: "2024-07-01", Reason: "SICKNESS"}},
		{name: "end before start", req: transport.SuspensionRequest{StartAt: "2024-06-10", EndAt: "2024-06-01", Reason: "SICKNESS"}},
		{name: "too long", req: transport.SuspensionRequest{StartAt: "2024-06-10", EndAt: "2027-06-10", Reason: "SICKNESS"}},
		{name: "unknown reason", req: transport.SuspensionRequest{StartAt: "2024-06-10", EndAt: "2024-06-20", Reason: "HOLIDAYS"}},
		{name: "bad date", req: transport.SuspensionRequest{StartAt: "10/06/2024", EndAt: "2024-06-20", Reason: "SICKNESS"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSuspension(context.Background(), admin, a.ID, tt.req)
			assertKind(t, err, apperr.KindValidation)
		})
	}
	if len(repo.suspensions) != 0 {
		t.Fatalf("expected no suspension stored, got %d", len(repo.suspensions))
	}
}

func TestModifySuspensionByOtherSiaeForbidden(t *testing.T) {
	svc, repo, _ := newTestService(t)
	userID := seedJobSeeker(repo)
	declaring := seedSiae(repo, "Les Jardins")
	other := seedSiae(repo, "Recyclerie")
	a := seedApproval(repo, userID, domain.Date(2024, time.January, 1), domain.Date(2025, time.December, 31))
	s := seedSuspension(repo, &a, domain.Date(2024, time.June, 1), domain.Date(2024, time.June, 30), domain.SuspensionSickness)
	s.SiaeID = &declaring
	repo.suspensions[s.ID] = s

	_, err := svc.DeleteSuspension(context.Background(), Actor{UserID: uuid.New(), SiaeID: &other}, s.ID)
	assertKind(t, err, apperr.KindForbidden)
}

// ── Prolongations ─────────────────────────────────────────────────────────────

type prolongationFixture struct {
	approval   domain.Approval
	siaeID     uuid.UUID
	prescriber repository.Prescriber
	actor      Actor
}

func seedProlongationFixture(repo *fakeRepo, authorized bool) prolongationFixture {
	userID := seedJobSeeker(repo)
	siaeID := seedSiae(repo, "Les Jardins")
	seedHiring(repo, userID, siaeID, domain.Date(2022, time.July, 1))
	prescriber := repository.Prescriber{
		ID:           uuid.New(),
		Email:        "conseillere@example.test",
		FirstName:    "Claire",
		LastName:     "Durand",
		IsAuthorized: authorized,
	}
	repo.prescribers[prescriber.ID] = prescriber
	return prolongationFixture{
		approval:   seedApproval(repo, userID, domain.Date(2022, time.July, 1), domain.Date(2024, time.August, 31)),
		siaeID:     siaeID,
		prescriber: prescriber,
		actor:      Actor{UserID: uuid.New(), SiaeID: &siaeID},
	}
}

func TestDeclareProlongationExtendsAndNotifiesPrescriber(t *testing.T) {
	svc, repo, bus := newTestService(t)
	fx := seedProlongationFixture(repo, true)

	view, err := svc.DeclareProlongation(context.Background(), fx.actor, fx.approval.ID, transport.DeclareProlongationRequest{
		EndAt:         "2025-02-28",
		Reason:        "rqth",
		ValidatedByID: &fx.prescriber.ID,
		ReportFileKey: "prolongation_report/a/report.pdf",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.EndAt != "2025-02-28" || len(view.Prolongations) != 1 {
		t.Fatalf("unexpected view %+v", view)
	}
	if p := view.Prolongations[0]; p.StartAt != "2024-08-31" || p.Duration != 181 {
		t.Fatalf("unexpected prolongation %+v", p)
	}

	published := bus.published()
	if len(published) != 1 {
		t.Fatalf("expected one event, got %d", len(published))
	}
	declared, ok := published[0].(events.ProlongationDeclared)
	if !ok {
		t.Fatalf("unexpected event type %T", published[0])
	}
	if declared.PrescriberEmail != fx.prescriber.Email || declared.PrescriberName != "Claire Durand" {
		t.Fatalf("unexpected prescriber in event %+v", declared)
	}
	if declared.SiaeName != "Les Jardins" || declared.JobSeekerName != "Jeanne Martin" {
		t.Fatalf("unexpected names in event %+v", declared)
	}
	if declared.ApprovalNumber != fx.approval.Number || declared.ReasonLabel != domain.ProlongationRQTH.Label() {
		t.Fatalf("unexpected approval details in event %+v", declared)
	}
}

func TestDeclareProlongationWithoutPrescriberPublishesNothing(t *testing.T) {
	svc, repo, bus := newTestService(t)
	fx := seedProlongationFixture(repo, true)

	view, err := svc.DeclareProlongation(context.Background(), fx.actor, fx.approval.ID, transport.DeclareProlongationRequest{
		EndAt:  "2025-08-31",
		Reason: "COMPLETE_TRAINING",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.EndAt != "2025-08-31" {
		t.Fatalf("expected new end date, got %s", view.EndAt)
	}
	if len(bus.published()) != 0 {
		t.Fatal("expected no notification without a validating prescriber")
	}
}

func TestDeclareProlongationRejections(t *testing.T) {
	tests := []struct {
		name       string
		authorized bool
		actor      func(fx prolongationFixture) Actor
		req        func(fx prolongationFixture) transport.DeclareProlongationRequest
		kind       apperr.Kind
	}{
		{
			name:       "prescriber not authorized",
			authorized: false,
			actor:      func(fx prolongationFixture) Actor { return fx.actor },
			req: func(fx prolongationFixture) transport.DeclareProlongationRequest {
				return transport.DeclareProlongationRequest{EndAt: "2025-02-28", Reason: "RQTH", ValidatedByID: &fx.prescriber.ID, ReportFileKey: "r.pdf"}
			},
			kind: apperr.KindValidation,
		},
		{
			name:       "missing report",
			authorized: true,
			actor:      func(fx prolongationFixture) Actor { return fx.actor },
			req: func(fx prolongationFixture) transport.DeclareProlongationRequest {
				return transport.DeclareProlongationRequest{EndAt: "2025-02-28", Reason: "RQTH", ValidatedByID: &fx.prescriber.ID}
			},
			kind: apperr.KindValidation,
		},
		{
			name:       "longer than a year",
			authorized: true,
			actor:      func(fx prolongationFixture) Actor { return fx.actor },
			req: func(fx prolongationFixture) transport.DeclareProlongationRequest {
				return transport.DeclareProlongationRequest{EndAt: "2025-09-01", Reason: "COMPLETE_TRAINING"}
			},
			kind: apperr.KindValidation,
		},
		{
			name:       "unknown reason",
			authorized: true,
			actor:      func(fx prolongationFixture) Actor { return fx.actor },
			req: func(fx prolongationFixture) transport.DeclareProlongationRequest {
				return transport.DeclareProlongationRequest{EndAt: "2025-02-28", Reason: "BORED"}
			},
			kind: apperr.KindValidation,
		},
		{
			name:       "other employer",
			authorized: true,
			actor: func(fx prolongationFixture) Actor {
				other := uuid.New()
				return Actor{UserID: uuid.New(), SiaeID: &other}
			},
			req: func(fx prolongationFixture) transport.DeclareProlongationRequest {
				return transport.DeclareProlongationRequest{EndAt: "2025-02-28", Reason: "COMPLETE_TRAINING"}
			},
			kind: apperr.KindForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, bus := newTestService(t)
			fx := seedProlongationFixture(repo, tt.authorized)

			_, err := svc.DeclareProlongation(context.Background(), tt.actor(fx), fx.approval.ID, tt.req(fx))
			assertKind(t, err, tt.kind)
			if len(repo.prolongations) != 0 || len(bus.published()) != 0 {
				t.Fatal("expected nothing stored or published")
			}
			if stored := repo.approvals[fx.approval.ID]; !stored.EndAt.Equal(fx.approval.EndAt) {
				t.Fatalf("expected end date unchanged, got %s", stored.EndAt)
			}
		})
	}
}

func TestProlongationChainOnlyLastCanChange(t *testing.T) {
	svc, repo, _ := newTestService(t)
	userID := seedJobSeeker(repo)
	a := seedApproval(repo, userID, domain.Date(2022, time.April, 1), domain.Date(2024, time.March, 31))
	first := domain.Prolongation{
		ID: uuid.New(), ApprovalID: a.ID, Reason: domain.ProlongationCompleteTraining,
		StartAt: domain.Date(2024, time.March, 31), EndAt: domain.Date(2024, time.May, 31),
	}
	second := domain.Prolongation{
		ID: uuid.New(), ApprovalID: a.ID, Reason: domain.ProlongationCompleteTraining,
		StartAt: domain.Date(2024, time.May, 31), EndAt: domain.Date(2024, time.August, 31),
	}
	repo.prolongations[first.ID] = first
	repo.prolongations[second.ID] = second
	stored := repo.approvals[a.ID]
	stored.EndAt = domain.Date(2024, time.August, 31)
	repo.approvals[a.ID] = stored
	admin := Actor{UserID: uuid.New(), IsAdmin: true}

	_, err := svc.UpdateProlongation(context.Background(), admin, first.ID, transport.UpdateProlongationRequest{EndAt: "2024-06-30"})
	assertKind(t, err, apperr.KindValidation)

	_, err = svc.DeleteProlongation(context.Background(), admin, first.ID)
	assertKind(t, err, apperr.KindConflict)

	view, err := svc.UpdateProlongation(context.Background(), admin, second.ID, transport.UpdateProlongationRequest{EndAt: "2024-09-30"})
	if err != nil {
		t.Fatalf("update last: %v", err)
	}
	if view.EndAt != "2024-09-30" {
		t.Fatalf("expected 2024-09-30, got %s", view.EndAt)
	}

	view, err = svc.DeleteProlongation(context.Background(), admin, second.ID)
	if err != nil {
		t.Fatalf("delete last: %v", err)
	}
	if view.EndAt != "2024-05-31" || len(view.Prolongations) != 1 {
		t.Fatalf("expected only the first prolongation to remain, got %+v", view)
	}
}

func TestProlongationReportUploadURL(t *testing.T) {
	svc, repo, _ := newTestService(t)
	fx := seedProlongationFixture(repo, true)
	req := transport.ReportUploadURLRequest{
		ApprovalID:  fx.approval.ID,
		FileName:    "../../rapport.pdf",
		ContentType: "application/pdf",
		SizeBytes:   1024,
	}

	_, err := svc.ProlongationReportUploadURL(context.Background(), fx.actor, req)
	assertKind(t, err, apperr.KindInternal)

	st := &fakeStorage{}
	svc.SetReportStorage(st, "prolongation-reports")
	resp, err := svc.ProlongationReportUploadURL(context.Background(), fx.actor, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantFolder := "prolongation_report/" + fx.approval.ID.String()
	if st.bucket != "prolongation-reports" || st.folder != wantFolder || st.fileName != "rapport.pdf" {
		t.Fatalf("unexpected storage call %+v", st)
	}
	if resp.FileKey != wantFolder+"/rapport.pdf" {
		t.Fatalf("unexpected file key %s", resp.FileKey)
	}

	_, err = svc.ProlongationReportUploadURL(context.Background(), Actor{UserID: uuid.New()}, req)
	assertKind(t, err, apperr.KindForbidden)
}

func TestProlongationReportDownloadAndCleanup(t *testing.T) {
	svc, repo, _ := newTestService(t)
	fx := seedProlongationFixture(repo, true)
	st := &fakeStorage{}
	svc.SetReportStorage(st, "prolongation-reports")

	view, err := svc.DeclareProlongation(context.Background(), fx.actor, fx.approval.ID, transport.DeclareProlongationRequest{
		EndAt:         "2025-02-28",
		Reason:        "rqth",
		ValidatedByID: &fx.prescriber.ID,
		ReportFileKey: "prolongation_report/a/report.pdf",
	})
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	id := view.Prolongations[0].ID

	link, err := svc.ProlongationReportDownloadURL(context.Background(), fx.actor, id)
	if err != nil {
		t.Fatalf("download url: %v", err)
	}
	if link.URL != "https://files.example.test/prolongation-reports/prolongation_report/a/report.pdf" {
		t.Fatalf("unexpected url %s", link.URL)
	}

	otherSiae := uuid.New()
	_, err = svc.ProlongationReportDownloadURL(context.Background(), Actor{UserID: uuid.New(), SiaeID: &otherSiae}, id)
	assertKind(t, err, apperr.KindForbidden)

	if _, err := svc.DeleteProlongation(context.Background(), fx.actor, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(st.deleted) != 1 || st.deleted[0] != "prolongation_report/a/report.pdf" {
		t.Fatalf("expected the report to be removed, got %v", st.deleted)
	}
}

// ── Hiring ────────────────────────────────────────────────────────────────────

func seedJobApplication(repo *fakeRepo, jobSeekerID, siaeID uuid.UUID) uuid.UUID {
	id := uuid.New()
	repo.jobApps[id] = repository.JobApplication{
		ID:          id,
		JobSeekerID: jobSeekerID,
		ToSiaeID:    &siaeID,
		State:       repository.JobApplicationStateNew,
	}
	return id
}

func TestAcceptJobApplicationDeliversApproval(t *testing.T) {
	svc, repo, bus := newTestService(t)
	userID := seedJobSeeker(repo)
	siaeID := seedSiae(repo, "Les Jardins")
	jaID := seedJobApplication(repo, userID, siaeID)
	actor := Actor{UserID: uuid.New(), SiaeID: &siaeID}
	req := transport.AcceptJobApplicationRequest{HiringStartAt: "2024-06-17"}

	resp, err := svc.AcceptJobApplication(context.Background(), actor, jaID, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Delivered || resp.Unsuspended {
		t.Fatalf("expected a delivered approval, got %+v", resp)
	}
	if resp.Approval.StartAt != "2024-06-17" || resp.Approval.EndAt != "2026-06-16" {
		t.Fatalf("unexpected dates %s..%s", resp.Approval.StartAt, resp.Approval.EndAt)
	}
	if resp.Approval.State != string(domain.StateFuture) || !resp.Approval.IsValid {
		t.Fatalf("expected a valid future approval, got %s", resp.Approval.State)
	}
	ja := repo.jobApps[jaID]
	if ja.State != repository.JobApplicationStateAccepted || ja.ApprovalID == nil || *ja.ApprovalID != resp.Approval.ID {
		t.Fatalf("expected the application to be accepted with the approval, got %+v", ja)
	}
	if len(bus.published()) != 1 {
		t.Fatalf("expected a delivery event, got %d", len(bus.published()))
	}

	_, err = svc.AcceptJobApplication(context.Background(), actor, jaID, req)
	assertKind(t, err, apperr.KindConflict)
}

func TestAcceptJobApplicationReusesValidApproval(t *testing.T) {
	tests := []struct {
		name            string
		reason          domain.SuspensionReason
		hiring          string
		wantUnsuspended bool
		wantEnd         string
		// zero when the suspension must be deleted
		wantSuspensionEnd time.Time
	}{
		{name: "unsuspends broken contract", reason: domain.SuspensionBrokenContract, hiring: "2024-06-20",
			wantUnsuspended: true, wantEnd: "2026-01-18", wantSuspensionEnd: domain.Date(2024, time.June, 19)},
		{name: "keeps sickness", reason: domain.SuspensionSickness, hiring: "2024-06-20",
			wantEnd: "2026-05-01", wantSuspensionEnd: domain.Date(2024, time.September, 30)},
		{name: "hiring after planned end keeps suspension", reason: domain.SuspensionBrokenContract, hiring: "2024-10-15",
			wantEnd: "2026-05-01", wantSuspensionEnd: domain.Date(2024, time.September, 30)},
		{name: "hiring on first day deletes suspension", reason: domain.SuspensionBrokenContract, hiring: "2024-06-01",
			wantUnsuspended: true, wantEnd: "2025-12-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, bus := newTestService(t)
			userID := seedJobSeeker(repo)
			siaeID := seedSiae(repo, "Recyclerie")
			a := seedApproval(repo, userID, domain.Date(2024, time.January, 1), domain.Date(2025, time.December, 31))
			s := seedSuspension(repo, &a, domain.Date(2024, time.June, 1), domain.Date(2024, time.September, 30), tt.reason)
			jaID := seedJobApplication(repo, userID, siaeID)

			resp, err := svc.AcceptJobApplication(context.Background(), Actor{UserID: uuid.New(), SiaeID: &siaeID}, jaID,
				transport.AcceptJobApplicationRequest{HiringStartAt: tt.hiring})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Delivered || resp.Approval.ID != a.ID {
				t.Fatalf("expected the existing approval to be reused, got %+v", resp)
			}
			if resp.Unsuspended != tt.wantUnsuspended || resp.Approval.EndAt != tt.wantEnd {
				t.Fatalf("unexpected result unsuspended=%v end=%s", resp.Unsuspended, resp.Approval.EndAt)
			}
			if stored := repo.approvals[a.ID]; stored.EndAt.Format(time.DateOnly) != tt.wantEnd {
				t.Fatalf("expected stored end %s, got %s", tt.wantEnd, stored.EndAt.Format(time.DateOnly))
			}

			stored, ok := repo.suspensions[s.ID]
			if tt.wantSuspensionEnd.IsZero() {
				if ok || len(resp.Approval.Suspensions) != 0 {
					t.Fatalf("expected the suspension to be deleted, got %+v", stored)
				}
				if resp.Approval.State == string(domain.StateSuspended) {
					t.Fatal("approval must not stay suspended on the hiring day")
				}
			} else if !ok || !stored.EndAt.Equal(tt.wantSuspensionEnd) {
				t.Fatalf("expected the suspension to end %s, got %+v", tt.wantSuspensionEnd.Format(time.DateOnly), stored)
			}
			if len(bus.published()) != 0 {
				t.Fatal("expected no delivery event when reusing an approval")
			}
		})
	}
}

func TestAcceptJobApplicationOtherEmployerForbidden(t *testing.T) {
	svc, repo, _ := newTestService(t)
	userID := seedJobSeeker(repo)
	siaeID := seedSiae(repo, "Les Jardins")
	other := seedSiae(repo, "Recyclerie")
	jaID := seedJobApplication(repo, userID, siaeID)

	_, err := svc.AcceptJobApplication(context.Background(), Actor{UserID: uuid.New(), SiaeID: &other}, jaID,
		transport.AcceptJobApplicationRequest{HiringStartAt: "2024-06-17"})
	assertKind(t, err, apperr.KindForbidden)
	if len(repo.approvals) != 0 {
		t.Fatal("expected no approval delivered")
	}
}

// ── Lookups and admin ─────────────────────────────────────────────────────────

func TestGetApprovalByNumberAcceptsDisplayFormat(t *testing.T) {
	svc, repo, _ := newTestService(t)
	userID := seedJobSeeker(repo)
	a := seedApproval(repo, userID, domain.Date(2024, time.January, 1), domain.Date(2025, time.December, 31))

	view, err := svc.GetApprovalByNumber(context.Background(), Actor{}, domain.NumberWithSpaces(a.Number))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.ID != a.ID || view.RemainderDays != 565 {
		t.Fatalf("unexpected view %+v", view)
	}

	_, err = svc.GetApprovalByNumber(context.Background(), Actor{}, "99999")
	assertKind(t, err, apperr.KindValidation)
}

func TestLatestForJobSeeker(t *testing.T) {
	svc, repo, _ := newTestService(t)
	userID := seedJobSeeker(repo)
	birthdate := domain.Date(1990, time.March, 2)
	poleEmploiID := "1234567A"
	js := repo.jobSeekers[userID]
	js.Birthdate, js.PoleEmploiID = &birthdate, &poleEmploiID
	repo.jobSeekers[userID] = js

	_, err := svc.LatestForJobSeeker(context.Background(), Actor{}, userID)
	assertKind(t, err, apperr.KindNotFound)

	expired := seedApproval(repo, userID, domain.Date(2020, time.January, 1), domain.Date(2021, time.December, 31))
	resp, err := svc.LatestForJobSeeker(context.Background(), Actor{}, userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Approval == nil || resp.Approval.ID != expired.ID || resp.Approval.State != string(domain.StateExpired) {
		t.Fatalf("expected the expired approval, got %+v", resp)
	}

	pe := domain.PoleEmploiApproval{
		ID: uuid.New(), PoleEmploiID: poleEmploiID, Birthdate: birthdate, Number: "592291910000012",
		FirstName: "JEANNE", LastName: "MARTIN",
		StartAt: domain.Date(2023, time.September, 1), EndAt: domain.Date(2025, time.August, 31),
	}
	repo.peApprovals[pe.ID] = pe
	resp, err = svc.LatestForJobSeeker(context.Background(), Actor{}, userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.PoleEmploiApproval == nil || resp.PoleEmploiApproval.ID != pe.ID {
		t.Fatalf("expected the valid legacy approval, got %+v", resp)
	}

	valid := seedApproval(repo, userID, domain.Date(2024, time.January, 1), domain.Date(2025, time.December, 31))
	resp, err = svc.LatestForJobSeeker(context.Background(), Actor{}, userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Approval == nil || resp.Approval.ID != valid.ID {
		t.Fatalf("expected the valid native approval, got %+v", resp)
	}
}

func TestUpdateApprovalDatesKeepsExtensions(t *testing.T) {
	svc, repo, _ := newTestService(t)
	userID := seedJobSeeker(repo)
	a := seedApproval(repo, userID, domain.Date(2024, time.January, 1), domain.Date(2025, time.December, 31))
	seedSuspension(repo, &a, domain.Date(2024, time.June, 1), domain.Date(2024, time.June, 30), domain.SuspensionSickness)
	req := transport.UpdateApprovalDatesRequest{StartAt: "2024-02-01", EndAt: "2026-02-28"}

	_, err := svc.UpdateApprovalDates(context.Background(), Actor{UserID: uuid.New()}, a.ID, req)
	assertKind(t, err, apperr.KindForbidden)

	view, err := svc.UpdateApprovalDates(context.Background(), Actor{UserID: uuid.New(), IsAdmin: true}, a.ID, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.StartAt != "2024-02-01" || view.EndAt != "2026-02-28" || view.GrantedEndAt != "2026-01-30" {
		t.Fatalf("unexpected dates %+v", view)
	}
}

// ── Legacy approvals ──────────────────────────────────────────────────────────

func TestConvertPoleEmploiApproval(t *testing.T) {
	svc, repo, bus := newTestService(t)
	siaeID := seedSiae(repo, "Les Jardins")
	pe := domain.PoleEmploiApproval{
		ID: uuid.New(), PoleEmploiID: "7654321B", Birthdate: domain.Date(1985, time.May, 4),
		Number: "592291910000012", FirstName: "PAUL", LastName: "BERNARD",
		StartAt: domain.Date(2023, time.September, 1), EndAt: domain.Date(2025, time.August, 31),
	}
	repo.peApprovals[pe.ID] = pe
	admin := Actor{UserID: uuid.New(), IsAdmin: true}
	req := transport.ConvertPoleEmploiApprovalRequest{Email: "paul@example.test", ToSiaeID: &siaeID}

	_, err := svc.ConvertPoleEmploiApproval(context.Background(), Actor{UserID: uuid.New(), SiaeID: &siaeID}, pe.ID, req)
	assertKind(t, err, apperr.KindForbidden)

	view, err := svc.ConvertPoleEmploiApproval(context.Background(), admin, pe.ID, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Number != "592291910000" || view.Origin != string(domain.OriginPEApproval) {
		t.Fatalf("unexpected approval %+v", view)
	}
	if view.StartAt != "2023-09-01" || view.EndAt != "2025-08-31" {
		t.Fatalf("unexpected dates %s..%s", view.StartAt, view.EndAt)
	}

	js, ok := repo.jobSeekers[view.UserID]
	if !ok || js.Email == nil || *js.Email != "paul@example.test" || js.FirstName != "PAUL" {
		t.Fatalf("expected a job seeker created from the legacy record, got %+v", js)
	}
	var synthetic *repository.JobApplication
	for _, ja := range repo.jobApps {
		if ja.ApprovalID != nil && *ja.ApprovalID == view.ID {
			synthetic = &ja
		}
	}
	if synthetic == nil || synthetic.Origin != repository.JobApplicationOriginPEApproval || synthetic.State != repository.JobApplicationStateAccepted {
		t.Fatalf("expected a synthetic accepted application, got %+v", synthetic)
	}
	if len(bus.published()) != 1 {
		t.Fatalf("expected a delivery event, got %d", len(bus.published()))
	}

	_, err = svc.ConvertPoleEmploiApproval(context.Background(), admin, pe.ID, req)
	assertKind(t, err, apperr.KindConflict)

	found, err := svc.SearchPoleEmploiApprovals(context.Background(), admin, "59229 19100")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(found) != 1 || !found[0].AlreadyConverted {
		t.Fatalf("expected the converted flag, got %+v", found)
	}
}

func TestConvertPoleEmploiApprovalMatchesExistingJobSeeker(t *testing.T) {
	svc, repo, _ := newTestService(t)
	userID := seedJobSeeker(repo)
	birthdate := domain.Date(1985, time.May, 4)
	poleEmploiID := "7654321B"
	js := repo.jobSeekers[userID]
	js.Birthdate, js.PoleEmploiID = &birthdate, &poleEmploiID
	repo.jobSeekers[userID] = js
	pe := domain.PoleEmploiApproval{
		ID: uuid.New(), PoleEmploiID: poleEmploiID, Birthdate: birthdate, Number: "592291910000012",
		StartAt: domain.Date(2023, time.September, 1), EndAt: domain.Date(2025, time.August, 31),
	}
	repo.peApprovals[pe.ID] = pe

	view, err := svc.ConvertPoleEmploiApproval(context.Background(), Actor{UserID: uuid.New(), IsAdmin: true}, pe.ID, transport.ConvertPoleEmploiApprovalRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.UserID != userID || len(repo.jobSeekers) != 1 {
		t.Fatalf("expected the existing job seeker to be reused, got %s", view.UserID)
	}
}

func TestSearchPoleEmploiApprovalsNeedsFiveCharacters(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.SearchPoleEmploiApprovals(context.Background(), Actor{IsAdmin: true}, "5922")
	assertKind(t, err, apperr.KindValidation)
}
