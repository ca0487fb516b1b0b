package domain

import (
	"slices"
	"sort"
	"time"

	"itou_backend/platform/apperr"

	"github.com/google/uuid"
)

// State is the classification of an approval on a given day.
type State string

const (
	StateFuture    State = "FUTURE"
	StateValid     State = "VALID"
	StateSuspended State = "SUSPENDED"
	StateExpired   State = "EXPIRED"
)

// ProlongationWindow bounds the period around the end date during which a
// prolongation may be declared.
type ProlongationWindow struct {
	MonthsBeforeEnd int
	MonthsAfterEnd  int
}

// DefaultProlongationWindow opens 7 months before the end and closes 3 months after.
var DefaultProlongationWindow = ProlongationWindow{MonthsBeforeEnd: 7, MonthsAfterEnd: 3}

// Approval is a PASS IAE granted to a job seeker.
type Approval struct {
	ID           uuid.UUID
	Number       string
	StartAt      time.Time
	EndAt        time.Time
	GrantedEndAt time.Time
	UserID       uuid.UUID
	CreatedByID  *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Origin       Origin

	Suspensions   []Suspension
	Prolongations []Prolongation
}

// Clean checks the approval's own invariants.
func (a *Approval) Clean() error {
	fields := apperr.FieldErrors{}
	if a.StartAt.IsZero() {
		fields.Add("start_at", "start date is required")
	}
	if a.EndAt.IsZero() {
		fields.Add("end_at", "end date is required")
	}
	if !a.StartAt.IsZero() && !a.EndAt.IsZero() && !a.EndAt.After(a.StartAt) {
		fields.Add("end_at", "end date must be after start date")
	}
	if a.Origin != "" && !a.Origin.IsKnown() {
		fields.Add("origin", "unknown origin")
	}
	return fields.Err("invalid approval")
}

// Duration is the number of days between start and effective end.
func (a *Approval) Duration() int {
	return DaysBetween(a.StartAt, a.EndAt)
}

// IsValid reports whether the approval has not expired. Approvals starting in
// the future are valid; an approval ending today is still valid.
func (a *Approval) IsValid(today time.Time) bool {
	return !a.EndAt.Before(today)
}

// IsInProgress reports whether today falls within [StartAt, EndAt].
func (a *Approval) IsInProgress(today time.Time) bool {
	return inRange(today, a.StartAt, a.EndAt)
}

// LastInProgressSuspension returns the suspension covering today, if any.
func (a *Approval) LastInProgressSuspension(today time.Time) *Suspension {
	var found *Suspension
	for i := range a.Suspensions {
		s := &a.Suspensions[i]
		if s.IsInProgress(today) && (found == nil || s.StartAt.After(found.StartAt)) {
			found = s
		}
	}
	return found
}

// IsSuspended reports whether the approval is in progress and paused today.
func (a *Approval) IsSuspended(today time.Time) bool {
	return a.IsInProgress(today) && a.LastInProgressSuspension(today) != nil
}

// State classifies the approval on today.
func (a *Approval) State(today time.Time) State {
	switch {
	case a.StartAt.After(today):
		return StateFuture
	case a.EndAt.Before(today):
		return StateExpired
	case a.IsSuspended(today):
		return StateSuspended
	default:
		return StateValid
	}
}

// Remainder returns the number of days of support left. Time paused by
// ongoing or future suspensions is not counted.
func (a *Approval) Remainder(today time.Time) int {
	if a.EndAt.Before(today) {
		return 0
	}
	from := maxDate(today, a.StartAt)
	days := DaysBetween(from, a.EndAt) + 1
	for _, s := range a.Suspensions {
		if s.EndAt.Before(from) {
			continue
		}
		days -= DaysBetween(maxDate(s.StartAt, from), s.EndAt)
	}
	if days < 0 {
		return 0
	}
	return days
}

// IsOpenToProlongation reports whether today is inside the prolongation window.
func (a *Approval) IsOpenToProlongation(today time.Time, window ProlongationWindow) bool {
	lower := AddMonths(a.EndAt, -window.MonthsBeforeEnd)
	upper := AddMonths(a.EndAt, window.MonthsAfterEnd)
	return inRange(today, lower, upper)
}

// CanBeSuspended reports whether a new suspension may start today.
func (a *Approval) CanBeSuspended(today time.Time) bool {
	return a.IsInProgress(today) && !a.IsSuspended(today)
}

// CanBeSuspendedBySiae restricts CanBeSuspended to the employer of the last hiring.
func (a *Approval) CanBeSuspendedBySiae(today time.Time, lastHiringSiaeID *uuid.UUID, siaeID uuid.UUID) bool {
	return a.CanBeSuspended(today) && lastHiringSiaeID != nil && *lastHiringSiaeID == siaeID
}

// CanBeProlonged reports whether a prolongation may be declared today.
func (a *Approval) CanBeProlonged(today time.Time, window ProlongationWindow) bool {
	return a.IsOpenToProlongation(today, window) && !a.IsSuspended(today)
}

// CanBeProlongedBySiae restricts CanBeProlonged to the employer of the last hiring.
func (a *Approval) CanBeProlongedBySiae(today time.Time, window ProlongationWindow, lastHiringSiaeID *uuid.UUID, siaeID uuid.UUID) bool {
	return a.CanBeProlonged(today, window) && lastHiringSiaeID != nil && *lastHiringSiaeID == siaeID
}

// CanBeUnsuspended reports whether the current suspension may be cut short by a hiring.
func (a *Approval) CanBeUnsuspended(today time.Time) bool {
	if !a.IsSuspended(today) {
		return false
	}
	return a.LastInProgressSuspension(today).Reason.AllowsUnsuspend()
}

// Unsuspend cuts the in-progress suspension short for a hiring starting on
// hiringStartAt: it ends the day before hiring, or is dropped from the
// approval (removed is true) when hiring falls on or before its first day.
// It returns nil when nothing changed: no suspension in progress, a reason
// that does not allow it, or a hiring after the planned end.
func (a *Approval) Unsuspend(today, hiringStartAt time.Time) (s *Suspension, removed bool) {
	current := a.LastInProgressSuspension(today)
	if current == nil || !current.Reason.AllowsUnsuspend() {
		return nil, false
	}

	hiring := DateOf(hiringStartAt)
	if !hiring.After(current.StartAt) {
		dropped := *current
		a.Suspensions = slices.DeleteFunc(a.Suspensions, func(x Suspension) bool { return x.ID == dropped.ID })
		RecomputeEndAt(a)
		return &dropped, true
	}

	end := AddDays(hiring, -1)
	if !end.Before(current.EndAt) {
		return nil, false
	}
	current.EndAt = end
	RecomputeEndAt(a)
	return current, false
}

// LastProlongation returns the prolongation with the latest start date.
func (a *Approval) LastProlongation() *Prolongation {
	var last *Prolongation
	for i := range a.Prolongations {
		p := &a.Prolongations[i]
		if last == nil || p.StartAt.After(last.StartAt) {
			last = p
		}
	}
	return last
}

// SuspensionsByStartDate returns the suspensions in ascending start order.
func (a *Approval) SuspensionsByStartDate() []Suspension {
	out := append([]Suspension(nil), a.Suspensions...)
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

// NumberWithSpaces formats the number for display, e.g. "XXXXX 00 00001".
func (a *Approval) NumberWithSpaces() string {
	return NumberWithSpaces(a.Number)
}

// RecomputeEndAt derives the effective end date from the granted end and
// every suspension and prolongation attached to the approval. Running it
// twice yields the same result.
func RecomputeEndAt(a *Approval) {
	if a.GrantedEndAt.IsZero() {
		a.GrantedEndAt = a.EndAt
	}
	days := 0
	for _, s := range a.Suspensions {
		days += s.Duration()
	}
	for _, p := range a.Prolongations {
		days += p.Duration()
	}
	a.EndAt = AddDays(a.GrantedEndAt, days)
}

// DefaultEndAt returns the end date of a new approval starting on startAt.
func DefaultEndAt(startAt time.Time, years, days int) time.Time {
	return AddDays(AddMonths(startAt, 12*years), days)
}
