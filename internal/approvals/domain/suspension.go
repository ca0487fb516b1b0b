package domain

import (
	"time"

	"itou_backend/platform/apperr"

	"github.com/google/uuid"
)

// SuspensionMaxDurationMonths caps the length of a single suspension.
const SuspensionMaxDurationMonths = 36

// SuspensionRules are the configurable bounds applied by Suspension.Clean.
type SuspensionRules struct {
	MaxRetroactivityDays int
	MaxDurationMonths    int
}

// DefaultSuspensionRules allows 30 days of retroactivity and 36 months of duration.
var DefaultSuspensionRules = SuspensionRules{
	MaxRetroactivityDays: 30,
	MaxDurationMonths:    SuspensionMaxDurationMonths,
}

// Suspension pauses an approval; its duration is added to the approval's end date.
type Suspension struct {
	ID                uuid.UUID
	ApprovalID        uuid.UUID
	StartAt           time.Time
	EndAt             time.Time
	Reason            SuspensionReason
	ReasonExplanation string
	SiaeID            *uuid.UUID
	CreatedByID       *uuid.UUID
	UpdatedByID       *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Duration is the number of days the suspension pushes the approval's end date.
func (s *Suspension) Duration() int {
	return DaysBetween(s.StartAt, s.EndAt)
}

// IsInProgress reports whether today falls within the suspension.
func (s *Suspension) IsInProgress(today time.Time) bool {
	return inRange(today, s.StartAt, s.EndAt)
}

// OverlapsWith reports whether both closed intervals share at least one day.
func (s *Suspension) OverlapsWith(other *Suspension) bool {
	return !s.StartAt.After(other.EndAt) && !other.StartAt.After(s.EndAt)
}

// NextMinStartAt is the earliest start date a new suspension may have: the
// latest of the approval start, the retroactivity limit and the day after
// the last suspension.
func NextMinStartAt(approval *Approval, today time.Time, rules SuspensionRules) time.Time {
	return nextMinStartAt(approval, today, rules, uuid.Nil)
}

// nextMinStartAt ignores the suspension identified by exclude, so an edited
// suspension is not bounded by itself.
func nextMinStartAt(approval *Approval, today time.Time, rules SuspensionRules, exclude uuid.UUID) time.Time {
	earliest := maxDate(approval.StartAt, AddDays(today, -rules.MaxRetroactivityDays))
	for _, other := range approval.Suspensions {
		if exclude != uuid.Nil && other.ID == exclude {
			continue
		}
		earliest = maxDate(earliest, AddDays(other.EndAt, 1))
	}
	return earliest
}

// MaxEndAt is the latest end date allowed for a suspension starting on startAt.
func MaxEndAt(startAt time.Time, rules SuspensionRules) time.Time {
	months := rules.MaxDurationMonths
	if months <= 0 {
		months = SuspensionMaxDurationMonths
	}
	return AddDays(AddMonths(startAt, months), -1)
}

// Clean validates s against its approval. When s already belongs to the
// approval (same ID) and keeps its start date, the retroactivity bound is
// not re-applied.
func (s *Suspension) Clean(approval *Approval, today time.Time, rules SuspensionRules) error {
	fields := apperr.FieldErrors{}

	if !s.Reason.IsKnown() {
		fields.Add("reason", "unknown suspension reason")
	}
	if s.StartAt.IsZero() || s.EndAt.IsZero() {
		fields.Add("start_at", "start and end dates are required")
		return fields.Err("invalid suspension")
	}
	if s.EndAt.Before(s.StartAt) {
		fields.Add("end_at", "end date must not be before start date")
	}

	existing := s.existingIn(approval)
	startUnchanged := existing != nil && existing.StartAt.Equal(s.StartAt)

	if !startUnchanged {
		if s.StartAt.After(today) {
			fields.Add("start_at", "start date cannot be in the future")
		}
		if minStart := nextMinStartAt(approval, today, rules, s.ID); s.StartAt.Before(minStart) {
			fields.Add("start_at", "start date must be on or after "+minStart.Format(time.DateOnly))
		}
	}
	if s.StartAt.After(approval.EndAt) {
		fields.Add("start_at", "start date must be within the approval")
	}
	if maxEnd := MaxEndAt(s.StartAt, rules); s.EndAt.After(maxEnd) {
		fields.Add("end_at", "end date must be on or before "+maxEnd.Format(time.DateOnly))
	}

	for i := range approval.Suspensions {
		other := &approval.Suspensions[i]
		if other.ID == s.ID && s.ID != uuid.Nil {
			continue
		}
		if s.OverlapsWith(other) {
			fields.Add("start_at", "suspension overlaps an existing suspension")
			break
		}
	}

	return fields.Err("invalid suspension")
}

func (s *Suspension) existingIn(approval *Approval) *Suspension {
	if s.ID == uuid.Nil {
		return nil
	}
	for i := range approval.Suspensions {
		if approval.Suspensions[i].ID == s.ID {
			return &approval.Suspensions[i]
		}
	}
	return nil
}
