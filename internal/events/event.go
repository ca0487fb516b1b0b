// Package events holds the approval domain events. Bus plumbing lives in
// platform/events and is aliased here so modules import a single package.
package events

import (
	"time"

	"itou_backend/platform/events"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent   = events.NewBaseEvent
	BaseEventAt    = events.BaseEventAt
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Approval Domain Events
// =============================================================================

// ApprovalDelivered is published when a new approval number is issued.
type ApprovalDelivered struct {
	BaseEvent
	ApprovalID uuid.UUID `json:"approvalId"`
	Number     string    `json:"number"`
	UserID     uuid.UUID `json:"userId"`
	Origin     string    `json:"origin"`
	StartAt    time.Time `json:"startAt"`
	EndAt      time.Time `json:"endAt"`
}

func (e ApprovalDelivered) EventName() string { return "approvals.approval.delivered" }

// ProlongationDeclared is published when an employer declares a prolongation.
// The notification module emails the validating prescriber.
type ProlongationDeclared struct {
	BaseEvent
	ProlongationID    uuid.UUID  `json:"prolongationId"`
	ApprovalID        uuid.UUID  `json:"approvalId"`
	ApprovalNumber    string     `json:"approvalNumber"`
	JobSeekerName     string     `json:"jobSeekerName"`
	Reason            string     `json:"reason"`
	ReasonLabel       string     `json:"reasonLabel"`
	ReasonExplanation string     `json:"reasonExplanation,omitempty"`
	StartAt           time.Time  `json:"startAt"`
	EndAt             time.Time  `json:"endAt"`
	DeclaredBySiaeID  *uuid.UUID `json:"declaredBySiaeId,omitempty"`
	SiaeName          string     `json:"siaeName"`
	PrescriberEmail   string     `json:"prescriberEmail"`
	PrescriberName    string     `json:"prescriberName"`
}

func (e ProlongationDeclared) EventName() string { return "approvals.prolongation.declared" }
