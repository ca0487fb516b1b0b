// Package notification sends emails in response to approval events. Domain
// modules publish events and never talk to an email provider directly.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"itou_backend/internal/email"
	"itou_backend/internal/events"
	"itou_backend/platform/config"
	"itou_backend/platform/logger"
)

const displayDateLayout = "02/01/2006"

// TaskEnqueuer moves a notification onto the background queue so it can be
// retried off the request path.
type TaskEnqueuer interface {
	EnqueueProlongationNotification(ctx context.Context, event events.ProlongationDeclared) error
}

// Module handles the notification event subscriptions.
type Module struct {
	sender   email.Sender
	cfg      config.NotificationConfig
	log      *logger.Logger
	enqueuer TaskEnqueuer // optional
}

// New creates the notification module.
func New(sender email.Sender, cfg config.NotificationConfig, log *logger.Logger) *Module {
	return &Module{
		sender: sender,
		cfg:    cfg,
		log:    log,
	}
}

// SetTaskEnqueuer routes notifications through the background queue.
func (m *Module) SetTaskEnqueuer(e TaskEnqueuer) { m.enqueuer = e }

// RegisterHandlers subscribes the module to the events it reacts to.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.ProlongationDeclared{}.EventName(), m)
	m.log.Info("notification handlers registered")
}

// Handle implements events.Handler. Delivery failures are logged and never
// returned to the publisher.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ProlongationDeclared:
		m.handleProlongationDeclared(ctx, e)
	case *events.ProlongationDeclared:
		m.handleProlongationDeclared(ctx, *e)
	default:
		m.log.Debug("notification ignored event", "event", event.EventName())
	}
	return nil
}

func (m *Module) handleProlongationDeclared(ctx context.Context, e events.ProlongationDeclared) {
	if m.enqueuer != nil {
		err := m.enqueuer.EnqueueProlongationNotification(ctx, e)
		if err == nil {
			return
		}
		m.log.Warn("failed to enqueue prolongation notification, sending inline",
			"prolongation_id", e.ProlongationID, "error", err)
	}

	if err := m.SendProlongationDeclared(ctx, e); err != nil {
		m.log.Error("failed to send prolongation email",
			"prolongation_id", e.ProlongationID,
			"approval_number", e.ApprovalNumber,
			"error", err,
		)
	}
}

// SendProlongationDeclared emails the validating prescriber. The background
// worker calls it directly so a failure is retried.
func (m *Module) SendProlongationDeclared(ctx context.Context, e events.ProlongationDeclared) error {
	to := strings.TrimSpace(e.PrescriberEmail)
	if to == "" {
		return errors.New("prolongation has no prescriber email")
	}

	data := email.ProlongationDeclared{
		PrescriberName:    e.PrescriberName,
		JobSeekerName:     e.JobSeekerName,
		ApprovalNumber:    e.ApprovalNumber,
		SiaeName:          e.SiaeName,
		ReasonLabel:       e.ReasonLabel,
		ReasonExplanation: e.ReasonExplanation,
		StartAt:           formatDisplayDate(e.StartAt),
		EndAt:             formatDisplayDate(e.EndAt),
		ApprovalURL:       m.approvalURL(e),
	}
	if err := m.sender.SendProlongationDeclaredEmail(ctx, to, data); err != nil {
		return fmt.Errorf("send prolongation email: %w", err)
	}

	m.log.ApprovalEvent("prolongation_notified", e.ApprovalNumber, "prolongation_id", e.ProlongationID)
	return nil
}

func (m *Module) approvalURL(e events.ProlongationDeclared) string {
	if m.cfg == nil {
		return ""
	}
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	if base == "" {
		return ""
	}
	return base + "/approvals/" + e.ApprovalID.String()
}

func formatDisplayDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(displayDateLayout)
}

var _ events.Handler = (*Module)(nil)
