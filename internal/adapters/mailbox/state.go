package mailbox

import (
	"context"
	"fmt"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
)

// Local message states
const (
	StateArchived     = "archived"
	StateSnoozed      = "snoozed"
	StateNeedsReview  = "needs_review"
	StateUnsubscribed = "unsubscribed"
)

// stateRecorder keeps the verbs that only change local message state
type stateRecorder struct {
	states core.MailboxStateRepository
	logger *zap.Logger
	now    func() time.Time
}

func (r *stateRecorder) set(ctx context.Context, msg *core.Message, state string, until time.Time, note string) error {
	err := r.states.SetState(ctx, &core.MailboxState{
		MessageID: msg.ID,
		State:     state,
		Until:     until,
		Note:      note,
		UpdatedAt: r.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to mark message %s as %s: %w", msg.ID, state, err)
	}

	r.logger.Debug("Mailbox state updated",
		zap.String("message_id", msg.ID),
		zap.String("state", state))
	return nil
}

func (r *stateRecorder) Archive(ctx context.Context, msg *core.Message) error {
	return r.set(ctx, msg, StateArchived, time.Time{}, "")
}

func (r *stateRecorder) SnoozeUntil(ctx context.Context, msg *core.Message, until time.Time) error {
	if until.IsZero() {
		return fmt.Errorf("snooze time is required")
	}
	return r.set(ctx, msg, StateSnoozed, until, "")
}

func (r *stateRecorder) FlagForReview(ctx context.Context, msg *core.Message, reason string) error {
	return r.set(ctx, msg, StateNeedsReview, time.Time{}, reason)
}
