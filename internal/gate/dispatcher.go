package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/mailpilot/internal/core"
	"github.com/mikey/mailpilot/internal/metrics"
	"go.uber.org/zap"
)

// DispatchError reports a failed side effect. The decision is left intact so
// the caller can surface it.
type DispatchError struct {
	Decision *core.Decision
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("failed to dispatch %s for message %s: %v",
		core.KindOf(e.Decision.Action), e.Decision.MessageID, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// DispatchKey is the ledger key for a (message, action kind) side effect
func DispatchKey(messageID string, kind core.ActionKind) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("dispatch|%s|%s", messageID, kind)))
	return hex.EncodeToString(sum[:])
}

// Dispatcher executes actions against the mailbox and calendar
type Dispatcher struct {
	mailbox  core.MailboxActions
	calendar core.Calendar
	ledger   core.DispatchLedger
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	inFlight map[*core.Decision]struct{}
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(mailbox core.MailboxActions, calendar core.Calendar, ledger core.DispatchLedger, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		mailbox:  mailbox,
		calendar: calendar,
		ledger:   ledger,
		logger:   logger,
		metrics:  m,
		inFlight: make(map[*core.Decision]struct{}),
	}
}

// Dispatch performs the decision's action at most once. Concurrent calls for
// the same decision collapse into one, and the ledger turns any later call for
// the same message and action kind into a no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *core.Message, decision *core.Decision) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if decision.Action == nil {
		return &DispatchError{Decision: decision, Err: fmt.Errorf("decision has no action")}
	}

	if !d.begin(decision) {
		d.logger.Debug("Decision dispatch already in progress",
			zap.String("message_id", msg.ID),
			zap.String("action", string(decision.Action.Kind())))
		return nil
	}
	defer d.finish(decision)

	kind := decision.Action.Kind()
	key := DispatchKey(msg.ID, kind)
	claimed, err := d.ledger.Claim(ctx, key)
	if err != nil {
		d.metrics.DispatchFailed(string(kind))
		return &DispatchError{Decision: decision, Err: fmt.Errorf("failed to claim dispatch: %w", err)}
	}
	if !claimed {
		d.logger.Info("Action already performed for message, skipping",
			zap.String("message_id", msg.ID),
			zap.String("action", string(kind)))
		return nil
	}

	if err := d.perform(ctx, msg, decision.Action); err != nil {
		if relErr := d.ledger.Release(context.WithoutCancel(ctx), key); relErr != nil {
			d.logger.Warn("Failed to release dispatch claim",
				zap.String("message_id", msg.ID),
				zap.Error(relErr))
		}
		d.metrics.DispatchFailed(string(kind))
		d.logger.Error("Dispatch failed",
			zap.String("message_id", msg.ID),
			zap.String("decision_id", decision.ID),
			zap.String("action", string(kind)),
			zap.Error(err))
		return &DispatchError{Decision: decision, Err: err}
	}

	d.logger.Info("Action dispatched",
		zap.String("message_id", msg.ID),
		zap.String("decision_id", decision.ID),
		zap.String("action", string(kind)),
		zap.Float64("confidence", decision.Confidence))
	return nil
}

func (d *Dispatcher) begin(decision *core.Decision) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.inFlight[decision]; ok {
		return false
	}
	d.inFlight[decision] = struct{}{}
	return true
}

func (d *Dispatcher) finish(decision *core.Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, decision)
}

func (d *Dispatcher) perform(ctx context.Context, msg *core.Message, action core.Action) error {
	switch a := action.(type) {
	case core.AutoReply:
		return d.mailbox.Reply(ctx, msg, a.Body)
	case core.AutoArchive:
		return d.mailbox.Archive(ctx, msg)
	case core.Delegate:
		return d.mailbox.Forward(ctx, msg, a.To, a.Note)
	case core.Escalate:
		return d.mailbox.FlagForReview(ctx, msg, fmt.Sprintf("[%s] %s", a.Urgency, a.Reason))
	case core.ScheduleFollowUp:
		return d.mailbox.SnoozeUntil(ctx, msg, a.Until)
	case core.Unsubscribe:
		target := a.Target
		if target == "" {
			target = msg.ListUnsubscribe
		}
		if target == "" {
			return fmt.Errorf("no unsubscribe target for message")
		}
		return d.mailbox.Unsubscribe(ctx, msg, target)
	case core.AcceptMeeting:
		if a.CreateEvent && a.Slot != nil {
			title := a.Title
			if title == "" {
				title = msg.Subject
			}
			if _, err := d.calendar.CreateEvent(ctx, core.CalendarEvent{
				ID:    uuid.NewString(),
				Title: title,
				Start: a.Slot.Start,
				End:   a.Slot.End,
			}); err != nil {
				return fmt.Errorf("failed to create calendar event: %w", err)
			}
		}
		return d.mailbox.Reply(ctx, msg, acceptBody(a))
	case core.DeclineMeeting:
		return d.mailbox.Reply(ctx, msg, "Thanks for the invitation, unfortunately I can't make it. "+a.Reason+".")
	case core.ProposeAlternative:
		return d.mailbox.Reply(ctx, msg, proposalBody(a.Slots))
	default:
		return fmt.Errorf("unsupported action %T", action)
	}
}

func acceptBody(a core.AcceptMeeting) string {
	if a.Slot == nil {
		return "Thanks, that works for me."
	}
	return fmt.Sprintf("Thanks, %s works for me.", a.Slot.Start.Format(slotLayout))
}

const slotLayout = "Mon Jan 2 15:04 MST"

func proposalBody(slots []core.TimeSlot) string {
	if len(slots) == 0 {
		return "Unfortunately that time doesn't work for me and I have no free time soon. Could you suggest another time?"
	}
	var b strings.Builder
	b.WriteString("Unfortunately that time doesn't work for me. Would one of these work instead?\n")
	for _, s := range slots {
		fmt.Fprintf(&b, "- %s (%d minutes)\n", s.Start.Format(slotLayout), int(s.Duration()/time.Minute))
	}
	return b.String()
}
