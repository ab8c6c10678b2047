package intake

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mikey/mailpilot/internal/core"
	"go.uber.org/zap"
)

// CLIIntake evaluates single messages and prints the decision
type CLIIntake struct {
	service Evaluator
	out     io.Writer
	logger  *zap.Logger
	verbose bool
}

// NewCLIIntake creates a new CLI intake writing to out
func NewCLIIntake(service Evaluator, out io.Writer, logger *zap.Logger, verbose bool) *CLIIntake {
	return &CLIIntake{
		service: service,
		out:     out,
		logger:  logger,
		verbose: verbose,
	}
}

// ProcessMessage evaluates msg and displays the result
func (f *CLIIntake) ProcessMessage(ctx context.Context, msg *core.Message) (*core.Decision, error) {
	f.logger.Debug("Processing message", zap.String("sender", msg.From))

	fmt.Fprintf(f.out, "\n=== Message Summary ===\n")
	fmt.Fprintf(f.out, "ID: %s\n", msg.ID)
	fmt.Fprintf(f.out, "From: %s\n", msg.From)
	fmt.Fprintf(f.out, "To: %s\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(f.out, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(f.out, "Body length: %d bytes\n", len(msg.Body))
	if f.verbose {
		preview := msg.Body
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		fmt.Fprintf(f.out, "\nBody preview:\n%s\n", preview)
	}

	start := time.Now()
	d, err := f.service.Evaluate(ctx, msg)
	if d == nil {
		if err != nil {
			fmt.Fprintf(f.out, "Error: %v\n", err)
		}
		return nil, err
	}

	fmt.Fprintf(f.out, "\n=== Decision ===\n")
	fmt.Fprintf(f.out, "Decision ID: %s\n", d.ID)
	fmt.Fprintf(f.out, "Intent: %s\n", d.Intent)
	fmt.Fprintf(f.out, "Action: %s\n", describe(d.Action))
	fmt.Fprintf(f.out, "Confidence: %.4f\n", d.Confidence)
	fmt.Fprintf(f.out, "Requires approval: %t\n", d.RequiresApproval)
	fmt.Fprintf(f.out, "Outcome: %s\n", d.Outcome)
	if d.Priority != nil {
		fmt.Fprintf(f.out, "Priority: %.1f (%s urgency, %s importance)\n",
			d.Priority.Score, d.Priority.Urgency, d.Priority.Importance)
	}
	for _, r := range d.Reasoning {
		fmt.Fprintf(f.out, "  - %s\n", r)
	}
	fmt.Fprintf(f.out, "Processing time: %v\n", time.Since(start))
	if err != nil {
		fmt.Fprintf(f.out, "Error: %v\n", err)
	}
	return d, err
}

// Start is a no-op for the CLI intake
func (f *CLIIntake) Start() error {
	return nil
}

// Stop is a no-op for the CLI intake
func (f *CLIIntake) Stop() error {
	return nil
}

func describe(a core.Action) string {
	switch v := a.(type) {
	case core.AutoReply:
		return fmt.Sprintf("auto reply (%d chars)", len(v.Body))
	case core.AutoArchive:
		return "archive"
	case core.Delegate:
		return "delegate to " + v.To
	case core.Escalate:
		return fmt.Sprintf("escalate [%s] %s", v.Urgency, v.Reason)
	case core.ScheduleFollowUp:
		return "follow up at " + v.Until.Format(time.RFC1123)
	case core.Unsubscribe:
		return "unsubscribe " + v.Target
	case core.AcceptMeeting:
		return "accept meeting " + v.Title
	case core.DeclineMeeting:
		return "decline meeting: " + v.Reason
	case core.ProposeAlternative:
		return fmt.Sprintf("propose %d alternative slots", len(v.Slots))
	default:
		return "unknown"
	}
}
