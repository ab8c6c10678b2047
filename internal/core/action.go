package core

import "time"

// ActionKind names an action variant
type ActionKind string

const (
	ActionAutoReply          ActionKind = "auto_reply"
	ActionAutoArchive        ActionKind = "auto_archive"
	ActionDelegate           ActionKind = "delegate"
	ActionEscalate           ActionKind = "escalate"
	ActionScheduleFollowUp   ActionKind = "schedule_follow_up"
	ActionUnsubscribe        ActionKind = "unsubscribe"
	ActionAcceptMeeting      ActionKind = "accept_meeting"
	ActionDeclineMeeting     ActionKind = "decline_meeting"
	ActionProposeAlternative ActionKind = "propose_alternative"
)

// Action is the closed set of things the assistant can do with a message.
// Implementations live in this package only.
type Action interface {
	Kind() ActionKind
	isAction()
}

// AutoReply sends a reply to the sender
type AutoReply struct {
	Body            string
	SendImmediately bool
	NeedsReview     bool
}

// AutoArchive moves the message out of the inbox
type AutoArchive struct{}

// Delegate forwards the message to someone else
type Delegate struct {
	To   string
	Note string
}

// Escalate hands the message to the human
type Escalate struct {
	Urgency Tier
	Reason  string
}

// ScheduleFollowUp snoozes the message until a later time
type ScheduleFollowUp struct {
	Until time.Time
}

// Unsubscribe removes the user from the sender's list
type Unsubscribe struct {
	Target string
}

// AcceptMeeting accepts a meeting request and optionally creates the event
type AcceptMeeting struct {
	Slot        *TimeSlot
	Title       string
	CreateEvent bool
}

// DeclineMeeting declines a meeting request
type DeclineMeeting struct {
	Reason string
}

// ProposeAlternative answers a meeting request with other times
type ProposeAlternative struct {
	Slots []TimeSlot
}

func (AutoReply) Kind() ActionKind          { return ActionAutoReply }
func (AutoArchive) Kind() ActionKind        { return ActionAutoArchive }
func (Delegate) Kind() ActionKind           { return ActionDelegate }
func (Escalate) Kind() ActionKind           { return ActionEscalate }
func (ScheduleFollowUp) Kind() ActionKind   { return ActionScheduleFollowUp }
func (Unsubscribe) Kind() ActionKind        { return ActionUnsubscribe }
func (AcceptMeeting) Kind() ActionKind      { return ActionAcceptMeeting }
func (DeclineMeeting) Kind() ActionKind     { return ActionDeclineMeeting }
func (ProposeAlternative) Kind() ActionKind { return ActionProposeAlternative }

func (AutoReply) isAction()          {}
func (AutoArchive) isAction()        {}
func (Delegate) isAction()           {}
func (Escalate) isAction()           {}
func (ScheduleFollowUp) isAction()   {}
func (Unsubscribe) isAction()        {}
func (AcceptMeeting) isAction()      {}
func (DeclineMeeting) isAction()     {}
func (ProposeAlternative) isAction() {}

// KindOf returns the kind of an action, tolerating nil
func KindOf(a Action) ActionKind {
	if a == nil {
		return ""
	}
	return a.Kind()
}
