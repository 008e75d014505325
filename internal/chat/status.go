// internal/chat/status.go
// Message status state machine

package chat

import "sort"

// MessageStatus is the lifecycle state of a message.
type MessageStatus string

const (
	StatusSending   MessageStatus = "sending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
	StatusRecalled  MessageStatus = "recalled"
	StatusDeleted   MessageStatus = "deleted"
)

// legalTransitions lists every allowed status change. Anything absent is an
// invalid transition. deleted and failed are terminal; recalled can only be
// deleted afterwards.
var legalTransitions = map[MessageStatus][]MessageStatus{
	StatusSending:   {StatusSent, StatusFailed, StatusDeleted},
	StatusSent:      {StatusDelivered, StatusRead, StatusRecalled, StatusDeleted},
	StatusDelivered: {StatusRead, StatusRecalled, StatusDeleted},
	StatusRead:      {StatusRecalled, StatusDeleted},
	StatusFailed:    {StatusDeleted},
	StatusRecalled:  {StatusDeleted},
	StatusDeleted:   {},
}

// Valid reports whether s is a known status value.
func (s MessageStatus) Valid() bool {
	_, ok := legalTransitions[s]
	return ok
}

// CanTransitionTo reports whether the state machine allows moving from s to
// target.
func (s MessageStatus) CanTransitionTo(target MessageStatus) bool {
	for _, next := range legalTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// CanRecall holds for the terminal success chain after the message left the
// sending state.
func (s MessageStatus) CanRecall() bool {
	return s == StatusSent || s == StatusDelivered || s == StatusRead
}

// CanDelete holds for anything not already deleted.
func (s MessageStatus) CanDelete() bool {
	return s != StatusDeleted
}

// transitionSources lists every status allowed to move to target, sorted for
// deterministic SQL. The store uses this set as the compare-and-set guard on
// status updates.
func transitionSources(target MessageStatus) []string {
	sources := make([]string, 0, len(legalTransitions))
	for from := range legalTransitions {
		if from.CanTransitionTo(target) {
			sources = append(sources, string(from))
		}
	}
	sort.Strings(sources)
	return sources
}

// CanEdit holds for text messages that have left the sending state
// (sent, delivered or read).
func CanEdit(status MessageStatus, msgType MessageType) bool {
	if msgType != MessageText {
		return false
	}
	return status == StatusSent || status == StatusDelivered || status == StatusRead
}
