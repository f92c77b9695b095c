package analytics

import "github.com/inferpay/inferpay/internal/domain/session"

// Converters from domain events to recorded events. Event types mirror the
// domain event names one to one.

func FromSessionOpened(ev *session.SessionOpenedEvent) Event {
	return Event{
		Type:       "session_opened",
		SessionID:  ev.SessionID,
		ClientID:   ev.ClientID,
		Model:      ev.Model,
		OccurredAt: ev.OccurredAt,
	}
}

func FromMessageCompleted(ev *session.MessageCompletedEvent) Event {
	return Event{
		Type:       "message_completed",
		SessionID:  ev.SessionID,
		ClientID:   ev.ClientID,
		Model:      ev.Model,
		Tokens:     ev.Tokens,
		Cost:       ev.Cost,
		OccurredAt: ev.OccurredAt,
	}
}

func FromSessionSettled(ev *session.SessionSettledEvent) Event {
	return Event{
		Type:       "session_settled",
		SessionID:  ev.SessionID,
		ClientID:   ev.ClientID,
		Model:      ev.Model,
		Cost:       ev.TotalCost,
		OccurredAt: ev.OccurredAt,
	}
}

func FromSessionFailed(ev *session.SessionFailedEvent) Event {
	return Event{
		Type:       "session_failed",
		SessionID:  ev.SessionID,
		ClientID:   ev.ClientID,
		Model:      ev.Model,
		Detail:     ev.Reason,
		OccurredAt: ev.OccurredAt,
	}
}
