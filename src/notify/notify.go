/*
Package notify tells the rest of the board about moderation changes, so that
e.g. the socket layer can drop the connections of a freshly banned IP.

Events are only published after the change they describe has committed, and
publishing is best-effort: a failed publish never undoes a ban.
*/
package notify

import (
	"context"
	"time"
)

const (
	EventBanCreated      = "ban.created"
	EventBanUpdated      = "ban.updated"
	EventBanLifted       = "ban.lifted"
	EventAppealSubmitted = "appeal.submitted"
	EventAppealResolved  = "appeal.resolved"
	EventRangebanCreated = "rangeban.created"
	EventRangebanUpdated = "rangeban.updated"
	EventRangebanLifted  = "rangeban.lifted"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`

	IPAddress  string  `json:"ip_address,omitempty"`
	BoardID    *string `json:"board_id"`
	BanID      *int    `json:"ban_id,omitempty"`
	RangebanID *int    `json:"rangeban_id,omitempty"`

	// The entity after the change, as the API would render it.
	Data any `json:"data,omitempty"`
}

type Notifier interface {
	Publish(ctx context.Context, e Event) error
}

// Used when no message broker is configured.
type Nop struct{}

func (Nop) Publish(ctx context.Context, e Event) error {
	return nil
}

func Subject(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}
