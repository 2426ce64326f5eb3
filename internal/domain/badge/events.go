package badge

import (
	"time"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
)

// BadgeAwardedEvent is emitted for every grant created by the engine.
type BadgeAwardedEvent struct {
	shared.BaseEvent
	UserID   string    `json:"user_id"`
	GrantID  string    `json:"grant_id"`
	Slug     string    `json:"badge_slug"`
	ScopeKey string    `json:"scope_key"`
	RoomID   string    `json:"room_id,omitempty"`
	EarnedAt time.Time `json:"earned_at"`
}

// Payload implements shared.Event.
func (e BadgeAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"event_id":   e.ID,
		"user_id":    e.UserID,
		"grant_id":   e.GrantID,
		"badge_slug": e.Slug,
		"scope_key":  e.ScopeKey,
		"room_id":    e.RoomID,
		"earned_at":  e.EarnedAt.Format(time.RFC3339Nano),
	}
}

// NewBadgeAwardedEvent creates a BadgeAwardedEvent.
func NewBadgeAwardedEvent(grant Grant, slug string) BadgeAwardedEvent {
	e := BadgeAwardedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventBadgeAwarded, grant.UserID.String()),
		UserID:    grant.UserID.String(),
		GrantID:   grant.ID,
		Slug:      slug,
		ScopeKey:  grant.Scope.Key(),
		EarnedAt:  grant.EarnedAt,
	}
	if room := grant.RoomID(); room != nil {
		e.RoomID = room.String()
	}
	return e
}

// BadgesComputedEvent summarizes one engine run.
type BadgesComputedEvent struct {
	shared.BaseEvent
	UserID    string `json:"user_id"`
	RoomID    string `json:"room_id,omitempty"`
	NewBadges int    `json:"new_badges"`
	Total     int    `json:"total"`
}

// Payload implements shared.Event.
func (e BadgesComputedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"room_id":    e.RoomID,
		"new_badges": e.NewBadges,
		"total":      e.Total,
	}
}

// NewBadgesComputedEvent creates a BadgesComputedEvent.
func NewBadgesComputedEvent(userID shared.UserID, room *shared.RoomID, newBadges, total int) BadgesComputedEvent {
	e := BadgesComputedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventBadgesComputed, userID.String()),
		UserID:    userID.String(),
		NewBadges: newBadges,
		Total:     total,
	}
	if room != nil {
		e.RoomID = room.String()
	}
	return e
}

// DefinitionUpsertedEvent is emitted when a definition is created or changed.
type DefinitionUpsertedEvent struct {
	shared.BaseEvent
	Slug    string `json:"slug"`
	Created bool   `json:"created"`
}

// Payload implements shared.Event.
func (e DefinitionUpsertedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"slug":    e.Slug,
		"created": e.Created,
	}
}

// NewDefinitionUpsertedEvent creates a DefinitionUpsertedEvent.
func NewDefinitionUpsertedEvent(def Definition, created bool) DefinitionUpsertedEvent {
	return DefinitionUpsertedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventDefinitionUpserted, def.ID),
		Slug:      def.Slug,
		Created:   created,
	}
}
