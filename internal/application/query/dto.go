// Package query contains read operations (CQRS - Queries).
package query

import (
	"time"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// Wire shapes shared by the badge queries and the compute command response.
// ══════════════════════════════════════════════════════════════════════════════

// DefinitionDTO is the public view of an achievement definition.
type DefinitionDTO struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Category    string `json:"category"`
}

// BadgeDTO is one earned badge.
type BadgeDTO struct {
	ID         string         `json:"id"`
	EarnedAt   time.Time      `json:"earned_at"`
	RoomID     *string        `json:"room_id,omitempty"`
	Scope      string         `json:"scope"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Definition DefinitionDTO  `json:"badge_definitions"`
}

// NewDefinitionDTO converts a definition.
func NewDefinitionDTO(d badge.Definition) DefinitionDTO {
	return DefinitionDTO{
		Slug:        d.Slug,
		Name:        d.Name,
		Description: d.Description,
		Icon:        d.Icon,
		Category:    string(d.Category),
	}
}

// NewBadgeDTO converts an earned badge.
func NewBadgeDTO(e badge.EarnedBadge) BadgeDTO {
	dto := BadgeDTO{
		ID:         e.Grant.ID,
		EarnedAt:   e.EarnedAt,
		Scope:      e.Scope.Key(),
		Metadata:   e.Metadata,
		Definition: NewDefinitionDTO(e.Definition),
	}
	if room := e.Grant.RoomID(); room != nil {
		id := room.String()
		dto.RoomID = &id
	}
	return dto
}

// NewBadgeDTOs converts a summary, keeping its order. The result is never nil.
func NewBadgeDTOs(earned []badge.EarnedBadge) []BadgeDTO {
	out := make([]BadgeDTO, 0, len(earned))
	for _, e := range earned {
		out = append(out, NewBadgeDTO(e))
	}
	return out
}
